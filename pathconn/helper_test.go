package pathconn_test

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/mptcp"
	. "github.com/aptpod/mptcp-go/pathconn"
	uuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const (
	localKey  keys.Key = 0x0102030405060708
	remoteKey keys.Key = 0x1112131415161718

	localWindow  = 2048
	remoteWindow = 4096
)

var (
	_, localIDSN  = keys.DeriveTokenAndIDSN(localKey)
	_, remoteIDSN = keys.DeriveTokenAndIDSN(remoteKey)
)

type recorder struct {
	mu     sync.Mutex
	events []mptcp.Event
	segs   []*dss.Segment
}

func (r *recorder) Notify(ev mptcp.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) Receive(seg *dss.Segment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.segs = append(r.segs, seg)
}

func (r *recorder) all() mptcp.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res mptcp.Event
	for _, ev := range r.events {
		res |= ev
	}
	return res
}

func (r *recorder) segments() []*dss.Segment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*dss.Segment(nil), r.segs...)
}

// waitForは、evの全てのビットが通知されるまで待ちます。
func (r *recorder) waitFor(t *testing.T, ev mptcp.Event) {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.all()&ev == ev
	}, 5*time.Second, 5*time.Millisecond, "waiting for %v, got %v", ev, r.all())
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func addrOf(ln net.Listener) netip.AddrPort {
	return netip.MustParseAddrPort(ln.Addr().String())
}

func capableRequest(dst netip.AddrPort) mptcp.DialRequest {
	return mptcp.DialRequest{
		SessionID:   uuid.New(),
		SubflowID:   1,
		Destination: dst,
		Initial:     true,
		LocalKey:    localKey,

		ReceiveWindow: localWindow,
	}
}

func joinRequest(dst netip.AddrPort) mptcp.DialRequest {
	tok, _ := keys.DeriveTokenAndIDSN(remoteKey)
	return mptcp.DialRequest{
		SessionID:   uuid.New(),
		SubflowID:   2,
		Destination: dst,
		LocalKey:    localKey,
		RemoteKey:   remoteKey,
		RemoteToken: tok,
		LocalAddrID: 1,
		Backup:      true,
	}
}

func dial(t *testing.T, req mptcp.DialRequest, n mptcp.Notifier, opts ...Option) *Conn {
	t.Helper()
	d, err := NewDialer(opts...)
	require.NoError(t, err)
	c, err := d.Dial(context.Background(), req, n)
	require.NoError(t, err)
	return c.(*Conn)
}

func accept(t *testing.T, ln net.Listener) net.Conn {
	t.Helper()
	nc, err := ln.Accept()
	require.NoError(t, err)
	require.NoError(t, nc.SetDeadline(time.Now().Add(5*time.Second)))
	return nc
}

func readFrame(t *testing.T, nc net.Conn) Frame {
	t.Helper()
	f, err := ReadFrame(nc)
	require.NoError(t, err)
	return f
}

func writeFrame(t *testing.T, nc net.Conn, f Frame) {
	t.Helper()
	b, err := AppendFrame(nil, f)
	require.NoError(t, err)
	_, err = nc.Write(b)
	require.NoError(t, err)
}

// acceptCapableは、MP_CAPABLEを受けて応答します。
func acceptCapable(t *testing.T, ln net.Listener, flags HandshakeFlag) (net.Conn, Handshake) {
	t.Helper()
	nc := accept(t, ln)
	f := readFrame(t, nc)
	require.Equal(t, FrameHandshake, f.Type)
	writeFrame(t, nc, Frame{Type: FrameHandshake, Handshake: Handshake{
		Version: Version,
		Flags:   flags,
		Key:     remoteKey,
		Window:  remoteWindow,
	}})
	return nc, f.Handshake
}

// shutdownは、Connを中止してゴルーチンの終了を待ちます。
func shutdown(c *Conn, nc net.Conn) {
	c.Abort(nil)
	nc.Close()
	c.Wait()
}

func netipAddrPort(s string) netip.AddrPort {
	return netip.MustParseAddrPort(s)
}
