package mptcp_test

import (
	"context"
	"net/netip"
	"sync"
	"testing"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/metrics"
	. "github.com/aptpod/mptcp-go/mptcp"
	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/policy"
	"github.com/stretchr/testify/require"
)

const testRemoteKey = keys.Key(0x0123456789abcdef)

var (
	testDst  = netip.MustParseAddrPort("192.0.2.1:443")
	testDst2 = netip.MustParseAddrPort("192.0.2.2:443")
)

type fakeConn struct {
	mu      sync.Mutex
	req     DialRequest
	n       Notifier
	status  PathStatus
	iface   nic.InterfaceID
	metrics *metrics.StaticProvider
	sent    []*dss.Segment
	sendErr error
	closed  bool
	aborted error
	options []SocketOption
	optErr  error
	// peerは、送信したセグメントを受け取る相手側のセッションです。
	peer Notifier
}

func (c *fakeConn) Send(seg *dss.Segment) (int, error) {
	c.mu.Lock()
	if c.sendErr != nil {
		c.mu.Unlock()
		return 0, c.sendErr
	}
	c.sent = append(c.sent, seg)
	peer := c.peer
	c.mu.Unlock()
	if peer != nil {
		peer.Receive(seg)
	}
	return len(seg.Payload), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.n.Notify(EventDisconnected)
	return nil
}

func (c *fakeConn) Abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted == nil {
		c.aborted = err
	}
}

func (c *fakeConn) CurrentInterface() nic.InterfaceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iface
}

func (c *fakeConn) Status() PathStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *fakeConn) Metrics() metrics.Provider {
	return c.metrics
}

func (c *fakeConn) SetOption(opt SocketOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.optErr != nil {
		return c.optErr
	}
	c.options = append(c.options, opt)
	return nil
}

func (c *fakeConn) setOptions() []SocketOption {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]SocketOption(nil), c.options...)
}

func (c *fakeConn) setStatus(st PathStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = st
}

// upは、ピアとのハンドシェイクが完了したことを通知します。
func (c *fakeConn) up(st PathStatus) {
	c.setStatus(st)
	c.n.Notify(EventConnected | EventMPStatus)
}

// blockは、輻輳ウィンドウを使い切った状態にします。
func (c *fakeConn) block() {
	c.metrics.SetCongestionWindow(1)
	c.metrics.AddBytesInFlight(1 << 20)
}

func (c *fakeConn) sentSegments() []*dss.Segment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*dss.Segment(nil), c.sent...)
}

// sentDataは、マッピング付きで送信したペイロードを連結して返却します。
func (c *fakeConn) sentData() []byte {
	var res []byte
	for _, seg := range c.sentSegments() {
		res = append(res, seg.Payload...)
	}
	return res
}

func (c *fakeConn) abortErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aborted
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) Dial(_ context.Context, req DialRequest, n Notifier) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeConn{req: req, n: n, iface: req.Interface, metrics: metrics.NewStaticProvider()}
	c.metrics.SetCongestionWindow(1 << 20)
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

type eventRecorder struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (r *eventRecorder) OnSessionEvent(ev *SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *ev)
}

func (r *eventRecorder) kinds() []SessionEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []SessionEventKind
	for _, ev := range r.events {
		res = append(res, ev.Kind)
	}
	return res
}

type testSession struct {
	*Session
	dialer *fakeDialer
	events *eventRecorder
}

func newTestSession(t *testing.T, st policy.ServiceType, opts ...Option) *testSession {
	t.Helper()
	d := &fakeDialer{}
	rec := &eventRecorder{}
	s, err := NewSession(st, append([]Option{WithDialer(d), WithEventHandler(rec)}, opts...)...)
	require.NoError(t, err)
	return &testSession{Session: s, dialer: d, events: rec}
}

var mpReady = PathStatus{MPCapable: true, MPReady: true, Established: true, RemoteKey: testRemoteKey}

// establishは、最初のサブフローを接続してMPTCPで確立します。
func (ts *testSession) establish(t *testing.T) *fakeConn {
	t.Helper()
	_, err := ts.EstablishFirstPath(context.Background(), testDst)
	require.NoError(t, err)
	c := ts.dialer.conn(ts.dialer.count() - 1)
	c.up(mpReady)
	require.Equal(t, StateEstablished, ts.State())
	return c
}

// joinは、サブフローを追加して接続します。
func (ts *testSession) join(t *testing.T, dst netip.AddrPort) *fakeConn {
	t.Helper()
	_, err := ts.AddSubflow(context.Background(), netip.AddrPort{}, dst, nic.NoInterface)
	require.NoError(t, err)
	c := ts.dialer.conn(ts.dialer.count() - 1)
	c.up(mpReady)
	return c
}

// connectPairは、2つのセッションの最初のサブフローを互いに接続して確立します。
func connectPair(t *testing.T, a, b *testSession, st PathStatus) (*fakeConn, *fakeConn) {
	t.Helper()
	_, err := a.EstablishFirstPath(context.Background(), testDst)
	require.NoError(t, err)
	_, err = b.EstablishFirstPath(context.Background(), testDst2)
	require.NoError(t, err)
	ca, cb := a.dialer.conn(0), b.dialer.conn(0)
	ca.mu.Lock()
	ca.peer = cb.n
	ca.mu.Unlock()
	cb.mu.Lock()
	cb.peer = ca.n
	cb.mu.Unlock()

	st.RemoteKey = cb.req.LocalKey
	ca.up(st)
	st.RemoteKey = ca.req.LocalKey
	cb.up(st)
	require.Equal(t, StateEstablished, a.State())
	require.Equal(t, StateEstablished, b.State())
	return ca, cb
}

func subflowByID(subflows []Subflow, id SubflowID) (Subflow, bool) {
	for _, sf := range subflows {
		if sf.ID == id {
			return sf, true
		}
	}
	return Subflow{}, false
}

func mapped(dsn uint64, ssn uint32, payload []byte, fin, checksum bool) *dss.Segment {
	m := dss.NewMapping(dsn, ssn, payload, fin, checksum)
	return &dss.Segment{Mapping: &m, Payload: payload}
}
