package pathconn_test

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/mptcp"
	"github.com/aptpod/mptcp-go/nic"
	. "github.com/aptpod/mptcp-go/pathconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestDialer_Capable(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	req := capableRequest(addrOf(ln))
	c := dial(t, req, rec)
	nc, hello := acceptCapable(t, ln, HandshakeMPCapable|HandshakeChecksum)
	defer nc.Close()

	assert.True(t, hello.Flags.Has(HandshakeMPCapable))
	assert.False(t, hello.Flags.Has(HandshakeJoin))
	assert.Equal(t, localKey, hello.Key)
	assert.Equal(t, uint32(localWindow), hello.Window)

	rec.waitFor(t, mptcp.EventConnected|mptcp.EventMPStatus)
	st := c.Status()
	assert.True(t, st.MPCapable)
	assert.True(t, st.MPReady)
	assert.True(t, st.Established)
	assert.True(t, st.ChecksumRequired)
	assert.Equal(t, remoteKey, st.RemoteKey)
	assert.Equal(t, uint32(remoteWindow), st.Window)

	// 送信
	payload := []byte("hello")
	m := dss.NewMapping(localIDSN+1, 1, payload, false, true)
	n, err := c.Send(&dss.Segment{Mapping: &m, Payload: payload, DataAck: remoteIDSN + 1, HasDataAck: true, Window: 1000})
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)

	f := readFrame(t, nc)
	require.Equal(t, FrameData, f.Type)
	assert.Equal(t, payload, f.Payload)
	opt, err := dss.UnmarshalOption(f.Option, localIDSN, remoteIDSN, true)
	require.NoError(t, err)
	require.NotNil(t, opt.Mapping)
	assert.Equal(t, m.DSN, opt.Mapping.DSN)
	assert.Equal(t, m.SubflowSeq, opt.Mapping.SubflowSeq)
	assert.Equal(t, m.Checksum, opt.Mapping.Checksum)
	assert.Equal(t, remoteIDSN+1, opt.DataAck)
	assert.Equal(t, uint32(1000), f.Window)

	// 受信。32bitのDSNは相手のIDSNを基準に拡張する
	in := []byte("world")
	m2 := dss.NewMapping(remoteIDSN+1, 1, in, false, true)
	seg := dss.Segment{Mapping: &m2, Payload: in, DataAck: localIDSN + 6, HasDataAck: true}
	writeFrame(t, nc, Frame{Type: FrameData, Option: seg.Option(true).Marshal(), Payload: in, Window: 3000})
	require.Eventually(t, func() bool { return len(rec.segments()) == 1 }, 5*time.Second, 5*time.Millisecond)
	got := rec.segments()[0]
	require.NotNil(t, got.Mapping)
	assert.Equal(t, remoteIDSN+1, got.Mapping.DSN)
	assert.Equal(t, m2.Checksum, got.Mapping.Checksum)
	assert.Equal(t, in, got.Payload)
	assert.True(t, got.HasDataAck)
	assert.Equal(t, localIDSN+6, got.DataAck)
	assert.Equal(t, uint32(3000), got.Window)

	// 双方のFINで切断する
	require.NoError(t, c.Close())
	_, err = ReadFrame(nc)
	assert.ErrorIs(t, err, io.EOF)
	_, err = c.Send(&dss.Segment{Payload: payload})
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	require.NoError(t, nc.Close())

	rec.waitFor(t, mptcp.EventCantRcvMore|mptcp.EventDisconnected)
	c.Wait()
	assert.True(t, c.Status().CloseWait)
	assert.NoError(t, c.Status().Err)
	assert.Greater(t, c.RxBytes(), uint64(0))
	assert.Greater(t, c.TxBytes(), uint64(0))
}

func TestDialer_Fallback(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	c := dial(t, capableRequest(addrOf(ln)), rec)
	nc, _ := acceptCapable(t, ln, 0)
	defer shutdown(c, nc)

	rec.waitFor(t, mptcp.EventConnected|mptcp.EventMPStatus)
	st := c.Status()
	assert.True(t, st.Established)
	assert.False(t, st.MPCapable)
	assert.Zero(t, st.RemoteKey)

	payload := []byte("plain")
	m := dss.NewMapping(localIDSN+1, 1, payload, false, false)
	_, err := c.Send(&dss.Segment{Mapping: &m, Payload: payload})
	require.NoError(t, err)
	f := readFrame(t, nc)
	assert.Empty(t, f.Option)
	assert.Equal(t, payload, f.Payload)

	writeFrame(t, nc, Frame{Type: FrameData, Payload: []byte("reply")})
	require.Eventually(t, func() bool { return len(rec.segments()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Nil(t, rec.segments()[0].Mapping)
}

func TestDialer_Join(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	req := joinRequest(addrOf(ln))
	c := dial(t, req, rec)
	nc := accept(t, ln)
	defer shutdown(c, nc)

	hello := readFrame(t, nc).Handshake
	assert.True(t, hello.Flags.Has(HandshakeJoin|HandshakeBackup))
	assert.Equal(t, req.RemoteToken, hello.Token)
	assert.Equal(t, uint8(1), hello.AddrID)

	const randB = 0xdeadbeef
	writeFrame(t, nc, Frame{Type: FrameHandshake, Handshake: Handshake{
		Version: Version,
		Flags:   HandshakeMPCapable | HandshakeJoin,
		Nonce:   randB,
		MAC:     keys.HMAC(remoteKey, localKey, randB, hello.Nonce).Truncated(),
	}})
	ack := readFrame(t, nc).Handshake
	assert.True(t, ack.Flags.Has(HandshakeAck))
	assert.Equal(t, keys.HMAC(localKey, remoteKey, hello.Nonce, randB).Truncated(), ack.MAC)

	rec.waitFor(t, mptcp.EventConnected|mptcp.EventMPStatus)
	st := c.Status()
	assert.True(t, st.MPReady)
	assert.Equal(t, remoteKey, st.RemoteKey)
}

func TestDialer_JoinAuthenticationFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	c := dial(t, joinRequest(addrOf(ln)), rec)
	nc := accept(t, ln)
	defer nc.Close()

	hello := readFrame(t, nc).Handshake
	writeFrame(t, nc, Frame{Type: FrameHandshake, Handshake: Handshake{
		Version: Version,
		Flags:   HandshakeMPCapable | HandshakeJoin,
		Nonce:   1,
		MAC:     keys.HMAC(remoteKey, localKey, 2, hello.Nonce).Truncated(),
	}})
	f := readFrame(t, nc)
	assert.Equal(t, FrameReset, f.Type)

	rec.waitFor(t, mptcp.EventDisconnected)
	c.Wait()
	assert.Zero(t, rec.all()&mptcp.EventConnected)
	assert.ErrorIs(t, c.Status().Err, errors.ErrAuthentication)
}

func TestConn_PeerReset(t *testing.T) {
	tests := []struct {
		name      string
		fastClose bool
		wantEvent mptcp.Event
		wantErr   error
	}{
		{name: "reset", wantEvent: mptcp.EventConnReset | mptcp.EventDisconnected, wantErr: errors.ErrConnectionReset},
		{name: "fast close", fastClose: true, wantEvent: mptcp.EventMustReset | mptcp.EventDisconnected, wantErr: errors.ErrFastClose},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			ln := listen(t)
			defer ln.Close()

			rec := &recorder{}
			c := dial(t, capableRequest(addrOf(ln)), rec)
			nc, _ := acceptCapable(t, ln, HandshakeMPCapable)
			defer nc.Close()
			rec.waitFor(t, mptcp.EventConnected)

			writeFrame(t, nc, Frame{Type: FrameReset, FastClose: tt.fastClose})
			rec.waitFor(t, tt.wantEvent)
			c.Wait()
			st := c.Status()
			assert.ErrorIs(t, st.Err, tt.wantErr)
			assert.Equal(t, tt.fastClose, st.FastClose)
		})
	}
}

func TestConn_ProtocolViolation(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	c := dial(t, capableRequest(addrOf(ln)), rec)
	nc, _ := acceptCapable(t, ln, HandshakeMPCapable)
	defer nc.Close()
	rec.waitFor(t, mptcp.EventConnected)

	writeFrame(t, nc, Frame{Type: FrameData, Option: []byte{1, 2, 3, 4}, Payload: []byte("x")})
	rec.waitFor(t, mptcp.EventProtocolError|mptcp.EventMustReset|mptcp.EventDisconnected)
	c.Wait()
	assert.ErrorIs(t, c.Status().Err, errors.ErrProtocolViolation)
}

func TestConn_Abort(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		fastClose bool
	}{
		{name: "reset", err: errors.ErrConnectionReset},
		{name: "fast close", err: errors.ErrFastClose, fastClose: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer goleak.VerifyNone(t)
			ln := listen(t)
			defer ln.Close()

			rec := &recorder{}
			c := dial(t, capableRequest(addrOf(ln)), rec)
			nc, _ := acceptCapable(t, ln, HandshakeMPCapable)
			defer nc.Close()
			rec.waitFor(t, mptcp.EventConnected)

			c.Abort(tt.err)
			c.Abort(errors.ErrTimeout)
			f := readFrame(t, nc)
			assert.Equal(t, FrameReset, f.Type)
			assert.Equal(t, tt.fastClose, f.FastClose)
			require.NoError(t, nc.Close())
			c.Wait()

			assert.Zero(t, rec.all()&mptcp.EventDisconnected)
			assert.ErrorIs(t, c.Status().Err, tt.err)
			_, err := c.Send(&dss.Segment{Payload: []byte("x")})
			assert.ErrorIs(t, err, errors.ErrNotConnected)
		})
	}
}

func TestConn_CloseBeforeConnected(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	c := dial(t, capableRequest(addrOf(ln)), rec)
	require.NoError(t, c.Close())
	rec.waitFor(t, mptcp.EventDisconnected)
	c.Wait()
	assert.Zero(t, rec.all()&mptcp.EventConnected)
}

func TestDialer_DialFailure(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	dst := addrOf(ln)
	require.NoError(t, ln.Close())

	rec := &recorder{}
	c := dial(t, capableRequest(dst), rec, WithDialRetry(1, time.Millisecond, time.Millisecond))
	rec.waitFor(t, mptcp.EventDisconnected)
	c.Wait()
	assert.ErrorIs(t, c.Status().Err, errors.ErrNotConnected)
}

func TestDialer_Dial_Error(t *testing.T) {
	m := nic.OpenManager(nil)
	defer m.Close()
	d, err := NewDialer(WithInterfaces(m))
	require.NoError(t, err)

	valid := capableRequest(netipAddrPort("192.0.2.1:443"))
	tests := []struct {
		name    string
		modify  func(r *mptcp.DialRequest)
		wantErr error
	}{
		{name: "invalid destination", modify: func(r *mptcp.DialRequest) { r.Destination = netipAddrPort("0.0.0.0:0") }, wantErr: errors.ErrAddress},
		{name: "join without key", modify: func(r *mptcp.DialRequest) { r.Initial = false }, wantErr: errors.ErrState},
		{name: "unknown interface", modify: func(r *mptcp.DialRequest) { r.Interface = 5 }, wantErr: errors.ErrAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			_, err := d.Dial(context.Background(), req, &recorder{})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewDialer_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{name: "timeout", opt: WithTimeouts(0, time.Second)},
		{name: "metrics interval", opt: WithMetricsInterval(0)},
		{name: "queue", opt: WithMaxQueuedBytes(1024)},
		{name: "compress level", opt: WithCompress(CompressConfig{Enable: true, Level: 42})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDialer(tt.opt)
			assert.Error(t, err)
		})
	}
}

func TestConn_Compress(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	c := dial(t, capableRequest(addrOf(ln)), rec, WithCompress(CompressConfig{Enable: true, Level: zlib.BestSpeed}))
	nc, hello := acceptCapable(t, ln, HandshakeMPCapable|HandshakeCompress)
	defer shutdown(c, nc)
	assert.True(t, hello.Flags.Has(HandshakeCompress))
	rec.waitFor(t, mptcp.EventConnected)

	payload := bytes.Repeat([]byte("abcd"), 256)
	m := dss.NewMapping(localIDSN+1, 1, payload, false, false)
	_, err := c.Send(&dss.Segment{Mapping: &m, Payload: payload})
	require.NoError(t, err)
	f := readFrame(t, nc)
	assert.Less(t, len(f.Payload), len(payload))
	got, err := DecompressPayload(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	in, err := CompressPayload([]byte("compressed reply"), zlib.DefaultCompression)
	require.NoError(t, err)
	writeFrame(t, nc, Frame{Type: FrameData, Payload: in})
	require.Eventually(t, func() bool { return len(rec.segments()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, []byte("compressed reply"), rec.segments()[0].Payload)
}

func TestConn_Metrics(t *testing.T) {
	defer goleak.VerifyNone(t)
	ln := listen(t)
	defer ln.Close()

	rec := &recorder{}
	c := dial(t, capableRequest(addrOf(ln)), rec, WithMetricsInterval(10*time.Millisecond))
	nc, _ := acceptCapable(t, ln, HandshakeMPCapable)
	defer shutdown(c, nc)
	rec.waitFor(t, mptcp.EventConnected)

	mp := c.Metrics()
	assert.Positive(t, mp.RTT())
	assert.Positive(t, mp.CongestionWindow())
}
