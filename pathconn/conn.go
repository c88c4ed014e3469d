package pathconn

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/ch"
	"github.com/aptpod/mptcp-go/internal/xio"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/metrics"
	"github.com/aptpod/mptcp-go/mptcp"
	"github.com/aptpod/mptcp-go/nic"
	"golang.org/x/sync/errgroup"
)

// abortLingerは、Abort時にリセットフレームの送信を待つ時間です。
var abortLinger = 100 * time.Millisecond

// Connは、1本のTCP接続の上でサブフローを運ぶmptcp.Connectionです。
//
// 通知はConnのロックを解放した状態で行います。
type Conn struct {
	cfg    Config
	req    mptcp.DialRequest
	n      mptcp.Notifier
	logger log.Logger
	logCtx context.Context

	ctx    context.Context
	cancel context.CancelFunc
	eg     errgroup.Group

	metrics *pathMetrics
	queued  atomic.Int64
	rx      *xio.CaptureReader
	tx      atomic.Uint64

	mu        sync.Mutex
	nc        net.Conn
	status    mptcp.PathStatus
	iface     nic.InterfaceID
	checksum  bool
	compress  bool
	options   []mptcp.SocketOption
	queue     [][]byte
	finQueued bool
	finSent   bool
	peerFIN   bool
	aborted   bool
	resetFast bool
	done      bool
	wake      chan struct{}

	// readLoopのみが操作します。
	dsnBase uint64
	ackBase uint64
}

var (
	_ mptcp.Connection   = (*Conn)(nil)
	_ mptcp.OptionSetter = (*Conn)(nil)
)

func newConn(cfg Config, req mptcp.DialRequest, n mptcp.Notifier) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	logCtx := log.WithTrackSessionID(context.Background(), req.SessionID.String())
	logCtx = log.WithTrackSubflowID(logCtx, uint32(req.SubflowID))
	return &Conn{
		cfg:     cfg,
		req:     req,
		n:       n,
		logger:  cfg.Logger,
		logCtx:  logCtx,
		ctx:     ctx,
		cancel:  cancel,
		metrics: &pathMetrics{inner: metrics.NewNopProvider()},
		iface:   req.Interface,
		wake:    make(chan struct{}, 1),
	}
}

func (c *Conn) start(dc *nic.DialContext) {
	c.metrics.queued = &c.queued
	c.eg.Go(func() error {
		defer c.cancel()
		c.run(dc)
		return nil
	})
}

// Waitは、Connの全てのゴルーチンが終了するまで待ちます。
func (c *Conn) Wait() {
	_ = c.eg.Wait()
}

func (c *Conn) run(dc *nic.DialContext) {
	nc, err := c.connect(dc)
	if err != nil {
		c.fail(errors.Errorf("dial %v: %v: %w", c.req.Destination, err, errors.ErrNotConnected), 0)
		return
	}
	defer nc.Close()

	c.mu.Lock()
	if c.aborted {
		c.mu.Unlock()
		return
	}
	c.nc = nc
	opts := c.options
	c.mu.Unlock()
	for _, o := range opts {
		if err := setSockopt(nc, o); err != nil {
			c.logger.Warnf(c.logCtx, "Failed to set socket option %+v: %v", o, err)
		}
	}

	mp := metrics.ForConn(nc, c.cfg.MetricsInterval)
	if err := mp.Start(); err != nil {
		c.logger.Warnf(c.logCtx, "Failed to start metrics: %v", err)
	}
	defer mp.Stop()
	c.metrics.set(mp)
	c.resolveInterface(nc)

	rx := xio.NewCaptureReader(nc)
	c.mu.Lock()
	c.rx = rx
	c.mu.Unlock()
	br := bufio.NewReader(rx)
	st, err := c.handshake(nc, br)
	if err != nil {
		ev := mptcp.Event(0)
		if errors.Is(err, errors.ErrProtocolViolation) {
			ev = mptcp.EventProtocolError
		}
		c.fail(err, ev)
		return
	}
	if !c.update(mptcp.EventConnected|mptcp.EventMPStatus, func(s *mptcp.PathStatus) { *s = st }) {
		return
	}
	c.logger.Infof(c.logCtx, "Subflow connected %v -> %v (mp capable %t)", nc.LocalAddr(), nc.RemoteAddr(), st.MPCapable)

	var eg errgroup.Group
	eg.Go(func() error { return c.readLoop(br) })
	eg.Go(func() error { return c.writeLoop(nc) })
	if err := eg.Wait(); err != nil {
		c.logger.Debugf(c.logCtx, "Subflow loop finished: %v", err)
	}
}

func (c *Conn) connect(dc *nic.DialContext) (net.Conn, error) {
	var nc net.Conn
	err := c.cfg.dialRetry.DoContext(c.ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
		conn, err := dc.DialContext(ctx, "tcp", c.req.Destination.String())
		if err != nil {
			c.logger.Debugf(c.logCtx, "Failed to dial %v: %v", c.req.Destination, err)
			return err
		}
		nc = conn
		return nil
	})
	return nc, err
}

// resolveInterfaceは、送信元アドレスから実際に使用しているインターフェースを求めます。
func (c *Conn) resolveInterface(nc net.Conn) {
	if c.req.Interface != nic.NoInterface || c.cfg.Interfaces == nil {
		return
	}
	local, ok := nc.LocalAddr().(*net.TCPAddr)
	if !ok {
		return
	}
	for _, iface := range c.cfg.Interfaces.Interfaces() {
		ni, err := net.InterfaceByName(iface.Name)
		if err != nil {
			continue
		}
		addrs, err := ni.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipn, ok := a.(*net.IPNet); ok && ipn.IP.Equal(local.IP) {
				c.mu.Lock()
				c.iface = iface.ID
				c.mu.Unlock()
				return
			}
		}
	}
}

func (c *Conn) handshake(nc net.Conn, br *bufio.Reader) (mptcp.PathStatus, error) {
	if err := nc.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout)); err != nil {
		return mptcp.PathStatus{}, err
	}
	var (
		st  mptcp.PathStatus
		err error
	)
	if c.req.Initial {
		st, err = c.handshakeCapable(nc, br)
	} else {
		st, err = c.handshakeJoin(nc, br)
	}
	if err != nil {
		return st, err
	}
	c.mu.Lock()
	aborted := c.aborted
	c.mu.Unlock()
	if aborted {
		return st, errors.ErrConnectionReset
	}
	return st, nc.SetDeadline(time.Time{})
}

func (c *Conn) localFlags() HandshakeFlag {
	var f HandshakeFlag
	if c.req.Checksum {
		f |= HandshakeChecksum
	}
	if c.req.Backup {
		f |= HandshakeBackup
	}
	if c.cfg.Compress.Enable {
		f |= HandshakeCompress
	}
	return f
}

// handshakeCapableは、最初のサブフローでMP_CAPABLEを交換します。
//
// 応答にHandshakeMPCapableが無い場合は通常のTCPとして確立します。
func (c *Conn) handshakeCapable(nc net.Conn, br *bufio.Reader) (mptcp.PathStatus, error) {
	hello := Handshake{
		Version: Version,
		Flags:   HandshakeMPCapable | c.localFlags(),
		AddrID:  c.req.LocalAddrID,
		Key:     c.req.LocalKey,
		Window:  c.req.ReceiveWindow,
	}
	if err := c.writeHandshake(nc, hello); err != nil {
		return mptcp.PathStatus{}, err
	}
	reply, err := readHandshake(br)
	if err != nil {
		return mptcp.PathStatus{}, err
	}
	if !reply.Flags.Has(HandshakeMPCapable) {
		return mptcp.PathStatus{Established: true}, nil
	}
	if reply.Key == 0 {
		return mptcp.PathStatus{}, errors.Errorf("mp capable without key: %w", errors.ErrProtocolViolation)
	}
	c.negotiated(reply.Flags, reply.Key)
	return mptcp.PathStatus{
		MPCapable:        true,
		MPReady:          true,
		Established:      true,
		RemoteKey:        reply.Key,
		ChecksumRequired: reply.Flags.Has(HandshakeChecksum),
		Window:           reply.Window,
	}, nil
}

// handshakeJoinは、MP_JOINでHMACを交換してサブフローを認証します。
func (c *Conn) handshakeJoin(nc net.Conn, br *bufio.Reader) (mptcp.PathStatus, error) {
	nonce, err := keys.NewKey()
	if err != nil {
		return mptcp.PathStatus{}, err
	}
	randA := uint32(nonce)
	hello := Handshake{
		Version: Version,
		Flags:   HandshakeMPCapable | HandshakeJoin | c.localFlags(),
		AddrID:  c.req.LocalAddrID,
		Token:   c.req.RemoteToken,
		Nonce:   randA,
		Window:  c.req.ReceiveWindow,
	}
	if err := c.writeHandshake(nc, hello); err != nil {
		return mptcp.PathStatus{}, err
	}
	reply, err := readHandshake(br)
	if err != nil {
		return mptcp.PathStatus{}, err
	}
	if !reply.Flags.Has(HandshakeMPCapable) {
		return mptcp.PathStatus{Established: true}, nil
	}
	var mac [8]byte
	binary.BigEndian.PutUint64(mac[:], reply.MAC)
	if err := keys.VerifyHMAC(mac[:], c.req.RemoteKey, c.req.LocalKey, reply.Nonce, randA); err != nil {
		c.logger.Warnf(c.logCtx, "MP_JOIN authentication failed")
		c.writeReset(nc, false)
		return mptcp.PathStatus{}, err
	}
	ack := Handshake{
		Version: Version,
		Flags:   HandshakeMPCapable | HandshakeJoin | HandshakeAck,
		MAC:     keys.HMAC(c.req.LocalKey, c.req.RemoteKey, randA, reply.Nonce).Truncated(),
	}
	if err := c.writeHandshake(nc, ack); err != nil {
		return mptcp.PathStatus{}, err
	}
	c.negotiated(reply.Flags, c.req.RemoteKey)
	return mptcp.PathStatus{
		MPCapable:        true,
		MPReady:          true,
		Established:      true,
		RemoteKey:        c.req.RemoteKey,
		ChecksumRequired: reply.Flags.Has(HandshakeChecksum),
		Window:           reply.Window,
	}, nil
}

func (c *Conn) negotiated(remote HandshakeFlag, remoteKey keys.Key) {
	_, remoteIDSN := keys.DeriveTokenAndIDSN(remoteKey)
	_, localIDSN := keys.DeriveTokenAndIDSN(c.req.LocalKey)
	c.dsnBase = remoteIDSN
	c.ackBase = localIDSN
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checksum = c.req.Checksum || remote.Has(HandshakeChecksum)
	c.compress = c.cfg.Compress.Enable && remote.Has(HandshakeCompress)
}

func (c *Conn) writeHandshake(w io.Writer, h Handshake) error {
	b, err := AppendFrame(nil, Frame{Type: FrameHandshake, Handshake: h})
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	c.tx.Add(uint64(len(b)))
	return err
}

func readHandshake(r io.Reader) (Handshake, error) {
	f, err := ReadFrame(r)
	if err != nil {
		return Handshake{}, err
	}
	switch f.Type {
	case FrameHandshake:
		return f.Handshake, nil
	case FrameReset:
		return Handshake{}, errors.Errorf("reset during handshake: %w", errors.ErrConnectionReset)
	}
	return Handshake{}, errors.Errorf("unexpected %v frame during handshake: %w", f.Type, errors.ErrProtocolViolation)
}

func (c *Conn) readLoop(r io.Reader) error {
	for {
		f, err := ReadFrame(r)
		if err != nil {
			return c.readFailed(err)
		}
		switch f.Type {
		case FrameReset:
			if f.FastClose {
				c.fail(errors.ErrFastClose, mptcp.EventMustReset)
				return errors.ErrFastClose
			}
			c.fail(errors.ErrConnectionReset, mptcp.EventConnReset)
			return errors.ErrConnectionReset
		case FrameData:
			seg, err := c.decode(f)
			if err != nil {
				c.logger.Warnf(c.logCtx, "Invalid data frame: %v", err)
				c.fail(err, mptcp.EventProtocolError|mptcp.EventMustReset)
				return err
			}
			c.n.Receive(seg)
		default:
			err := errors.Errorf("unexpected %v frame: %w", f.Type, errors.ErrProtocolViolation)
			c.fail(err, mptcp.EventProtocolError|mptcp.EventMustReset)
			return err
		}
	}
}

func (c *Conn) readFailed(err error) error {
	c.mu.Lock()
	aborted := c.aborted
	c.mu.Unlock()
	switch {
	case aborted:
		return nil
	case err == io.EOF:
		c.mu.Lock()
		c.peerFIN = true
		disconnected := c.finSent
		c.mu.Unlock()
		ev := mptcp.EventCantRcvMore
		if disconnected {
			ev |= mptcp.EventDisconnected
		}
		c.update(ev, func(s *mptcp.PathStatus) { s.CloseWait = true })
		c.logger.Debugf(c.logCtx, "Peer closed subflow")
		return nil
	case errors.Is(err, errors.ErrProtocolViolation):
		c.fail(err, mptcp.EventProtocolError|mptcp.EventMustReset)
		return err
	}
	c.fail(errors.Errorf("read: %v: %w", err, errors.ErrConnectionReset), mptcp.EventConnReset)
	return err
}

// decodeは、データフレームをセグメントに変換します。
func (c *Conn) decode(f Frame) (*dss.Segment, error) {
	c.mu.Lock()
	checksum, compress := c.checksum, c.compress
	c.mu.Unlock()

	payload := f.Payload
	if compress && len(payload) > 0 {
		p, err := decompressPayload(payload)
		if err != nil {
			return nil, err
		}
		payload = p
	}
	seg := &dss.Segment{Payload: payload}
	if len(f.Option) == 0 {
		return seg, nil
	}
	opt, err := dss.UnmarshalOption(f.Option, c.dsnBase, c.ackBase, checksum)
	if err != nil {
		return nil, err
	}
	seg.Mapping = opt.Mapping
	seg.DataAck = opt.DataAck
	seg.HasDataAck = opt.HasDataAck
	if opt.HasDataAck {
		seg.Window = f.Window
	}
	seg.DSN64 = opt.DSN64
	if opt.Mapping != nil {
		c.dsnBase = opt.Mapping.DSN
	}
	if opt.HasDataAck {
		c.ackBase = opt.DataAck
	}
	return seg, nil
}

func (c *Conn) writeLoop(w net.Conn) error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case <-c.wake:
		}

		c.mu.Lock()
		queue := c.queue
		c.queue = nil
		fin := c.finQueued && !c.finSent
		aborted, fast := c.aborted, c.resetFast
		c.mu.Unlock()

		if aborted {
			c.writeReset(w, fast)
			return nil
		}
		for _, b := range queue {
			_, err := w.Write(b)
			c.queued.Add(-int64(len(b)))
			if err != nil {
				return c.writeFailed(err)
			}
			c.tx.Add(uint64(len(b)))
		}
		if !fin {
			continue
		}
		if cw, ok := w.(interface{ CloseWrite() error }); ok {
			if err := cw.CloseWrite(); err != nil {
				return c.writeFailed(err)
			}
		}
		c.mu.Lock()
		c.finSent = true
		disconnected := c.peerFIN
		c.mu.Unlock()
		if disconnected {
			c.update(mptcp.EventDisconnected, nil)
		}
		return nil
	}
}

func (c *Conn) writeFailed(err error) error {
	c.mu.Lock()
	aborted := c.aborted
	c.mu.Unlock()
	if aborted {
		return nil
	}
	c.fail(errors.Errorf("write: %v: %w", err, errors.ErrConnectionReset), mptcp.EventConnReset)
	return err
}

func (c *Conn) writeReset(w io.Writer, fastClose bool) {
	b, _ := AppendFrame(nil, Frame{Type: FrameReset, FastClose: fastClose})
	if _, err := w.Write(b); err != nil {
		c.logger.Debugf(c.logCtx, "Failed to send reset: %v", err)
	}
}

// updateは、状態を更新してからevを通知します。
//
// Abort後、またはEventDisconnectedを通知した後は何もせず偽を返却します。
func (c *Conn) update(ev mptcp.Event, f func(*mptcp.PathStatus)) bool {
	c.mu.Lock()
	if c.aborted || c.done {
		c.mu.Unlock()
		return false
	}
	if f != nil {
		f(&c.status)
	}
	if ev&mptcp.EventDisconnected != 0 {
		c.done = true
	}
	c.mu.Unlock()
	c.n.Notify(ev)
	return true
}

// failは、errを記録してevとEventDisconnectedを通知し、接続を閉じます。
func (c *Conn) fail(err error, ev mptcp.Event) {
	c.update(ev|mptcp.EventDisconnected, func(s *mptcp.PathStatus) {
		if s.Err == nil {
			s.Err = err
		}
		if errors.Is(err, errors.ErrFastClose) {
			s.FastClose = true
		}
	})
	c.mu.Lock()
	nc := c.nc
	c.mu.Unlock()
	if nc != nil {
		nc.Close()
	}
	c.cancel()
}

// Sendは、セグメントをフレームにして送信キューへ追加します。
func (c *Conn) Send(seg *dss.Segment) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted || c.finQueued || c.done || !c.status.Established {
		return 0, errors.ErrNotConnected
	}
	f := Frame{Type: FrameData, Payload: seg.Payload}
	if c.status.MPCapable {
		f.Option = seg.Option(c.checksum).Marshal()
		if seg.HasDataAck {
			f.Window = seg.Window
		}
	}
	if c.compress && len(seg.Payload) > 0 {
		p, err := compressPayload(seg.Payload, c.cfg.Compress.level())
		if err != nil {
			return 0, err
		}
		f.Payload = p
	}
	b, err := AppendFrame(nil, f)
	if err != nil {
		return 0, err
	}
	if c.queued.Load()+int64(len(b)) > int64(c.cfg.MaxQueuedBytes) {
		return 0, errors.Errorf("send queue full: %w", errors.ErrResourceExhausted)
	}
	c.queued.Add(int64(len(b)))
	c.queue = append(c.queue, b)
	c.notifyWriter()
	return len(seg.Payload), nil
}

func (c *Conn) notifyWriter() {
	ch.TrySend(c.wake, struct{}{})
}

// Closeは、送信キューを送り終えた後にFINを送信します。
//
// ピアからもFINを受信した時点でEventDisconnectedを通知します。
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted || c.finQueued {
		return nil
	}
	c.finQueued = true
	if c.nc == nil || !c.status.Established {
		// 接続前のCloseは接続を中止する
		c.aborted = true
		c.cancel()
		if c.nc != nil {
			c.nc.Close()
		}
		if !c.done {
			c.done = true
			c.eg.Go(func() error {
				c.n.Notify(mptcp.EventDisconnected)
				return nil
			})
		}
		return nil
	}
	c.notifyWriter()
	return nil
}

// Abortは、リセットフレームを送信して接続を閉じます。Abort後は通知を行いません。
func (c *Conn) Abort(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.aborted {
		return
	}
	c.aborted = true
	c.resetFast = errors.Is(err, errors.ErrFastClose)
	if c.status.Err == nil {
		c.status.Err = err
	}
	if c.nc == nil || !c.status.Established {
		c.cancel()
		if c.nc != nil {
			c.nc.Close()
		}
		return
	}
	_ = c.nc.SetDeadline(time.Now().Add(abortLinger))
	c.notifyWriter()
	c.logger.Debugf(c.logCtx, "Subflow aborted: %v", err)
}

func (c *Conn) CurrentInterface() nic.InterfaceID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iface
}

func (c *Conn) Status() mptcp.PathStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Conn) Metrics() metrics.Provider {
	return c.metrics
}

// SetOptionは、ソケットオプションを設定します。接続前に設定したものは接続時に適用します。
func (c *Conn) SetOption(opt mptcp.SocketOption) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.options = append(c.options, opt)
	if c.nc == nil {
		return nil
	}
	return setSockopt(c.nc, opt)
}

// RxBytesは、受信したバイト数を返却します。
func (c *Conn) RxBytes() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rx == nil {
		return 0
	}
	return c.rx.ReadBytes()
}

// TxBytesは、送信したバイト数を返却します。
func (c *Conn) TxBytes() uint64 {
	return c.tx.Load()
}
