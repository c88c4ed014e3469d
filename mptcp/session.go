package mptcp

import (
	"context"
	"io"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/aptpod/mptcp-go/dss"
	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/segment"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/policy"
	"github.com/aptpod/mptcp-go/reinject"
	"github.com/aptpod/mptcp-go/scheduler"
	uuid "github.com/google/uuid"
)

// tokenRegistryは、ホスト内で使用中のトークンを管理します。
type tokenRegistry interface {
	claim(tok keys.Token, s *Session) bool
	release(tok keys.Token, s *Session)
}

// pendingItemは、ロックを取得できなかったアップコールです。
type pendingItem struct {
	id  SubflowID
	ev  Event
	seg *dss.Segment
}

// Sessionは、アプリケーションから見える1本のコネクションと、それを構成するサブフローの集合です。
//
// 全ての状態は1つのロックで保護します。サブフローからのアップコールはキューへ積み、
// ロックを保持しているゴルーチンが解放前に処理します。
type Session struct {
	id          uuid.UUID
	serviceType policy.ServiceType
	cfg         Config
	logger      log.Logger
	selector    scheduler.Selector
	tokens      tokenRegistry
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State
	flags sessionFlag
	err   error

	localKey   keys.Key
	localToken keys.Token
	localIDSN  uint64
	remoteKey  keys.Key
	remoteIDSN uint64
	checksum   bool
	dsnHigh    uint32

	sndUna    uint64
	sndNxt    uint64
	sndMax    uint64
	sndBuf    []byte // sndUnaからのバイト列(DATA_FINを含まない)
	finQueued bool
	finDSN    uint64
	// sndAdvは、ピアが通知した受信ウィンドウの右端です。縮めません。
	sndAdv uint64
	// finRetransmitは、DATA_FINを運んだサブフローを失い、送り直す必要があることを表します。
	finRetransmit bool

	rcvNxt      uint64
	rcvAdv      uint64
	rcvAdvSent  uint64 // ピアへ最後に通知したrcvAdv
	reassembler *segment.Reassembler
	readBuf     []byte
	peerFIN     bool

	subflows     []*subflow
	activeID     SubflowID
	connidLast   SubflowID
	addridLast   uint8
	numMPCapable int
	lastErr      error

	reinject reinject.Queue

	dst        netip.AddrPort
	dstV4      netip.AddrPort
	dstV6      netip.AddrPort
	timeTarget time.Time
	interfaces []policy.Interface
	ifKnown    bool
	ifStats    map[nic.InterfaceID]*interfaceStats
	options    []SocketOption

	gcTicks        int
	handleReleased bool
	destroyed      bool

	needOutput   bool
	needEvaluate bool
	deferred     []func()

	pendingMu sync.Mutex
	pending   []pendingItem
}

type interfaceStats struct {
	metered  bool
	txBytes  uint64
	rxBytes  uint64
	switches uint32
}

// NewSessionは、CLOSED状態のセッションを生成します。
func NewSession(st policy.ServiceType, opts ...Option) (*Session, error) {
	return newSession(st, nil, opts...)
}

func newSession(st policy.ServiceType, tokens tokenRegistry, opts ...Option) (*Session, error) {
	if st > policy.ServiceTypePureHandover {
		return nil, errors.Errorf("unknown service type %d: %w", st, errors.ErrState)
	}
	cfg := DefaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Dialer == nil {
		return nil, errors.New("mptcp: dialer is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.Interfaces == nil {
		cfg.Interfaces = nopInterfaces{}
	}
	if cfg.Advisor == nil {
		cfg.Advisor = nopAdvisor{}
	}
	if cfg.EventHandler == nil {
		cfg.EventHandler = nopSessionEventHandler{}
	}

	id := uuid.New()
	ctx, cancel := context.WithCancel(log.WithTrackSessionID(context.Background(), id.String()))
	s := &Session{
		id:          id,
		serviceType: st,
		cfg:         cfg,
		logger:      cfg.Logger,
		selector:    scheduler.New(cfg.Scheduler, st),
		tokens:      tokens,
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateClosed,
		checksum:    cfg.Checksum,
		reassembler: segment.NewReassembler(0),
		rcvAdv:      uint64(cfg.ReceiveBufferSize),
		sndAdv:      defaultPeerWindow,
		ifStats:     make(map[nic.InterfaceID]*interfaceStats),
		gcTicks:     cfg.GCTicks,
	}
	if cfg.FirstParty {
		s.flags |= flagFirstParty
	}
	return s, nil
}

// IDは、セッションIDを返却します。
func (s *Session) ID() uuid.UUID {
	return s.id
}

// ServiceTypeは、生成時に指定したサービスタイプを返却します。
func (s *Session) ServiceType() policy.ServiceType {
	return s.serviceType
}

// Stateは、現在の状態を返却します。
func (s *Session) State() State {
	s.mu.Lock()
	defer s.unlock()
	return s.state
}

// Errは、セッションを終了させたエラーを返却します。
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.unlock()
	return s.err
}

// LocalTokenは、ローカルのトークンを返却します。鍵の生成前は0です。
func (s *Session) LocalToken() keys.Token {
	s.mu.Lock()
	defer s.unlock()
	return s.localToken
}

// EstablishFirstPathは、CLOSED状態のセッションに最初のサブフローを追加して接続を開始します。
//
// 接続の完了はサブフローからのEventConnectedで確定します。
// トークンはセッションのロックを取得する前に確保します。
func (s *Session) EstablishFirstPath(ctx context.Context, dst netip.AddrPort) (SubflowID, error) {
	key, err := s.newLocalKey()
	if err != nil {
		return NoSubflow, err
	}

	s.mu.Lock()
	defer s.unlock()

	if s.state != StateClosed || s.destroyed {
		s.releaseToken(key)
		return NoSubflow, errors.Errorf("establish in %v: %w", s.state, errors.ErrState)
	}
	if len(s.subflows) != 0 {
		s.releaseToken(key)
		return NoSubflow, errors.Errorf("first path already in progress: %w", errors.ErrState)
	}
	if err := validDestination(dst); err != nil {
		s.releaseToken(key)
		return NoSubflow, err
	}

	prevKey := s.localKey
	s.localKey = key
	sf, err := s.addSubflowLocked(ctx, netip.AddrPort{}, dst, nic.NoInterface, true)
	if err != nil {
		s.localKey = prevKey
		s.releaseToken(key)
		return NoSubflow, err
	}
	s.commitLocalKey(key)
	s.dst = dst
	s.setDestination(dst)
	return sf.id, nil
}

// AddSubflowは、確立済みのセッションにサブフローを追加します。
//
// dstがゼロ値の場合は最初のサブフローの宛先を使います。
// JOIN_READYになる前に追加したサブフローは、準備が整った時点で接続を開始します。
// ifScopeを指定した場合は、経路選択のポリシーが追加を許すインターフェースに限ります。
func (s *Session) AddSubflow(ctx context.Context, src, dst netip.AddrPort, ifScope nic.InterfaceID) (SubflowID, error) {
	var adv policy.Advisory
	if ifScope != nic.NoInterface {
		adv = s.cfg.Advisor.UnmeteredUnusable(s.cfg.FirstParty, s.serviceType)
	}
	s.mu.Lock()
	defer s.unlock()

	if !dst.IsValid() {
		dst = s.dst
	}
	if ifScope != nic.NoInterface && s.okToCreate() && !s.policyAllows(ifScope, adv) {
		return NoSubflow, errors.Errorf("interface %d is not a %v candidate: %w", ifScope, s.serviceType, errors.ErrState)
	}
	sf, err := s.addSubflowChecked(ctx, src, dst, ifScope)
	if err != nil {
		return NoSubflow, err
	}
	return sf.id, nil
}

func (s *Session) addSubflowChecked(ctx context.Context, src, dst netip.AddrPort, ifScope nic.InterfaceID) (*subflow, error) {
	switch {
	case s.okToCreate():
		return s.addSubflowLocked(ctx, src, dst, ifScope, false)
	case s.destroyed || s.state < StateEstablished || s.flags&flagFallback != 0:
		return nil, errors.Errorf("add subflow in %v: %w", s.state, errors.ErrState)
	}
	return nil, errors.Errorf("add subflow in %v: %w", s.state, errors.ErrNotConnected)
}

// addSubflowLockedは、サブフローを割り当てて接続を開始します。エラーの場合はセッションを変更しません。
func (s *Session) addSubflowLocked(ctx context.Context, src, dst netip.AddrPort, ifScope nic.InterfaceID, initial bool) (*subflow, error) {
	if len(s.subflows) >= s.cfg.MaxSubflows {
		return nil, errors.Errorf("%d subflows: %w", len(s.subflows), errors.ErrResourceExhausted)
	}
	if err := validDestination(dst); err != nil {
		return nil, err
	}
	family := nic.FamilyOf(dst.Addr())
	if src.IsValid() && nic.FamilyOf(src.Addr()) != family {
		return nil, errors.Errorf("source %v for %v: %w", src, dst, errors.ErrAddress)
	}
	if ifScope != nic.NoInterface && !s.cfg.Interfaces.SupportsFamily(ifScope, family) {
		return nil, errors.Errorf("interface %d does not support %v: %w", ifScope, family, errors.ErrAddress)
	}

	connid, addrid := s.connidLast, s.addridLast
	sf := newSubflow(s.nextSubflowID(), src, dst, ifScope, s.checksum)
	if initial {
		sf.flags |= SubflowInitial
	} else {
		sf.localAddrID = s.nextAddrID()
	}
	s.subflows = append(s.subflows, sf)

	if !initial && s.flags&flagJoinReady == 0 {
		sf.flags |= SubflowConnectPending
		s.logger.Debugf(s.subflowCtx(sf), "Subflow to %v pending until join ready", dst)
		return sf, nil
	}
	if err := s.connect(ctx, sf); err != nil {
		s.detach(sf)
		s.connidLast, s.addridLast = connid, addrid
		return nil, err
	}
	return sf, nil
}

func (s *Session) connect(ctx context.Context, sf *subflow) error {
	req := DialRequest{
		SessionID:   s.id,
		SubflowID:   sf.id,
		Source:      sf.src,
		Destination: sf.dst,
		Interface:   sf.ifScope,
		Initial:     sf.flags.Has(SubflowInitial),
		LocalKey:    s.localKey,
		RemoteKey:   s.remoteKey,
		LocalAddrID: sf.localAddrID,
		Backup:      sf.ifScope != nic.NoInterface && s.cfg.Interfaces.IsMetered(sf.ifScope) && s.needBackup(),
		Checksum:    s.checksum,

		ReceiveWindow: windowSize(uint64(s.cfg.ReceiveBufferSize)),
	}
	if s.remoteKey != 0 {
		req.RemoteToken, _ = keys.DeriveTokenAndIDSN(s.remoteKey)
	}
	sf.flags |= SubflowConnecting
	conn, err := s.cfg.Dialer.Dial(ctx, req, &notifier{s: s, id: sf.id})
	if err != nil {
		sf.flags &^= SubflowConnecting
		return errors.Errorf("dial %v: %w", sf.dst, err)
	}
	sf.conn = conn
	sf.path = scheduler.NewPathInfo(uint32(sf.id), sf.metrics())
	if setter, ok := conn.(OptionSetter); ok {
		for _, opt := range s.options {
			if err := setter.SetOption(opt); err != nil {
				s.logger.Warnf(s.subflowCtx(sf), "Failed to replay socket option %+v: %v", opt, err)
			}
		}
	}
	s.logger.Infof(s.subflowCtx(sf), "Subflow connecting to %v via interface %d", sf.dst, sf.ifScope)
	return nil
}

// RemoveSubflowは、サブフローを切断します。未確認のデータは再送キューへ移します。
func (s *Session) RemoveSubflow(id SubflowID) error {
	s.mu.Lock()
	defer s.unlock()

	sf := s.lookup(id)
	if sf == nil {
		return errors.Errorf("subflow %d not found: %w", id, errors.ErrState)
	}
	s.reinjectFrom(sf)
	s.disconnectSubflow(sf)
	s.needOutput = true
	return nil
}

// Sendは、pを送信バッファへ追加し、送信を試みます。
//
// 送信バッファに空きがない場合は0を返却します。
func (s *Session) Send(p []byte) (int, error) {
	s.mu.Lock()
	defer s.unlock()

	if s.err != nil {
		return 0, s.err
	}
	if s.finQueued || s.handleReleased || s.state >= StateTimeWait {
		return 0, errors.ErrSessionClosed
	}
	n := min(len(p), s.cfg.SendBufferSize-len(s.sndBuf))
	if n <= 0 {
		return 0, nil
	}
	s.sndBuf = append(s.sndBuf, p[:n]...)
	s.sndMax += uint64(n)
	s.needOutput = true
	return n, nil
}

// OutputStepは、送信可能なデータをサブフローへ渡し、渡したバイト数を返却します。
func (s *Session) OutputStep() int {
	s.mu.Lock()
	defer s.unlock()
	s.needOutput = false
	return s.output()
}

// Readは、順序通りに受信したデータをpへコピーします。
//
// Readはブロックしません。読めるデータがない場合は0を返却します。
// ピアのDATA_FINまで読み終えた場合はio.EOFを返却します。
func (s *Session) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.unlock()

	if len(s.readBuf) > 0 {
		n := copy(p, s.readBuf)
		s.readBuf = s.readBuf[n:]
		if len(s.readBuf) == 0 {
			s.readBuf = nil
		}
		s.updateWindow()
		s.windowUpdate()
		return n, nil
	}
	if s.peerFIN {
		return 0, io.EOF
	}
	if s.err != nil {
		return 0, s.err
	}
	return 0, nil
}

// Readableは、Readで読めるバイト数を返却します。
func (s *Session) Readable() int {
	s.mu.Lock()
	defer s.unlock()
	return len(s.readBuf)
}

// Closeは、アプリケーションのハンドルを解放し、DATA_FINによるクローズを開始します。
//
// セッションはサブフローが全てなくなった後にGCで破棄されます。
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.unlock()

	if s.handleReleased {
		return nil
	}
	s.handleReleased = true
	s.gcTicks = s.cfg.GCTicks

	switch s.state {
	case StateClosed:
		s.state = StateTerminated
		for _, sf := range s.subflows {
			s.abortSubflow(sf, errors.ErrSessionClosed)
		}
		return nil
	case StateEstablished:
		s.state = StateFinWait1
	case StateCloseWait:
		s.state = StateLastAck
	default:
		return nil
	}
	s.finQueued = true
	s.finDSN = s.sndMax
	s.sndMax++
	s.needOutput = true
	s.logger.Infof(s.ctx, "Session closing in %v", s.state)
	return nil
}

// SetOptionは、全てのサブフローへソケットオプションを設定し、以降に追加するサブフローにも適用します。
func (s *Session) SetOption(opt SocketOption) error {
	s.mu.Lock()
	defer s.unlock()

	i := slices.IndexFunc(s.options, func(o SocketOption) bool {
		return o.Level == opt.Level && o.Name == opt.Name
	})
	if i < 0 {
		s.options = append(s.options, opt)
	} else {
		s.options[i] = opt
	}

	var errs []error
	for _, sf := range s.subflows {
		setter, ok := sf.conn.(OptionSetter)
		if !ok {
			continue
		}
		if err := setter.SetOption(opt); err != nil {
			errs = append(errs, &errors.SubflowError{ID: uint32(sf.id), Err: err})
		}
	}
	return errors.Join(errs...)
}

// GrantAccessは、従量課金の経路の利用許可の結果を設定します。
func (s *Session) GrantAccess(granted bool) {
	s.mu.Lock()
	defer s.unlock()

	s.flags &^= flagAccessAsked
	if granted {
		s.flags |= flagAccessGranted
	} else {
		s.flags &^= flagAccessGranted
	}
	s.needEvaluate = true
}

// UpdateInterfacesは、利用できるインターフェースの一覧を更新し、経路を再評価します。
func (s *Session) UpdateInterfaces(ifs []nic.Interface) {
	s.mu.Lock()
	defer s.unlock()

	prev := s.interfaces
	s.interfaces = make([]policy.Interface, 0, len(ifs))
	metered := false
	for _, itf := range ifs {
		pi := policy.Interface{
			ID:       itf.ID,
			Metered:  itf.Metered,
			HasV4:    itf.HasV4,
			HasV6:    itf.HasV6,
			HasNAT64: itf.HasNAT64(),
		}
		for _, p := range prev {
			if p.ID == itf.ID {
				pi.NoMPTCPSupport = p.NoMPTCPSupport
			}
		}
		metered = metered || itf.Metered
		s.interfaces = append(s.interfaces, pi)
	}
	if metered {
		s.flags &^= flagTriggeredCell
	}
	s.ifKnown = true
	s.needEvaluate = true
}

// SetTimeTargetは、TargetBasedで非従量課金の経路を維持する期限を設定します。
func (s *Session) SetTimeTarget(t time.Time) {
	s.mu.Lock()
	defer s.unlock()
	s.timeTarget = t
	s.needEvaluate = true
}

// AddRemoteAddressは、ピアの別ファミリーのアドレスを登録します。
func (s *Session) AddRemoteAddress(addr netip.AddrPort) error {
	s.mu.Lock()
	defer s.unlock()

	if err := validDestination(addr); err != nil {
		return err
	}
	s.setDestination(addr)
	s.needEvaluate = true
	return nil
}

// Subflowsは、サブフローの状態を返却します。
func (s *Session) Subflows() []Subflow {
	s.mu.Lock()
	defer s.unlock()

	res := make([]Subflow, 0, len(s.subflows))
	for _, sf := range s.subflows {
		res = append(res, sf.snapshot())
	}
	return res
}

// OnSubflowEventは、サブフローのイベントを受け付けます。
//
// ロックを取得できない場合はキューへ積み、ロックを保持しているゴルーチンに処理を任せます。
func (s *Session) OnSubflowEvent(id SubflowID, ev Event) {
	s.enqueue(pendingItem{id: id, ev: ev})
	if s.mu.TryLock() {
		s.unlock()
	}
}

func (s *Session) onSegment(id SubflowID, seg *dss.Segment) {
	s.enqueue(pendingItem{id: id, seg: seg})
	if s.mu.TryLock() {
		s.unlock()
	}
}

func (s *Session) enqueue(it pendingItem) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending = append(s.pending, it)
}

func (s *Session) takePending() []pendingItem {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	items := s.pending
	s.pending = nil
	return items
}

func (s *Session) hasPending() bool {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending) > 0
}

// postは、ロック下からサブフローへイベントを送ります。イベントはロック解放前に処理します。
func (s *Session) post(id SubflowID, ev Event) {
	s.enqueue(pendingItem{id: id, ev: ev})
}

// unlockは、キューに積まれたイベントと送信を処理してからロックを解放します。
//
// アドバイザやアプリケーションへの呼び出しはロックを解放した状態で行い、
// 経路の再評価が必要であれば再度ロックを取得します。
func (s *Session) unlock() {
	for {
		s.drainLocked()
		s.checkInvariants()
		calls := s.deferred
		s.deferred = nil
		evaluate := s.needEvaluate && !s.destroyed
		s.needEvaluate = false
		s.mu.Unlock()

		for _, f := range calls {
			f()
		}
		if evaluate {
			adv := s.cfg.Advisor.UnmeteredUnusable(s.cfg.FirstParty, s.serviceType)
			s.mu.Lock()
			s.applyPolicy(adv)
			continue
		}
		if !s.hasPending() || !s.mu.TryLock() {
			return
		}
	}
}

func (s *Session) drainLocked() {
	for {
		if items := s.takePending(); len(items) > 0 {
			for _, it := range items {
				sf := s.lookup(it.id)
				if sf == nil {
					continue
				}
				if it.seg != nil {
					s.input(sf, it.seg)
				}
				if it.ev != 0 {
					s.handleEvents(sf, it.ev)
				}
			}
			continue
		}
		if s.needOutput {
			s.needOutput = false
			s.output()
			continue
		}
		return
	}
}

func (s *Session) handleEvents(sf *subflow, ev Event) {
	s.logger.Debugf(s.subflowCtx(sf), "Subflow events %v flags %v", ev, sf.flags)
	switch s.dispatch(sf, ev) {
	case resultDelete:
		s.deleteSubflow(sf)
	case resultDisconnectFallback:
		s.fallbackOthers(sf)
	case resultConnectPending:
		s.connectPending()
	}
}

func (s *Session) checkInvariants() {
	una, nxt, smax := s.sndUna, s.sndNxt, s.sndMax
	if int64(nxt-una) < 0 || int64(smax-nxt) < 0 {
		panic(errors.Errorf("mptcp: send sequence out of order: una=%d nxt=%d max=%d", una, nxt, smax))
	}
	if int64(s.rcvAdv-s.rcvNxt) < 0 {
		panic(errors.Errorf("mptcp: rcv_nxt %d beyond rcv_adv %d", s.rcvNxt, s.rcvAdv))
	}
	if len(s.subflows) > s.cfg.MaxSubflows {
		panic(errors.Errorf("mptcp: %d subflows exceed limit %d", len(s.subflows), s.cfg.MaxSubflows))
	}
}

func (s *Session) lookup(id SubflowID) *subflow {
	for _, sf := range s.subflows {
		if sf.id == id {
			return sf
		}
	}
	return nil
}

func (s *Session) detach(sf *subflow) {
	s.subflows = slices.DeleteFunc(s.subflows, func(o *subflow) bool { return o == sf })
	if s.activeID == sf.id {
		s.activeID = NoSubflow
	}
}

func (s *Session) nextSubflowID() SubflowID {
	for {
		s.connidLast++
		if s.connidLast == NoSubflow || s.connidLast == AnySubflow {
			continue
		}
		if s.lookup(s.connidLast) == nil {
			return s.connidLast
		}
	}
}

func (s *Session) nextAddrID() uint8 {
	for {
		s.addridLast++
		if s.addridLast != 0 {
			return s.addridLast
		}
	}
}

// newLocalKeyは、トークンが他のセッションと重複しない鍵を生成します。ロックを保持せずに呼び出してください。
func (s *Session) newLocalKey() (keys.Key, error) {
	if s.tokens == nil {
		return keys.NewKey()
	}
	return keys.NewUniqueKey(func(tok keys.Token) bool {
		return !s.tokens.claim(tok, s)
	})
}

// releaseTokenは、鍵のトークンをロック解放後に返却します。
func (s *Session) releaseToken(k keys.Key) {
	if s.tokens == nil {
		return
	}
	tokens := s.tokens
	tok, _ := keys.DeriveTokenAndIDSN(k)
	s.deferred = append(s.deferred, func() { tokens.release(tok, s) })
}

// commitLocalKeyは、ローカルの鍵からトークンと初期DSNを確定し、送信シーケンスを初期化します。
func (s *Session) commitLocalKey(k keys.Key) {
	s.localKey = k
	s.localToken, s.localIDSN = keys.DeriveTokenAndIDSN(k)
	s.resetSendSequence(s.localIDSN + 1)
}

// resetSendSequenceは、送信前のバッファを保ったまま送信シーケンスの起点を変更します。
func (s *Session) resetSendSequence(una uint64) {
	buffered := s.sndMax - s.sndUna
	wnd := s.sndAdv - s.sndUna
	s.sndUna, s.sndNxt, s.sndMax = una, una, una+buffered
	s.sndAdv = una + wnd
	if s.finQueued {
		s.finDSN = una + uint64(len(s.sndBuf))
	}
	s.dsnHigh = uint32(una >> 32)
}

// setRemoteKeyは、ピアの鍵から受信シーケンスを初期化します。
func (s *Session) setRemoteKey(k keys.Key) {
	s.remoteKey = k
	_, s.remoteIDSN = keys.DeriveTokenAndIDSN(k)
	s.rcvNxt = s.remoteIDSN + 1
	s.rcvAdv = s.rcvNxt
	s.reassembler = segment.NewReassembler(s.rcvNxt)
	s.updateWindow()
	s.rcvAdvSent = s.rcvAdv
}

func (s *Session) setChecksum(enabled bool) {
	s.checksum = enabled
	for _, sf := range s.subflows {
		sf.receiver.SetChecksum(enabled)
	}
}

func (s *Session) setDestination(addr netip.AddrPort) {
	switch nic.FamilyOf(addr.Addr()) {
	case nic.FamilyIPv4:
		s.dstV4 = addr
	case nic.FamilyIPv6:
		s.dstV6 = addr
	}
}

func validDestination(dst netip.AddrPort) error {
	if !dst.IsValid() || dst.Port() == 0 || dst.Addr().IsUnspecified() || dst.Addr().IsMulticast() {
		return errors.Errorf("destination %v: %w", dst, errors.ErrAddress)
	}
	return nil
}

// disconnectSubflowは、サブフローをFINで切断します。切断の完了はEventDisconnectedで通知されます。
func (s *Session) disconnectSubflow(sf *subflow) {
	if sf.flags.HasAny(SubflowDisconnecting | SubflowDisconnected) {
		return
	}
	sf.flags |= SubflowDisconnecting
	if sf.conn == nil {
		s.post(sf.id, EventDisconnected)
		return
	}
	if err := sf.conn.Close(); err != nil {
		s.logger.Warnf(s.subflowCtx(sf), "Failed to close subflow: %v", err)
	}
}

// abortSubflowは、サブフローをリセットします。
func (s *Session) abortSubflow(sf *subflow, err error) {
	if sf.flags.Has(SubflowDisconnected) {
		return
	}
	if sf.err == nil {
		sf.err = &errors.SubflowError{ID: uint32(sf.id), Err: err}
	}
	sf.flags |= SubflowDisconnecting
	if sf.conn != nil {
		sf.conn.Abort(err)
	}
	s.post(sf.id, EventDisconnected)
}

// deleteSubflowは、サブフローをセッションから外します。
//
// 最後のサブフローを失った場合、新しいサブフローを追加できなければセッションを終了します。
func (s *Session) deleteSubflow(sf *subflow) {
	if !sf.flags.HasAny(SubflowDisconnecting|SubflowDisconnected) && sf.conn != nil {
		sf.conn.Abort(errors.ErrConnectionReset)
	}
	sf.flags |= SubflowDisconnected
	if sf.flags.Has(subflowMPCapCounted) {
		sf.flags &^= subflowMPCapCounted
		s.numMPCapable--
	}
	s.detach(sf)
	if sf.err != nil {
		s.lastErr = sf.err
	}
	s.needEvaluate = true
	s.logger.Infof(s.subflowCtx(sf), "Subflow deleted: %v", sf.err)

	if len(s.subflows) != 0 {
		return
	}
	switch {
	case s.state >= StateTimeWait:
	case s.state == StateClosed:
		s.drop(errOr(sf.err, errors.ErrNotConnected))
	case s.handleReleased && (s.state == StateFinWait2 || s.flags&flagFallback != 0):
		s.state = StateTimeWait
	case s.flags&flagFallback != 0 || s.state >= StateCloseWait:
		s.drop(errOr(sf.err, errors.ErrNotConnected))
	default:
		s.flags |= flagOrphaned
	}
}

// dropは、セッションをエラーで終了させます。
func (s *Session) drop(err error) {
	if s.state == StateTerminated && s.err != nil {
		return
	}
	if s.err == nil {
		s.err = err
	}
	s.state = StateTerminated
	s.logger.Warnf(s.ctx, "Session terminated: %v", s.err)
	for _, sf := range s.subflows {
		s.abortSubflow(sf, s.err)
	}
	s.notify(SessionEventTerminated, NoSubflow, s.err)
}

// enterTimeWaitは、双方のDATA_FINが確認できた状態へ遷移し、サブフローを切断します。
func (s *Session) enterTimeWait() {
	s.state = StateTimeWait
	for _, sf := range s.subflows {
		s.disconnectSubflow(sf)
	}
}

// notifyは、アプリケーションへのイベントをロック解放後に通知します。
func (s *Session) notify(kind SessionEventKind, id SubflowID, err error) {
	ev := &SessionEvent{SessionID: s.id, Kind: kind, Subflow: id, Err: err}
	h := s.cfg.EventHandler
	s.deferred = append(s.deferred, func() { h.OnSessionEvent(ev) })
}

func (s *Session) subflowCtx(sf *subflow) context.Context {
	return log.WithTrackSubflowID(s.ctx, uint32(sf.id))
}

func (s *Session) refs() int {
	n := len(s.subflows)
	if !s.handleReleased {
		n++
	}
	return n
}

// gcは、GCの1回分の処理を行います。参照がなくなり破棄した場合は真を返却します。
//
// ロックを取得できない場合は何もしません。
func (s *Session) gc() bool {
	if !s.mu.TryLock() {
		return false
	}
	defer s.unlock()

	if s.refs() > 0 {
		if s.state >= StateFinWait1 && s.gcTicks > 0 {
			s.gcTicks--
			if s.gcTicks == 0 {
				s.logger.Infof(s.ctx, "Forcing %d subflows to disconnect", len(s.subflows))
				for _, sf := range s.subflows {
					s.abortSubflow(sf, errors.ErrTimeout)
				}
			}
		}
		return false
	}
	if s.state < StateTimeWait {
		s.state = StateTimeWait
	}
	s.destroyLocked()
	return true
}

// shutdownは、サブフローを全てリセットしてセッションを破棄します。
func (s *Session) shutdown() error {
	s.mu.Lock()
	defer s.unlock()

	s.handleReleased = true
	if s.err == nil && s.state < StateTimeWait {
		s.drop(errors.ErrSessionClosed)
	}
	for _, sf := range s.subflows {
		s.abortSubflow(sf, errors.ErrSessionClosed)
	}
	s.drainLocked()
	if len(s.subflows) != 0 {
		return errors.Errorf("session %v: %d subflows remain", s.id, len(s.subflows))
	}
	s.destroyLocked()
	return nil
}

func (s *Session) destroyLocked() {
	if len(s.subflows) != 0 {
		panic(errors.Errorf("mptcp: destroying session %v with %d subflows", s.id, len(s.subflows)))
	}
	if s.destroyed {
		return
	}
	s.destroyed = true
	s.state = StateTerminated
	s.needEvaluate = false
	s.cancel()
	if s.localToken != 0 {
		s.releaseToken(s.localKey)
	}
}

func errOr(err, def error) error {
	if err != nil {
		return err
	}
	return def
}

// notifierは、Connectionからのアップコールをセッションへ渡します。
type notifier struct {
	s  *Session
	id SubflowID
}

func (n *notifier) Notify(ev Event) {
	n.s.OnSubflowEvent(n.id, ev)
}

func (n *notifier) Receive(seg *dss.Segment) {
	n.s.onSegment(n.id, seg)
}
