package nic

import (
	"context"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/internal/ch"
	"github.com/aptpod/mptcp-go/log"
)

// Managerは、インターフェース一覧を保持し、変更を購読者へ通知します。
//
// Managerはセッションが参照するインターフェース機能(従量課金判定、ファミリー判定、NAT64合成)を提供します。
type Manager struct {
	interfaces    *atomic.Value // []Interface
	subscribers   []chan []Interface
	subscribersMu sync.Mutex
	changeEventCh chan []Interface
	logger        log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// ManagerOptionは、Managerのオプションです。
type ManagerOption func(*Manager)

// WithManagerLoggerは、ロガーを設定します。
func WithManagerLogger(l log.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

// OpenManagerは、初期インターフェース一覧を持つManagerを開始します。
func OpenManager(initial []Interface, opts ...ManagerOption) *Manager {
	var ifs atomic.Value
	ifs.Store(slices.Clone(initial))

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		interfaces:    &ifs,
		changeEventCh: make(chan []Interface, 8),
		logger:        log.NewNop(),

		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.start()
	return m
}

func (m *Manager) Close() {
	select {
	case <-m.ctx.Done():
		return
	default:
	}
	m.cancel()
	<-m.done
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	for _, c := range m.subscribers {
		close(c)
	}
	m.subscribers = nil
}

// Interfacesは、現在のインターフェース一覧を返却します。
func (m *Manager) Interfaces() []Interface {
	return slices.Clone(m.interfaces.Load().([]Interface))
}

// Lookupは、idに対応するインターフェースを返却します。
func (m *Manager) Lookup(id InterfaceID) (Interface, bool) {
	for _, i := range m.interfaces.Load().([]Interface) {
		if i.ID == id {
			return i, true
		}
	}
	return Interface{}, false
}

// Updateは、インターフェース一覧を置き換え、購読者へ通知します。
func (m *Manager) Update(ifs []Interface) error {
	if m.ctx.Err() != nil {
		return errors.Errorf("nic manager already closed")
	}
	select {
	case m.changeEventCh <- slices.Clone(ifs):
		return nil
	case <-m.ctx.Done():
		return errors.Errorf("nic manager already closed")
	default:
		return errors.Errorf("failed to update interfaces")
	}
}

// IsMeteredは、idが従量課金のインターフェースかどうかを返却します。
func (m *Manager) IsMetered(id InterfaceID) bool {
	i, ok := m.Lookup(id)
	return ok && i.Metered
}

// SupportsFamilyは、idがfのアドレスで接続できるかを返却します。
func (m *Manager) SupportsFamily(id InterfaceID, f Family) bool {
	i, ok := m.Lookup(id)
	return ok && i.Supports(f)
}

// SynthesizeAddressは、IPv6のみのインターフェースでIPv4宛先へ到達するためのNAT64アドレスを合成します。
func (m *Manager) SynthesizeAddress(f Family, id InterfaceID, addr netip.Addr) (netip.Addr, bool) {
	if f != FamilyIPv6 || FamilyOf(addr) != FamilyIPv4 {
		return netip.Addr{}, false
	}
	i, ok := m.Lookup(id)
	if !ok || !i.HasNAT64() {
		return netip.Addr{}, false
	}
	return SynthesizeNAT64(i.NAT64Prefix, addr)
}

func (m *Manager) subscribe() chan []Interface {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	c := make(chan []Interface, 1)
	m.subscribers = append(m.subscribers, c)
	return c
}

func (m *Manager) unsubscribe(c chan []Interface) {
	m.subscribersMu.Lock()
	defer m.subscribersMu.Unlock()
	m.subscribers = slices.DeleteFunc(m.subscribers, func(v chan []Interface) bool {
		return v == c
	})
}

// Subscribeは、インターフェース一覧の変更を受け取るチャネルを返却します。
//
// ctxがキャンセルされるか、Managerがクローズされるとチャネルはクローズされます。
func (m *Manager) Subscribe(ctx context.Context) <-chan []Interface {
	c := m.subscribe()
	resCh := make(chan []Interface, 1)
	go func() {
		defer close(resCh)
		defer m.unsubscribe(c)
		for {
			ifs, ok := ch.Recv(ctx, c)
			if !ok || !ch.Send(ctx, resCh, ifs) {
				return
			}
		}
	}()
	return resCh
}

func (m *Manager) start() {
	defer close(m.done)
	for {
		select {
		case <-m.ctx.Done():
			return
		case ifs := <-m.changeEventCh:
			m.interfaces.Store(ifs)
			m.subscribersMu.Lock()
			subs := slices.Clone(m.subscribers)
			m.subscribersMu.Unlock()
			for _, c := range subs {
				if !ch.TrySend(c, ifs) {
					m.logger.Warnf(m.ctx, "Failed to send interface change event to a slow subscriber")
				}
			}
		}
	}
}
