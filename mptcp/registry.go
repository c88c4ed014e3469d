package mptcp

import (
	"context"
	"sync"
	"time"

	"github.com/aptpod/mptcp-go/errors"
	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/log"
	"github.com/aptpod/mptcp-go/nic"
	"github.com/aptpod/mptcp-go/policy"
	"github.com/aptpod/mptcp-go/stats"
	uuid "github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Registryは、ホスト内のセッションとローカルトークンを管理し、定期的にGCを実行します。
type Registry struct {
	opts   []Option
	cfg    Config
	logger log.Logger

	mu         sync.Mutex
	sessions   map[uuid.UUID]*Session
	tokens     map[keys.Token]*Session
	interfaces *nic.Manager
	closed     bool

	eg     *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRegistryは、Registryを生成してGCを開始します。
//
// optsは、Registryから生成する全てのセッションに適用します。
func NewRegistry(opts ...Option) (*Registry, error) {
	cfg := DefaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	r := &Registry{
		opts:     opts,
		cfg:      cfg,
		logger:   cfg.Logger,
		sessions: make(map[uuid.UUID]*Session),
		tokens:   make(map[keys.Token]*Session),
		eg:       eg,
		ctx:      ctx,
		cancel:   cancel,
	}
	eg.Go(func() error {
		r.gcLoop(ctx)
		return nil
	})
	return r, nil
}

func (r *Registry) gcLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.GCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweepは、全てのセッションのGCを1回分実行し、破棄したセッション数を返却します。
func (r *Registry) Sweep() int {
	n := 0
	for _, s := range r.list() {
		if !s.gc() {
			continue
		}
		r.mu.Lock()
		delete(r.sessions, s.id)
		r.mu.Unlock()
		n++
		r.logger.Debugf(s.ctx, "Session collected")
	}
	return n
}

func (r *Registry) list() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		res = append(res, s)
	}
	return res
}

// NewSessionは、Registryに登録したセッションを生成します。
//
// ローカルの鍵はRegistry内で一意なトークンになるよう生成します。
func (r *Registry) NewSession(st policy.ServiceType, opts ...Option) (*Session, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, errors.Errorf("registry closed: %w", errors.ErrState)
	}
	all := append(append([]Option{}, r.opts...), opts...)
	m := r.interfaces
	if m != nil {
		all = append([]Option{WithInterfaces(m)}, all...)
	}
	r.mu.Unlock()

	s, err := newSession(st, r, all...)
	if err != nil {
		return nil, err
	}
	if m != nil {
		s.UpdateInterfaces(m.Interfaces())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Errorf("registry closed: %w", errors.ErrState)
	}
	r.sessions[s.id] = s
	return s, nil
}

// Lookupは、IDに対応するセッションを返却します。
func (r *Registry) Lookup(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// LookupTokenは、ローカルトークンに対応するセッションを返却します。MP_JOINの受信時に使います。
func (r *Registry) LookupToken(tok keys.Token) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.tokens[tok]
	return s, ok
}

// Lenは、登録中のセッション数を返却します。
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) claim(tok keys.Token, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[tok]; ok {
		return false
	}
	r.tokens[tok] = s
	return true
}

func (r *Registry) release(tok keys.Token, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens[tok] == s {
		delete(r.tokens, tok)
	}
}

// WatchInterfacesは、mのインターフェース一覧の変更を全てのセッションへ反映します。
//
// 以降に生成するセッションはmをInterfaceFacilityとして使います。
func (r *Registry) WatchInterfaces(m *nic.Manager) {
	r.mu.Lock()
	r.interfaces = m
	r.mu.Unlock()

	ifCh := m.Subscribe(r.ctx)
	r.eg.Go(func() error {
		for ifs := range ifCh {
			for _, s := range r.list() {
				s.UpdateInterfaces(ifs)
			}
			r.logger.Debugf(r.ctx, "Interfaces updated: %d interfaces", len(ifs))
		}
		return nil
	})
}

// Snapshotは、全てのセッションの統計情報をstatsのレイアウトで返却します。
func (r *Registry) Snapshot() []byte {
	sessions := r.list()
	res := make([]stats.Session, 0, len(sessions))
	for _, s := range sessions {
		res = append(res, s.Snapshot())
	}
	return stats.Encode(res)
}

// Closeは、GCを停止し、全てのセッションを破棄します。
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	_ = r.eg.Wait()

	var eg errgroup.Group
	for _, s := range r.list() {
		eg.Go(s.shutdown)
	}
	err := eg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.sessions)
	return err
}
