package mptcp

import (
	"sync"
	"time"

	"github.com/aptpod/mptcp-go/keys"
	"github.com/aptpod/mptcp-go/policy"
	"github.com/aptpod/mptcp-go/reinject"
)

type EventResult = eventResult

const (
	ResultDelete             = resultDelete
	ResultOK                 = resultOK
	ResultConnectPending     = resultConnectPending
	ResultDisconnectFallback = resultDisconnectFallback
)

func (r EventResult) Combine(o EventResult) EventResult {
	return r.combine(o)
}

func (s *Session) SetSendSequence(una uint64) {
	s.mu.Lock()
	defer s.unlock()
	s.resetSendSequence(una)
}

func (s *Session) SendSequence() (una, nxt, smax uint64) {
	s.mu.Lock()
	defer s.unlock()
	return s.sndUna, s.sndNxt, s.sndMax
}

func (s *Session) RcvNxt() uint64 {
	s.mu.Lock()
	defer s.unlock()
	return s.rcvNxt
}

func (s *Session) ReinjectEntries() []reinject.Entry {
	s.mu.Lock()
	defer s.unlock()
	return s.reinject.Entries()
}

func (s *Session) Fallback() bool {
	s.mu.Lock()
	defer s.unlock()
	return s.flags&flagFallback != 0
}

func (s *Session) JoinReady() bool {
	s.mu.Lock()
	defer s.unlock()
	return s.flags&flagJoinReady != 0
}

func (s *Session) SetNow(f func() time.Time) {
	s.mu.Lock()
	defer s.unlock()
	s.now = f
}

func (s *Session) GC() bool {
	return s.gc()
}

// TokenTableは、トークンの取得と返却を記録するtokenRegistryです。
//
// 呼び出し時にセッションのロックが保持されていた回数も数えます。
type TokenTable struct {
	mu       sync.Mutex
	tokens   map[keys.Token]*Session
	claims   int
	releases int
	locked   int
}

func NewTokenTable() *TokenTable {
	return &TokenTable{tokens: make(map[keys.Token]*Session)}
}

func (t *TokenTable) claim(tok keys.Token, s *Session) bool {
	held := sessionLocked(s)
	t.mu.Lock()
	defer t.mu.Unlock()
	if held {
		t.locked++
	}
	if _, ok := t.tokens[tok]; ok {
		return false
	}
	t.tokens[tok] = s
	t.claims++
	return true
}

func (t *TokenTable) release(tok keys.Token, s *Session) {
	held := sessionLocked(s)
	t.mu.Lock()
	defer t.mu.Unlock()
	if held {
		t.locked++
	}
	if t.tokens[tok] == s {
		delete(t.tokens, tok)
		t.releases++
	}
}

// Countsは、取得数、返却数、ロック保持中の呼び出し数を返します。
func (t *TokenTable) Counts() (claims, releases, locked int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claims, t.releases, t.locked
}

func (t *TokenTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}

func sessionLocked(s *Session) bool {
	if s.mu.TryLock() {
		s.mu.Unlock()
		return false
	}
	return true
}

func NewSessionWithTokens(st policy.ServiceType, tokens *TokenTable, opts ...Option) (*Session, error) {
	return newSession(st, tokens, opts...)
}
