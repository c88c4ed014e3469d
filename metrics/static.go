package metrics

import (
	"sync"
	"time"
)

var _ ManagedProvider = (*StaticProvider)(nil)

// StaticProvider は、呼び出し側が設定した値を返す ManagedProvider です。
//
// カーネルのTCPソケットを持たない接続や、テストで使用します。
// 値が未設定の場合はデフォルト値を返します。
type StaticProvider struct {
	mu              sync.RWMutex
	rtt             time.Duration
	rttvar          time.Duration
	cwnd            uint64
	bytesInFlight   uint64
	retransmitShift int
}

// NewStaticProvider は、新しい StaticProvider を作成します。
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// SetRTT は、RTTとRTT変動を設定します。
func (p *StaticProvider) SetRTT(rtt, rttvar time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rtt = rtt
	p.rttvar = rttvar
}

// SetCongestionWindow は、輻輳ウィンドウサイズを設定します。
func (p *StaticProvider) SetCongestionWindow(cwnd uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cwnd = cwnd
}

// SetRetransmitShift は、再送バックオフ回数を設定します。
func (p *StaticProvider) SetRetransmitShift(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.retransmitShift = n
}

// AddBytesInFlight は、n バイトを送信中として加算します。
func (p *StaticProvider) AddBytesInFlight(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bytesInFlight += n
}

// SubBytesInFlight は、n バイトを送信中から減算します。0未満にはなりません。
func (p *StaticProvider) SubBytesInFlight(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.bytesInFlight {
		p.bytesInFlight = 0
	} else {
		p.bytesInFlight -= n
	}
}

func (p *StaticProvider) setBytesInFlight(n uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bytesInFlight = n
}

func (p *StaticProvider) RTT() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.rtt == 0 {
		return DefaultRTT
	}
	return p.rtt
}

func (p *StaticProvider) RTTVar() time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.rttvar == 0 {
		return DefaultRTTVar
	}
	return p.rttvar
}

func (p *StaticProvider) CongestionWindow() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cwnd == 0 {
		return DefaultCWND
	}
	return p.cwnd
}

func (p *StaticProvider) BytesInFlight() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bytesInFlight
}

func (p *StaticProvider) RetransmitShift() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.retransmitShift
}

// Start は何もしません。
func (p *StaticProvider) Start() error { return nil }

// Stop は何もしません。
func (p *StaticProvider) Stop() {}
