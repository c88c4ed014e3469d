package pathconn

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/aptpod/mptcp-go/metrics"
)

// pathMetricsは、カーネルのメトリクスに送信キューのバイト数を加えたmetrics.Providerです。
//
// 接続前はデフォルト値を返します。
type pathMetrics struct {
	mu     sync.RWMutex
	inner  metrics.Provider
	queued *atomic.Int64
}

var _ metrics.Provider = (*pathMetrics)(nil)

func (p *pathMetrics) set(mp metrics.Provider) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inner = mp
}

func (p *pathMetrics) provider() metrics.Provider {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.inner
}

func (p *pathMetrics) RTT() time.Duration { return p.provider().RTT() }

func (p *pathMetrics) RTTVar() time.Duration { return p.provider().RTTVar() }

func (p *pathMetrics) CongestionWindow() uint64 { return p.provider().CongestionWindow() }

func (p *pathMetrics) RetransmitShift() int { return p.provider().RetransmitShift() }

func (p *pathMetrics) BytesInFlight() uint64 {
	n := p.provider().BytesInFlight()
	if p.queued != nil {
		if q := p.queued.Load(); q > 0 {
			n += uint64(q)
		}
	}
	return n
}
