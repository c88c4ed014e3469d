//go:build linux || darwin

package metrics

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/aptpod/mptcp-go/errors"
	"golang.org/x/sync/errgroup"
)

var _ ManagedProvider = (*TCPInfoProvider)(nil)

// kernelSampleは、カーネルから1回取得したソケットの状態です。
type kernelSample struct {
	rtt, rttvar time.Duration
	cwnd        uint64
	shift       int
	// inFlightは、カーネルが送信バッファのバイト数を公開している場合のみ有効です。
	inFlight    uint64
	hasInFlight bool
}

/*
TCPInfoProvider は、サブフローのTCPソケットからカーネルのメトリクスを定期的に取得します。

取得した値はStaticProviderへ反映します。BytesInFlightをカーネルが公開しない場合は、
AddBytesInFlightとSubBytesInFlightで呼び出し側が管理します。
*/
type TCPInfoProvider struct {
	*StaticProvider

	conn     net.Conn
	interval time.Duration
	sampler  sampler

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	eg      errgroup.Group
}

// NewTCPInfoProvider は、connを監視するプロバイダーを生成します。収集はStartで開始します。
func NewTCPInfoProvider(conn net.Conn, interval time.Duration) *TCPInfoProvider {
	ctx, cancel := context.WithCancel(context.Background())
	return &TCPInfoProvider{
		StaticProvider: NewStaticProvider(),
		conn:           conn,
		interval:       interval,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// ForConn は、connがTCP接続の場合はカーネルから取得するプロバイダーを、それ以外は固定値のプロバイダーを返却します。
func ForConn(conn net.Conn, interval time.Duration) ManagedProvider {
	if _, ok := conn.(*net.TCPConn); !ok {
		return NewNopProvider()
	}
	return NewTCPInfoProvider(conn, interval)
}

// Start は、バックグラウンドでの収集を開始します。
func (p *TCPInfoProvider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.ctx.Err() != nil:
		return errors.Errorf("TCPInfoProvider already stopped, cannot restart")
	case p.started:
		return errors.Errorf("TCPInfoProvider already started")
	}
	p.started = true
	p.eg.Go(func() error {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return nil
			case <-ticker.C:
				// 接続が閉じた後の失敗は次のStopで終わるため無視します。
				_ = p.update()
			}
		}
	})
	return nil
}

// Stop は、収集を終了して完了を待ちます。何度呼び出しても安全です。
func (p *TCPInfoProvider) Stop() {
	p.cancel()
	_ = p.eg.Wait()
}

func (p *TCPInfoProvider) update() error {
	sc, ok := p.conn.(syscall.Conn)
	if !ok {
		return errors.Errorf("%T does not expose a socket", p.conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var (
		s       kernelSample
		readErr error
	)
	if err := raw.Control(func(fd uintptr) {
		s, readErr = p.sampler.read(int(fd))
	}); err != nil {
		return err
	}
	if readErr != nil {
		return readErr
	}
	p.apply(s)
	return nil
}

func (p *TCPInfoProvider) apply(s kernelSample) {
	p.SetRTT(s.rtt, s.rttvar)
	p.SetCongestionWindow(s.cwnd)
	p.SetRetransmitShift(s.shift)
	if s.hasInFlight {
		p.setBytesInFlight(s.inFlight)
	}
}
