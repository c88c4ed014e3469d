package metrics

import "time"

var _ ManagedProvider = (*noopProvider)(nil)

// noopProvider は ManagedProvider の何もしない実装です。
type noopProvider struct{}

// NewNopProvider は、常にデフォルト値を返す ManagedProvider を作成します。
func NewNopProvider() ManagedProvider {
	return &noopProvider{}
}

func (n *noopProvider) RTT() time.Duration { return DefaultRTT }

func (n *noopProvider) RTTVar() time.Duration { return DefaultRTTVar }

func (n *noopProvider) CongestionWindow() uint64 { return DefaultCWND }

func (n *noopProvider) BytesInFlight() uint64 { return 0 }

func (n *noopProvider) RetransmitShift() int { return 0 }

func (n *noopProvider) Start() error { return nil }

func (n *noopProvider) Stop() {}
