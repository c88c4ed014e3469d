package scheduler

import (
	"time"

	"github.com/aptpod/mptcp-go/metrics"
)

// PathInfo はスケジューラで使用されるサブフローの情報を保持します。
//
// PathInfo はサブフローごとに1つ作成し、サブフローが存在する間は同じものを使います。
// 観測された最小RTTは PathInfo に蓄積されます。
type PathInfo struct {
	id              uint32
	metricsProvider metrics.Provider
	sendingAllowed  bool

	// minRTT は観測された最小RTT（ベースRTT）を保持します。
	minRTT time.Duration

	active  bool
	backup  bool
	txBytes uint64
}

// NewPathInfo は新しいPathInfoを作成します。
func NewPathInfo(id uint32, metricsProvider metrics.Provider) *PathInfo {
	return &PathInfo{
		id:              id,
		metricsProvider: metricsProvider,
	}
}

// Update はメトリクスプロバイダーから最新のメトリクスを取得し、
// sendingAllowed フラグと minRTT を更新します。
//
// sendingAllowed は BytesInFlight < CongestionWindow の場合に true になります。
func (p *PathInfo) Update() {
	if p.metricsProvider == nil {
		p.sendingAllowed = false
		return
	}

	p.sendingAllowed = p.metricsProvider.BytesInFlight() < p.metricsProvider.CongestionWindow()

	currentRTT := p.metricsProvider.RTT()
	if currentRTT > 0 && (p.minRTT == 0 || currentRTT < p.minRTT) {
		p.minRTT = currentRTT
	}
}

// SetRole は、サブフローがアクティブか、バックアップかを設定します。
func (p *PathInfo) SetRole(active, backup bool) {
	p.active = active
	p.backup = backup
}

// AddTxBytes は、このサブフローへ割り当てたバイト数を加算します。
func (p *PathInfo) AddTxBytes(n uint64) {
	p.txBytes += n
}

// ID はサブフローIDを返します。
func (p *PathInfo) ID() uint32 {
	return p.id
}

// Active は、サブフローがアクティブかどうかを返します。
func (p *PathInfo) Active() bool {
	return p.active
}

// Backup は、サブフローがバックアップかどうかを返します。
func (p *PathInfo) Backup() bool {
	return p.backup
}

// TxBytes は、このサブフローへ割り当てた累積バイト数を返します。
func (p *PathInfo) TxBytes() uint64 {
	return p.txBytes
}

// SmoothedRTT は平滑化RTTを返します。
func (p *PathInfo) SmoothedRTT() time.Duration {
	if p.metricsProvider == nil {
		return metrics.DefaultRTT
	}
	return p.metricsProvider.RTT()
}

// MinRTT は観測された最小RTTを返します。
// まだ観測されていない場合は SmoothedRTT() と同じ値を返します。
func (p *PathInfo) MinRTT() time.Duration {
	if p.minRTT == 0 {
		return p.SmoothedRTT()
	}
	return p.minRTT
}

// MeanDeviation はRTT変動を返します。
func (p *PathInfo) MeanDeviation() time.Duration {
	if p.metricsProvider == nil {
		return metrics.DefaultRTTVar
	}
	return p.metricsProvider.RTTVar()
}

// CongestionWindow は輻輳ウィンドウサイズ（バイト数）を返します。
func (p *PathInfo) CongestionWindow() uint64 {
	if p.metricsProvider == nil {
		return metrics.DefaultCWND
	}
	return p.metricsProvider.CongestionWindow()
}

// BytesInFlight は送信中のバイト数を返します。
func (p *PathInfo) BytesInFlight() uint64 {
	if p.metricsProvider == nil {
		return 0
	}
	return p.metricsProvider.BytesInFlight()
}

// SendingAllowed は送信が可能かどうかを返します。Update() で更新されます。
func (p *PathInfo) SendingAllowed() bool {
	return p.sendingAllowed
}
