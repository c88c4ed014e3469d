package scheduler

// ECFSelector は ECF (Earliest Completion First) アルゴリズムを実装した Selector です。
// 複数のサブフローから、最も早く完了すると予測されるサブフローを選択します。
//
// 待機が有益と判定された場合、Select は false を返し、呼び出し側は次の送信機会まで送信を見送ります。
type ECFSelector struct {
	recorder

	// waiting は現在待機中かどうかを示すフラグです（0 または 1）。
	waiting uint8
	// waitingFor は待機中のサブフローIDです。
	waitingFor uint32
	// allowWaiting が false の場合、待機せずに送信可能最速サブフローを返します。
	allowWaiting bool
}

// NewECFSelector は待機判定を行う新しい ECFSelector を作成します。
func NewECFSelector() *ECFSelector {
	return &ECFSelector{allowWaiting: true}
}

// NewECFSelectorWithoutWaiting は待機判定を行わない ECFSelector を作成します。
func NewECFSelectorWithoutWaiting() *ECFSelector {
	return &ECFSelector{}
}

// WaitingFor は待機中のサブフローIDを返します。待機していない場合は false です。
func (s *ECFSelector) WaitingFor() (uint32, bool) {
	return s.waitingFor, s.waiting == 1
}

func (s *ECFSelector) Select(paths []*PathInfo, queueSize uint64) (uint32, bool) {
	id, ok := s.selectEarliestCompletionFirst(paths, queueSize)
	if ok {
		s.record(id)
	}
	return id, ok
}

// selectEarliestCompletionFirst は2つの不等式を評価して最適なサブフローを選択します。
//
//  1. 絶対最速サブフローの探索
//  2. 送信可能最速サブフローの探索
//  3. 両者が同一なら即座に返す
//  4. 第1不等式の評価
//  5. 第2不等式の評価 (第1が真の場合)
//  6. 待機判定とサブフロー選択
func (s *ECFSelector) selectEarliestCompletionFirst(paths []*PathInfo, queueSize uint64) (uint32, bool) {
	switch len(paths) {
	case 0:
		return 0, false
	case 1:
		s.waiting = 0
		return paths[0].ID(), true
	}

	var fastest *PathInfo
	minRTT := ^uint64(0)
	for _, info := range paths {
		if rtt := rttToMicroseconds(info.SmoothedRTT()); rtt < minRTT {
			minRTT = rtt
			fastest = info
		}
	}

	var available *PathInfo
	availableMinRTT := ^uint64(0)
	for _, info := range paths {
		if !info.SendingAllowed() {
			continue
		}
		if rtt := rttToMicroseconds(info.SmoothedRTT()); rtt < availableMinRTT {
			availableMinRTT = rtt
			available = info
		}
	}

	if available == nil {
		return 0, false
	}

	if fastest == available {
		s.waiting = 0
		return fastest.ID(), true
	}

	// β * lhs < β*rhs + waiting*rhs
	// lhs = srtt_f * (x_f + cwnd_f)
	// rhs = cwnd_f * (srtt_s + delta)
	srtt_f := rttToMicroseconds(fastest.SmoothedRTT())
	srtt_s := rttToMicroseconds(available.SmoothedRTT())
	delta := max(rttToMicroseconds(fastest.MeanDeviation()), rttToMicroseconds(available.MeanDeviation()))

	cwnd_f := fastest.CongestionWindow()
	cwnd_s := available.CongestionWindow()

	x_f := max(queueSize, cwnd_f)
	lhs := srtt_f * (x_f + cwnd_f)
	rhs := cwnd_f * (srtt_s + delta)

	if ecfBeta*lhs >= ecfBeta*rhs+uint64(s.waiting)*rhs {
		s.waiting = 0
		return available.ID(), true
	}

	// lhs_s >= rhs_s
	// lhs_s = srtt_s * x_s
	// rhs_s = cwnd_s * (2*srtt_f + delta)
	x_s := max(queueSize, cwnd_s)
	if srtt_s*x_s >= cwnd_s*(2*srtt_f+delta) && s.allowWaiting {
		s.waiting = 1
		s.waitingFor = fastest.ID()
		return 0, false
	}

	s.waiting = 0
	return available.ID(), true
}
