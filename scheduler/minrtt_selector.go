package scheduler

// MinRTTSelector は MinRTT (Minimum RTT) アルゴリズムを実装した Selector です。
// ECFとは異なり待機判定を行わず、その時点で送信可能なサブフローの中から
// ベースRTTが最小のものを即座に選択します。
type MinRTTSelector struct {
	recorder
}

// NewMinRTTSelector は新しい MinRTTSelector を作成します。
func NewMinRTTSelector() *MinRTTSelector {
	return &MinRTTSelector{}
}

func (s *MinRTTSelector) Select(paths []*PathInfo, _ uint64) (uint32, bool) {
	switch len(paths) {
	case 0:
		return 0, false
	case 1:
		s.record(paths[0].ID())
		return paths[0].ID(), true
	}

	// 送信可能なサブフローを優先しつつ、フォールバック候補も同時に追跡
	var selected, fallback *PathInfo
	minRTT := ^uint64(0)
	minSmoothedRTT := ^uint64(0)
	fallbackMinRTT := ^uint64(0)
	fallbackSmoothedRTT := ^uint64(0)

	for _, info := range paths {
		currentMinRTT := rttToMicroseconds(info.MinRTT())
		currentSmoothedRTT := rttToMicroseconds(info.SmoothedRTT())

		if currentMinRTT < fallbackMinRTT ||
			(currentMinRTT == fallbackMinRTT && currentSmoothedRTT < fallbackSmoothedRTT) {
			fallback = info
			fallbackMinRTT = currentMinRTT
			fallbackSmoothedRTT = currentSmoothedRTT
		}

		if info.SendingAllowed() {
			if currentMinRTT < minRTT ||
				(currentMinRTT == minRTT && currentSmoothedRTT < minSmoothedRTT) {
				selected = info
				minRTT = currentMinRTT
				minSmoothedRTT = currentSmoothedRTT
			}
		}
	}

	if selected == nil {
		selected = fallback
	}
	s.record(selected.ID())
	return selected.ID(), true
}
