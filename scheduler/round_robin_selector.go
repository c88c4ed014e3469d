package scheduler

// RoundRobinSelector は、サブフローを順番に返す Selector の実装です。
//
// 候補の並びが変わっても、前回選択したIDの次に大きいIDを選択します。
type RoundRobinSelector struct {
	recorder
	last    uint32
	started bool
}

// NewRoundRobinSelector は新しいRoundRobinSelectorを作成します。
func NewRoundRobinSelector() *RoundRobinSelector {
	return &RoundRobinSelector{}
}

func (s *RoundRobinSelector) Select(paths []*PathInfo, _ uint64) (uint32, bool) {
	if len(paths) == 0 {
		return 0, false
	}
	var next, lowest *PathInfo
	for _, p := range paths {
		if lowest == nil || p.ID() < lowest.ID() {
			lowest = p
		}
		if s.started && p.ID() <= s.last {
			continue
		}
		if next == nil || p.ID() < next.ID() {
			next = p
		}
	}
	if next == nil {
		next = lowest
	}
	s.last = next.ID()
	s.started = true
	s.record(next.ID())
	return next.ID(), true
}
