package scheduler

// ActiveSelector は、アクティブなサブフローを優先して使い続ける Selector です。
//
// バックアップでないサブフローを優先し、その中でアクティブなものを選びます。
// アクティブなものがなければベースRTTが最小のものを選びます。
// バックアップのサブフローは、他に候補がない場合のみ使用します。
type ActiveSelector struct {
	recorder
}

// NewActiveSelector は新しい ActiveSelector を作成します。
func NewActiveSelector() *ActiveSelector {
	return &ActiveSelector{}
}

func (s *ActiveSelector) Select(paths []*PathInfo, _ uint64) (uint32, bool) {
	best := pickActive(paths, false)
	if best == nil {
		best = pickActive(paths, true)
	}
	if best == nil {
		return 0, false
	}
	s.record(best.ID())
	return best.ID(), true
}

func pickActive(paths []*PathInfo, backup bool) *PathInfo {
	var best *PathInfo
	for _, p := range paths {
		if p.Backup() != backup {
			continue
		}
		if p.Active() {
			return p
		}
		if best == nil || p.MinRTT() < best.MinRTT() {
			best = p
		}
	}
	return best
}
