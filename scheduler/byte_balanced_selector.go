package scheduler

// ByteBalancedSelector は、割り当てバイト数に基づいてサブフローを選択する Selector の実装です。
// 各サブフローの累積割り当てバイト数を比較し、最も少ないサブフローを選択することで、
// 複数サブフロー間の送信負荷を均等化します。
//
// 同一バイト数の場合、候補の並び順で優先されます。
type ByteBalancedSelector struct {
	recorder
}

// NewByteBalancedSelector は新しい ByteBalancedSelector を作成します。
func NewByteBalancedSelector() *ByteBalancedSelector {
	return &ByteBalancedSelector{}
}

func (s *ByteBalancedSelector) Select(paths []*PathInfo, _ uint64) (uint32, bool) {
	var selected *PathInfo
	minTxBytes := ^uint64(0)
	for _, p := range paths {
		if p.TxBytes() < minTxBytes {
			minTxBytes = p.TxBytes()
			selected = p
		}
	}
	if selected == nil {
		return 0, false
	}
	s.record(selected.ID())
	return selected.ID(), true
}
