package scheduler

import "time"

// ECF (Earliest Completion First) スケジューリングアルゴリズムで使用される定数

const (
	// ecfBeta は ECF アルゴリズムのβ定数です。
	// 値が大きいほど、待機しやすくなります。
	ecfBeta = 4
)

// rttToMicroseconds は time.Duration を マイクロ秒単位の uint64 に変換します。
func rttToMicroseconds(d time.Duration) uint64 {
	return uint64(d.Microseconds())
}
