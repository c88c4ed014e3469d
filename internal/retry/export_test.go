package retry

import (
	"testing"
	"time"
)

func (r Retry) Backoff(attempt int) time.Duration { return r.backoff(attempt) }

// FixJitterは、テストの間だけjitterを固定します。
func FixJitter(t *testing.T, v float64) {
	org := jitter
	jitter = func() float64 { return v }
	t.Cleanup(func() { jitter = org })
}
