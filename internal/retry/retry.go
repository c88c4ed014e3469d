package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	defaultBaseInterval = 100 * time.Millisecond
	defaultMaxInterval  = 5 * time.Second
)

// jitterは、待ち時間に掛ける係数を返却します。0.5 ~ 1.5の値です。
var jitter = func() float64 { return 0.5 + rand.Float64() }

// RetryはExponential Backoff and Jitter方式のリトライを行います。
type Retry struct {
	// 最大リトライ回数。0はリトライをし続けます。デフォルトは0です。
	MaxAttempt int

	// 基準リトライ間隔。デフォルトは100ミリ秒です。
	BaseInterval time.Duration

	// 最大基準リトライ間隔。デフォルトは5秒です。
	MaxBaseInterval time.Duration
}

// DoContextは、fがnilを返すまでリトライします。
//
// 最大リトライ回数を超えた場合はfが最後に返したエラーを、ctxが終了した場合はctx.Err()を返却します。
func (r Retry) DoContext(ctx context.Context, f func(ctx context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := f(ctx)
		if err == nil {
			return nil
		}
		if r.MaxAttempt != 0 && attempt >= r.MaxAttempt {
			return err
		}
		timer := time.NewTimer(r.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// backoffは、attempt回目の失敗の後に待つ時間です。
func (r Retry) backoff(attempt int) time.Duration {
	base, max := r.BaseInterval, r.MaxBaseInterval
	if base == 0 {
		base = defaultBaseInterval
	}
	if max == 0 {
		max = defaultMaxInterval
	}
	d := math.Min(float64(base)*math.Pow(2, float64(attempt)), float64(max))
	return time.Duration(d * jitter())
}
