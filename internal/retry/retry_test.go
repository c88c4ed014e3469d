package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	. "github.com/aptpod/mptcp-go/internal/retry"
)

func TestRetry_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		retry   Retry
		attempt int
		want    time.Duration
	}{
		{name: "first", retry: Retry{BaseInterval: 1, MaxBaseInterval: 1000}, attempt: 0, want: 1},
		{name: "second", retry: Retry{BaseInterval: 1, MaxBaseInterval: 1000}, attempt: 1, want: 2},
		{name: "sixth", retry: Retry{BaseInterval: 1, MaxBaseInterval: 1000}, attempt: 5, want: 32},
		{name: "capped", retry: Retry{BaseInterval: 1, MaxBaseInterval: 1000}, attempt: 100000, want: 1000},
		{name: "defaults", retry: Retry{}, attempt: 0, want: 100 * time.Millisecond},
		{name: "default cap", retry: Retry{}, attempt: 10, want: 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			FixJitter(t, 1)
			assert.Equal(t, tt.want, tt.retry.Backoff(tt.attempt))
		})
	}
}

func TestRetry_DoContext(t *testing.T) {
	errDial := errors.New("dial")
	tests := []struct {
		name      string
		retry     Retry
		ctx       func() context.Context
		succeedAt int
		wantCount int
		wantErr   error
	}{
		{
			name:      "success: first attempt",
			retry:     Retry{MaxAttempt: 3, BaseInterval: time.Millisecond},
			ctx:       context.Background,
			succeedAt: 1,
			wantCount: 1,
		},
		{
			name:      "success: after retries",
			retry:     Retry{MaxAttempt: 3, BaseInterval: time.Millisecond},
			ctx:       context.Background,
			succeedAt: 3,
			wantCount: 3,
		},
		{
			name:      "error: attempts exhausted",
			retry:     Retry{MaxAttempt: 2, BaseInterval: time.Millisecond},
			ctx:       context.Background,
			succeedAt: 10,
			wantCount: 3,
			wantErr:   errDial,
		},
		{
			name:  "error: canceled",
			retry: Retry{BaseInterval: time.Hour},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				time.AfterFunc(10*time.Millisecond, cancel)
				return ctx
			},
			succeedAt: 10,
			wantCount: 1,
			wantErr:   context.Canceled,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var count int
			err := tt.retry.DoContext(tt.ctx(), func(context.Context) error {
				count++
				if count >= tt.succeedAt {
					return nil
				}
				return errDial
			})
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCount, count)
		})
	}
}
