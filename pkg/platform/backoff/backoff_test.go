package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 5, Base: time.Second, Factor: 2, Cap: 30 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second}, // capped
		{10, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestPolicy_DelayCapAppliesToNotificationSchedule(t *testing.T) {
	p := NotificationDefaults()

	// 2m, 6m, 18m, 30m between the 5 attempts; the last delay hits the cap.
	total := time.Duration(0)
	for attempt := 1; attempt < p.MaxAttempts; attempt++ {
		total += p.Delay(attempt)
	}
	assert.Equal(t, 56*time.Minute, total)
	assert.Equal(t, 30*time.Minute, p.Delay(100))
}

func TestRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), ExtractionDefaults(), noSleep, func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	wantErr := errors.New("extraction down")
	calls := 0
	err := Retry(context.Background(), ExtractionDefaults(), noSleep, func(ctx context.Context, attempt int) error {
		calls++
		assert.Equal(t, calls, attempt)
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls)
}

func TestRetry_RecoversMidway(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), ExtractionDefaults(), noSleep, func(ctx context.Context, attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, ExtractionDefaults(), noSleep, func(ctx context.Context, attempt int) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls, "no further attempts after cancellation")
}

func TestRetry_SleeperReceivesSchedule(t *testing.T) {
	var delays []time.Duration
	recorder := func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_ = Retry(context.Background(), ExtractionDefaults(), recorder, func(ctx context.Context, attempt int) error {
		return errors.New("transient")
	})

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }
