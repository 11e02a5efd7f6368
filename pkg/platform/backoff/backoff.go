// Package backoff defines the explicit retry policy used for unreliable
// external dependencies. Each dependency gets its own parameterized policy so
// retry behavior is visible in configuration and tests rather than buried in
// middleware.
package backoff

import (
	"context"
	"time"
)

// Policy describes an exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Base is the delay before the second attempt.
	Base time.Duration
	// Factor multiplies the delay after each attempt.
	Factor float64
	// Cap bounds any single delay.
	Cap time.Duration
}

// ExtractionDefaults is the retry policy for the OCR extraction service:
// 3 attempts, 1s base, doubling, capped at 30s.
func ExtractionDefaults() Policy {
	return Policy{MaxAttempts: 3, Base: time.Second, Factor: 2, Cap: 30 * time.Second}
}

// NotificationDefaults is the retry policy for webhook delivery:
// 5 attempts spread over roughly an hour (2m, 6m, 18m, 30m).
func NotificationDefaults() Policy {
	return Policy{MaxAttempts: 5, Base: 2 * time.Minute, Factor: 3, Cap: 30 * time.Minute}
}

// Delay returns the wait before the given attempt. Attempt is 1-based;
// Delay(1) is the wait after the first failure.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
		if time.Duration(d) >= p.Cap {
			return p.Cap
		}
	}
	if time.Duration(d) > p.Cap {
		return p.Cap
	}
	return time.Duration(d)
}

// Sleeper abstracts waiting so tests can run retry loops without real delays.
type Sleeper func(ctx context.Context, d time.Duration) error

// Wait blocks for d or until ctx is cancelled. It is the production Sleeper.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Retry runs fn up to p.MaxAttempts times, sleeping per the schedule between
// failures. It returns nil on the first success, the last error once attempts
// are exhausted, and stops early when the context is cancelled. The sleeper
// defaults to Wait when nil.
func Retry(ctx context.Context, p Policy, sleep Sleeper, fn func(ctx context.Context, attempt int) error) error {
	if sleep == nil {
		sleep = Wait
	}

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if attempt < p.MaxAttempts {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return err
			}
		}
	}
	return lastErr
}
