package circuit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_StartsClosed(t *testing.T) {
	b := New("extraction")
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "extraction", b.Name())
}

func TestBreaker_OpensAtFailureThreshold(t *testing.T) {
	b := New("extraction", WithFailureThreshold(3))

	for i := 0; i < 2; i++ {
		useFallback, change := b.RecordFailure()
		assert.False(t, useFallback, "failure %d should not trip the breaker", i+1)
		assert.False(t, change.Opened)
	}

	useFallback, change := b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, change.Opened)
	assert.True(t, b.IsOpen())

	// Failures while open keep answering fallback without a new transition.
	useFallback, change = b.RecordFailure()
	assert.True(t, useFallback)
	assert.False(t, change.Opened)
}

func TestBreaker_ClosesAtSuccessThreshold(t *testing.T) {
	b := New("extraction", WithFailureThreshold(1), WithSuccessThreshold(2))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	usePrimary, change := b.RecordSuccess()
	assert.False(t, usePrimary)
	assert.False(t, change.Closed)

	usePrimary, change = b.RecordSuccess()
	assert.True(t, usePrimary)
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
}

func TestBreaker_CountersResetOnOppositeOutcome(t *testing.T) {
	b := New("extraction", WithFailureThreshold(3), WithSuccessThreshold(3))

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess() // clears the failure streak
	b.RecordFailure()
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.RecordSuccess()
	b.RecordSuccess()
	b.RecordFailure() // clears the success streak
	b.RecordSuccess()
	b.RecordSuccess()
	assert.True(t, b.IsOpen())
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
}

func TestBreaker_ProbeAllowedAfterCoolDown(t *testing.T) {
	now := time.Now()
	b := New("extraction",
		WithFailureThreshold(1),
		WithCoolDown(30*time.Second),
		WithClock(func() time.Time { return now }),
	)

	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow(), "no calls before the cool-down elapses")

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow(), "one probe passes after the cool-down")
	assert.False(t, b.Allow(), "a second caller waits for the probe outcome")

	_, change := b.RecordSuccess()
	assert.True(t, change.Closed)
	assert.False(t, b.IsOpen())
	assert.True(t, b.Allow())
}

func TestBreaker_FailedProbeRestartsCoolDown(t *testing.T) {
	now := time.Now()
	b := New("extraction",
		WithFailureThreshold(1),
		WithCoolDown(30*time.Second),
		WithClock(func() time.Time { return now }),
	)

	b.RecordFailure()
	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())

	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback)
	assert.True(t, b.IsOpen())
	assert.False(t, b.Allow(), "the failed probe restarts the cool-down")

	now = now.Add(31 * time.Second)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
}

func TestBreaker_ResetForcesClosed(t *testing.T) {
	b := New("extraction", WithFailureThreshold(1))

	b.RecordFailure()
	assert.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ConcurrentRecordingSettles(t *testing.T) {
	b := New("extraction", WithFailureThreshold(5))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(fail bool) {
			defer wg.Done()
			if fail {
				b.RecordFailure()
			} else {
				b.RecordSuccess()
			}
		}(i%2 == 0)
	}
	wg.Wait()

	// Whatever interleaving happened, the breaker ends in a defined state
	// and a success streak still closes it.
	for i := 0; i < 5; i++ {
		b.RecordSuccess()
	}
	assert.False(t, b.IsOpen())
}
