// Package circuit implements a small failure-counting circuit breaker.
//
// The breaker protects callers from hammering an unhealthy dependency: after
// N consecutive failures it opens and callers should use their fallback path;
// after M consecutive successes it closes again. While open, one probe call
// is let through after a cool-down so a recovered dependency can close the
// circuit without a process restart. State transitions are reported back to
// the caller so they can be logged and metered.
package circuit

import (
	"sync"
	"time"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Change reports a state transition caused by a recorded outcome.
type Change struct {
	Opened bool
	Closed bool
}

// Breaker tracks consecutive failures and successes for one dependency.
type Breaker struct {
	mu sync.Mutex

	name             string
	state            State
	failureThreshold int
	successThreshold int
	failures         int
	successes        int
	coolDown         time.Duration
	openedAt         time.Time
	probeInFlight    bool
	clock            func() time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets how many consecutive failures open the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) { b.failureThreshold = n }
}

// WithSuccessThreshold sets how many consecutive successes close an open circuit.
func WithSuccessThreshold(n int) Option {
	return func(b *Breaker) { b.successThreshold = n }
}

// WithCoolDown sets how long the circuit stays open before a probe call is
// allowed through.
func WithCoolDown(d time.Duration) Option {
	return func(b *Breaker) { b.coolDown = d }
}

// WithClock replaces the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(b *Breaker) { b.clock = clock }
}

// New returns a closed breaker with default thresholds (5 failures to open,
// 1 success to close, 30s cool-down before probing).
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		state:            StateClosed,
		failureThreshold: 5,
		successThreshold: 1,
		coolDown:         30 * time.Second,
		clock:            time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsOpen reports whether callers should take their fallback path.
func (b *Breaker) IsOpen() bool {
	return b.State() == StateOpen
}

// Allow reports whether the caller may use the primary path. A closed
// circuit always allows; an open one allows a single probe call once the
// cool-down has elapsed. The probe's recorded outcome either closes the
// circuit or restarts the cool-down.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.clock().Sub(b.openedAt) < b.coolDown {
			return false
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		return true
	default: // half-open
		if b.probeInFlight {
			return false
		}
		b.probeInFlight = true
		return true
	}
}

// RecordFailure records a failed call. It returns whether the caller should
// use the fallback, and any state change this failure caused.
func (b *Breaker) RecordFailure() (useFallback bool, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.successes = 0

	if b.state == StateOpen {
		return true, Change{}
	}
	if b.state == StateHalfOpen {
		// Failed probe: reopen and restart the cool-down.
		b.state = StateOpen
		b.openedAt = b.clock()
		b.probeInFlight = false
		return true, Change{}
	}

	b.failures++
	if b.failures >= b.failureThreshold {
		b.state = StateOpen
		b.openedAt = b.clock()
		b.failures = 0
		return true, Change{Opened: true}
	}
	return false, Change{}
}

// RecordSuccess records a successful call. It returns whether the caller
// should resume using the primary path, and any state change this success
// caused.
func (b *Breaker) RecordSuccess() (usePrimary bool, change Change) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probeInFlight = false

	if b.state == StateClosed {
		return true, Change{}
	}

	b.successes++
	if b.successes >= b.successThreshold {
		b.state = StateClosed
		b.successes = 0
		return true, Change{Closed: true}
	}
	return false, Change{}
}

// Reset forces the breaker closed and clears all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.successes = 0
	b.probeInFlight = false
}
