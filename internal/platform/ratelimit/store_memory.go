package ratelimit

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a sliding-window counter for single-instance deployments.
// Multi-instance deployments use RedisStore so all replicas share one budget.
type InMemoryStore struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	clock   func() time.Time
}

type slidingWindow struct {
	timestamps []time.Time
	window     time.Duration
}

func (w *slidingWindow) evictBefore(cutoff time.Time) {
	kept := w.timestamps[:0]
	for _, ts := range w.timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.timestamps = kept
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		windows: make(map[string]*slidingWindow),
		clock:   time.Now,
	}
}

func (s *InMemoryStore) Allow(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.windows[key]
	if w == nil || w.window != window {
		w = &slidingWindow{window: window}
		s.windows[key] = w
	}

	now := s.clock()
	w.evictBefore(now.Add(-window))

	if len(w.timestamps) >= limit {
		return &Result{
			Allowed: false,
			Limit:   limit,
			ResetAt: w.timestamps[0].Add(window),
		}, nil
	}

	w.timestamps = append(w.timestamps, now)
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - len(w.timestamps),
		ResetAt:   w.timestamps[0].Add(window),
	}, nil
}
