// Package memory provides the in-memory audit store used by tests and
// single-process deployments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"caregate/pkg/platform/audit"
)

// Store is an append-only in-memory audit sink, safe for concurrent writers.
type Store struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func New() *Store {
	return &Store{}
}

// Append records one entry. Entries are never modified after this point.
func (s *Store) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// ListBySubject returns entries for one subject ordered by timestamp.
func (s *Store) ListBySubject(_ context.Context, subjectType audit.SubjectType, subjectID string) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for _, e := range s.entries {
		if e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

// ListByTimeRange returns entries within [from, to] ordered by timestamp.
func (s *Store) ListByTimeRange(_ context.Context, from, to time.Time) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []audit.Entry
	for _, e := range s.entries {
		if !e.Timestamp.Before(from) && !e.Timestamp.After(to) {
			out = append(out, e)
		}
	}
	sortByTimestamp(out)
	return out, nil
}

// All returns every entry in append order. Test helper.
func (s *Store) All() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

func sortByTimestamp(entries []audit.Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}
