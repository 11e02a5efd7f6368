// Package claim grants at-most-one processing claim per document. A worker
// must hold the claim for the whole UPLOADED to terminal-status window; a
// second worker asking for the same document is turned away.
package claim

import (
	"context"
	"sync"
	"time"

	id "caregate/pkg/domain"
)

// DefaultTTL bounds how long a claim may be held before a crashed worker's
// claim expires and the document becomes processable again.
const DefaultTTL = 5 * time.Minute

type Claimer interface {
	// Claim returns true when the caller acquired exclusive processing rights
	// for the document.
	Claim(ctx context.Context, documentID id.DocumentID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, documentID id.DocumentID) error
}

// InMemoryClaimer backs single-process deployments and tests.
type InMemoryClaimer struct {
	mu     sync.Mutex
	claims map[id.DocumentID]time.Time
	clock  func() time.Time
}

func NewInMemoryClaimer() *InMemoryClaimer {
	return &InMemoryClaimer{
		claims: make(map[id.DocumentID]time.Time),
		clock:  time.Now,
	}
}

func (c *InMemoryClaimer) Claim(_ context.Context, documentID id.DocumentID, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	if expiry, held := c.claims[documentID]; held && now.Before(expiry) {
		return false, nil
	}
	c.claims[documentID] = now.Add(ttl)
	return true, nil
}

func (c *InMemoryClaimer) Release(_ context.Context, documentID id.DocumentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, documentID)
	return nil
}
