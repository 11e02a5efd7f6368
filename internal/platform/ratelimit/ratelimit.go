// Package ratelimit bounds per-client request rates. Document uploads fan
// out to blob storage and the extraction vendor, so the upload surface is
// the one place the server enforces a budget.
package ratelimit

import (
	"context"
	"time"
)

// Result reports one admission decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Store counts requests per key inside a window. Implementations must be
// safe for concurrent use.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
