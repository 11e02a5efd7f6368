package extraction

import (
	"context"
	"hash/fnv"
	"sync/atomic"
	"time"

	"caregate/internal/blobstore"
	"caregate/internal/document/models"
	"caregate/pkg/platform/sentinel"
)

// StubClient is a deterministic in-process extractor used when no vendor
// endpoint is configured (local development, e2e runs). Confidence is derived
// from the storage handle so the same upload always scores the same.
type StubClient struct {
	Latency time.Duration
	// FailEvery makes every Nth call return an unavailable error when > 0.
	FailEvery int

	// calls is read and written from concurrent pipeline workers.
	calls atomic.Int64
}

func (c *StubClient) Extract(_ context.Context, handle blobstore.Handle, docType models.Type) (*models.ExtractionResult, error) {
	time.Sleep(c.Latency)
	calls := c.calls.Add(1)
	if c.FailEvery > 0 && calls%int64(c.FailEvery) == 0 {
		return nil, sentinel.ErrUnavailable
	}

	h := fnv.New32a()
	h.Write([]byte(handle))
	// Spread scores across [0.80, 1.00) so low-confidence paths are reachable.
	confidence := 0.80 + float64(h.Sum32()%2000)/10000

	fields := map[string]string{
		"full_name":     "Sample Member",
		"date_of_birth": "1990-02-03",
	}
	if docType == models.TypeProofOfAddress {
		fields["address"] = "12 Example Street"
	}
	return &models.ExtractionResult{
		Confidence:       confidence,
		Fields:           fields,
		FlaggedSensitive: docType == models.TypeHealthDeclaration,
	}, nil
}
