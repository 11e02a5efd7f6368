package claim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "caregate/pkg/domain"
)

func TestInMemoryClaimerExclusive(t *testing.T) {
	ctx := context.Background()
	claimer := NewInMemoryClaimer()
	documentID := id.NewDocumentID()

	ok, err := claimer.Claim(ctx, documentID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = claimer.Claim(ctx, documentID, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim must lose")

	require.NoError(t, claimer.Release(ctx, documentID))
	ok, err = claimer.Claim(ctx, documentID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "claim reacquirable after release")
}

func TestInMemoryClaimerExpiry(t *testing.T) {
	ctx := context.Background()
	claimer := NewInMemoryClaimer()
	now := time.Now()
	claimer.clock = func() time.Time { return now }
	documentID := id.NewDocumentID()

	ok, err := claimer.Claim(ctx, documentID, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = claimer.Claim(ctx, documentID, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim must be reclaimable")
}

func TestInMemoryClaimerConcurrent(t *testing.T) {
	ctx := context.Background()
	claimer := NewInMemoryClaimer()
	documentID := id.NewDocumentID()

	const workers = 32
	var winners int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := claimer.Claim(ctx, documentID, time.Minute)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
