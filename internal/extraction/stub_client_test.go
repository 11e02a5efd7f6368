package extraction

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregate/internal/blobstore"
	"caregate/internal/document/models"
	"caregate/pkg/platform/sentinel"
)

func TestStubClientDeterministicPerHandle(t *testing.T) {
	client := &StubClient{}

	first, err := client.Extract(context.Background(), blobstore.Handle("handle-a"), models.TypeID)
	require.NoError(t, err)
	second, err := client.Extract(context.Background(), blobstore.Handle("handle-a"), models.TypeID)
	require.NoError(t, err)

	assert.Equal(t, first.Confidence, second.Confidence)
	assert.GreaterOrEqual(t, first.Confidence, 0.80)
	assert.Less(t, first.Confidence, 1.0)
}

func TestStubClientFailEvery(t *testing.T) {
	client := &StubClient{FailEvery: 3}

	var failures int
	for i := 0; i < 6; i++ {
		if _, err := client.Extract(context.Background(), blobstore.Handle("h"), models.TypeID); err != nil {
			require.ErrorIs(t, err, sentinel.ErrUnavailable)
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}

func TestStubClientConcurrentCalls(t *testing.T) {
	client := &StubClient{FailEvery: 4}

	// Hammered from parallel workers the counter must stay coherent: with
	// FailEvery=4, exactly a quarter of the calls fail.
	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	failures := make([]int, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := client.Extract(context.Background(), blobstore.Handle("h"), models.TypeID); err != nil {
					failures[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	for _, n := range failures {
		total += n
	}
	assert.Equal(t, workers*perWorker/4, total)
}
