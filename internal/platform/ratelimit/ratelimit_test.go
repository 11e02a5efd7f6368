package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- in-memory store ---

func TestInMemoryStore_EnforcesLimitPerKey(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	for i := 0; i < 3; i++ {
		result, err := store.Allow(ctx, "member-a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
		assert.Equal(t, 3-(i+1), result.Remaining)
	}

	result, err := store.Allow(ctx, "member-a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.False(t, result.ResetAt.IsZero())

	// Other keys keep their own budget.
	result, err = store.Allow(ctx, "member-b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestInMemoryStore_WindowSlides(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now()
	store.clock = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		result, err := store.Allow(ctx, "member-a", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	result, err := store.Allow(ctx, "member-a", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// The first request ages out of the window; one slot reopens.
	now = now.Add(61 * time.Second)
	result, err = store.Allow(ctx, "member-a", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

// --- middleware ---

func TestMiddleware_Returns429OverLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Middleware(NewInMemoryStore(), 2, time.Minute, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/enrollments/x/documents", nil)
		req.RemoteAddr = "203.0.113.9:51000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))

	do()
	rec = do()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "rate_limited")
}

type failingStore struct{}

func (failingStore) Allow(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, context.DeadlineExceeded
}

func TestMiddleware_FailsOpenOnStoreError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := Middleware(failingStore{}, 1, time.Minute, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}),
	)

	req := httptest.NewRequest(http.MethodPost, "/enrollments/x/documents", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
