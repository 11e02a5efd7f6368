package blobstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caregate/pkg/platform/sentinel"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestEncrypted_RoundTrip(t *testing.T) {
	store, err := NewEncrypted(NewMemory(), testKey())
	require.NoError(t, err)

	plaintext := []byte("scanned passport bytes")
	handle, err := store.Put(context.Background(), plaintext)
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	got, err := store.Get(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncrypted_CiphertextAtRest(t *testing.T) {
	inner := NewMemory()
	store, err := NewEncrypted(inner, testKey())
	require.NoError(t, err)

	plaintext := []byte("raw national id scan")
	handle, err := store.Put(context.Background(), plaintext)
	require.NoError(t, err)

	// The inner store must never hold the plaintext.
	sealed, err := inner.Get(context.Background(), Handle(handle))
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "national id")
	assert.NotEqual(t, plaintext, sealed)
}

func TestEncrypted_DistinctHandlesForSameContent(t *testing.T) {
	store, err := NewEncrypted(NewMemory(), testKey())
	require.NoError(t, err)

	plaintext := []byte("re-uploaded scan")
	h1, err := store.Put(context.Background(), plaintext)
	require.NoError(t, err)
	h2, err := store.Put(context.Background(), plaintext)
	require.NoError(t, err)

	// The per-write nonce makes ciphertexts, and therefore handles, unique.
	assert.NotEqual(t, h1, h2)
	for _, h := range []Handle{h1, h2} {
		got, err := store.Get(context.Background(), h)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncrypted_RejectsShortKey(t *testing.T) {
	_, err := NewEncrypted(NewMemory(), []byte("short"))
	require.Error(t, err)
}

func TestEncrypted_GetUnknownHandle(t *testing.T) {
	store, err := NewEncrypted(NewMemory(), testKey())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), Handle("missing"))
	require.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestMemory_ContentAddressed(t *testing.T) {
	store := NewMemory()

	h1, err := store.Put(context.Background(), []byte("same bytes"))
	require.NoError(t, err)
	h2, err := store.Put(context.Background(), []byte("same bytes"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "identical content shares one handle")

	h3, err := store.Put(context.Background(), []byte("other bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
