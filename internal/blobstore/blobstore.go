// Package blobstore provides content-addressed storage for raw document
// bytes. Handles are opaque to callers; the encrypted implementation wraps an
// inner store so the core never sees encryption details.
package blobstore

import "context"

// Handle is an opaque pointer to stored content.
type Handle string

// Store is the put/get contract for document bytes.
type Store interface {
	// Put stores the bytes and returns a handle for later retrieval.
	// Whether identical content deduplicates to the same handle is
	// implementation-defined: the plain memory store is content-addressed,
	// while the encrypted store salts every write with a fresh nonce.
	Put(ctx context.Context, data []byte) (Handle, error)
	// Get returns the bytes for a handle, or sentinel.ErrNotFound.
	Get(ctx context.Context, handle Handle) ([]byte, error)
}
