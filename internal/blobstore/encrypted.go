package blobstore

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encrypted wraps an inner store with ChaCha20-Poly1305 encryption at rest.
// The handle addresses the ciphertext; callers see plaintext on Get and never
// learn the key or nonce layout.
type Encrypted struct {
	inner Store
	key   []byte
}

// NewEncrypted builds an encrypting store. The key must be 32 bytes
// (chacha20poly1305.KeySize).
func NewEncrypted(inner Store, key []byte) (*Encrypted, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("blobstore key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Encrypted{inner: inner, key: k}, nil
}

// Put encrypts and stores the data. The nonce is generated per write and
// prefixed to the ciphertext, so identical plaintexts produce distinct
// ciphertexts and distinct handles.
func (s *Encrypted) Put(ctx context.Context, data []byte) (Handle, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("init cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, data, nil)
	return s.inner.Put(ctx, sealed)
}

// Get fetches and decrypts the content for a handle. A decryption failure
// means the stored bytes were tampered with or the key rotated; either way
// the content is unreadable and the error says so without leaking details.
func (s *Encrypted) Get(ctx context.Context, handle Handle) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, handle)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("stored blob shorter than nonce")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt blob: %w", err)
	}
	return plaintext, nil
}
