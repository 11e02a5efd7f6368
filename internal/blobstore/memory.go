package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"caregate/pkg/platform/sentinel"
)

// Memory stores blobs in process memory, addressed by content hash.
type Memory struct {
	mu    sync.RWMutex
	blobs map[Handle][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[Handle][]byte)}
}

func (s *Memory) Put(_ context.Context, data []byte) (Handle, error) {
	sum := sha256.Sum256(data)
	handle := Handle(hex.EncodeToString(sum[:]))

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.blobs[handle]; !exists {
		cp := make([]byte, len(data))
		copy(cp, data)
		s.blobs[handle] = cp
	}
	return handle, nil
}

func (s *Memory) Get(_ context.Context, handle Handle) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[handle]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
