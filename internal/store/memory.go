package store

import (
	"context"
	"sync"
)

// MemoryStore holds the snapshot in process memory. Used as the failover
// fallback and as a test double. A non-zero quota caps the accepted
// snapshot size so storage-full handling is exercisable.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	quota int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func NewMemoryStoreWithQuota(quota int) *MemoryStore {
	return &MemoryStore{quota: quota}
}

func (s *MemoryStore) Load(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, nil
	}
	return append([]byte(nil), s.data...), nil
}

func (s *MemoryStore) Save(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quota > 0 && len(data) > s.quota {
		return ErrStorageFull
	}
	s.data = append([]byte(nil), data...)
	return nil
}
