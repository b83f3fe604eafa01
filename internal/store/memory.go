package store

import (
	"context"
	"sync"

	"opns/internal/domain"
)

// MemoryStore is a process-local PendingStore.
type MemoryStore struct {
	mu      sync.Mutex
	pending *domain.PendingRegistration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, p domain.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = &p
	return nil
}

func (s *MemoryStore) Take(_ context.Context) (*domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pending
	s.pending = nil
	return p, nil
}

func (s *MemoryStore) Peek(_ context.Context) (*domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil, nil
	}
	p := *s.pending
	return &p, nil
}
