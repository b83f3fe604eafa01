package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"opns/internal/domain"
)

// FileStore keeps the slot in a JSON file. Take renames the file away before
// reading it, so only one taker wins even across processes sharing path.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates the parent directory of path if needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	return &FileStore{path: path}, nil
}

func (s *FileStore) Save(_ context.Context, p domain.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSON(s.path, p, 0o600); err != nil {
		return fmt.Errorf("store: save pending: %w", err)
	}
	return nil
}

func (s *FileStore) Take(_ context.Context) (*domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken := s.path + ".taking-" + uuid.NewString()
	if err := os.Rename(s.path, taken); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: take pending: %w", err)
	}
	defer os.Remove(taken)

	var p domain.PendingRegistration
	ok, err := readJSON(taken, &p)
	if err != nil {
		return nil, fmt.Errorf("store: read pending: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *FileStore) Peek(_ context.Context) (*domain.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileStore) read() (*domain.PendingRegistration, error) {
	var p domain.PendingRegistration
	ok, err := readJSON(s.path, &p)
	if err != nil {
		return nil, fmt.Errorf("store: read pending: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return &p, nil
}
