package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opns/internal/domain"
)

func samplePending() domain.PendingRegistration {
	return domain.PendingRegistration{
		Handle:    "alice",
		Address:   "1Ord",
		State:     "token",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// exerciseTakeOnce checks the contract every backend must honor.
func exerciseTakeOnce(t *testing.T, s PendingStore) {
	t.Helper()
	ctx := context.Background()

	p, err := s.Peek(ctx)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, s.Save(ctx, samplePending()))

	p, err = s.Peek(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.Handle)

	p, err = s.Take(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, samplePending().Address, p.Address)
	assert.Equal(t, samplePending().State, p.State)
	assert.True(t, samplePending().CreatedAt.Equal(p.CreatedAt))

	p, err = s.Take(ctx)
	require.NoError(t, err)
	assert.Nil(t, p, "second take must find the slot empty")
}

func TestMemoryStore_TakeOnce(t *testing.T) {
	exerciseTakeOnce(t, NewMemoryStore())
}

func TestFileStore_TakeOnce(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "pending.json"))
	require.NoError(t, err)
	exerciseTakeOnce(t, s)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), samplePending()))

	second, err := NewFileStore(path)
	require.NoError(t, err)
	p, err := second.Take(context.Background())
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.Handle)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStore_SaveOverwrites(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "pending.json"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, samplePending()))
	next := samplePending()
	next.Handle = "bob"
	require.NoError(t, s.Save(ctx, next))

	p, err := s.Take(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bob", p.Handle)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Peek(context.Background())
	assert.Error(t, err)
}

func TestFileStore_TakeOnceAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	ctx := context.Background()

	// separate instances model separate processes: no shared mutex
	stores := make([]*FileStore, 4)
	for i := range stores {
		s, err := NewFileStore(path)
		require.NoError(t, err)
		stores[i] = s
	}

	for round := 0; round < 50; round++ {
		require.NoError(t, stores[0].Save(ctx, samplePending()))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for _, s := range stores {
			wg.Add(1)
			go func(s *FileStore) {
				defer wg.Done()
				p, err := s.Take(ctx)
				assert.NoError(t, err)
				if p != nil {
					wins.Add(1)
				}
			}(s)
		}
		wg.Wait()
		require.Equal(t, int32(1), wins.Load(), "round %d", round)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Empty(t, entries, "takes leave no files behind")
}

func TestFileStore_TakeCorruptFileClearsSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pending.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Take(context.Background())
	assert.Error(t, err)

	p, err := s.Peek(context.Background())
	require.NoError(t, err)
	assert.Nil(t, p)
}
