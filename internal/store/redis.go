package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"opns/internal/domain"
	"opns/pkg/cache"
)

// RedisStore keeps the slot in redis; Take uses GETDEL.
type RedisStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisStore expires an abandoned slot after ttl; zero keeps it forever.
func NewRedisStore(c *cache.RedisCache, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: c, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, p domain.PendingRegistration) error {
	if err := s.cache.Set(ctx, Slot, p, s.ttl); err != nil {
		return fmt.Errorf("store: save pending: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context) (*domain.PendingRegistration, error) {
	var p domain.PendingRegistration
	if err := s.cache.Take(ctx, Slot, &p); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: take pending: %w", err)
	}
	return &p, nil
}

func (s *RedisStore) Peek(ctx context.Context) (*domain.PendingRegistration, error) {
	var p domain.PendingRegistration
	if err := s.cache.Get(ctx, Slot, &p); err != nil {
		if errors.Is(err, cache.ErrMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: peek pending: %w", err)
	}
	return &p, nil
}
