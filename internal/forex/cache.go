package forex

import (
	"context"
	"time"

	"opns/internal/domain"
	"opns/pkg/cache"
)

const rateKey = "opns:rate:bsv-usd"

type RedisRateCache struct {
	cache *cache.RedisCache
}

func NewRedisRateCache(c *cache.RedisCache) RateCache {
	return &RedisRateCache{cache: c}
}

func (c *RedisRateCache) Get(ctx context.Context) (*domain.ExchangeRate, error) {
	var rate domain.ExchangeRate
	if err := c.cache.Get(ctx, rateKey, &rate); err != nil {
		return nil, err
	}
	return &rate, nil
}

func (c *RedisRateCache) Set(ctx context.Context, rate *domain.ExchangeRate, ttl time.Duration) error {
	return c.cache.Set(ctx, rateKey, rate, ttl)
}
