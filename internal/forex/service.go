// Package forex implements BSV/USD rate retrieval with a freshness window.
//
// ==============================================================================
// FOREX SERVICE - internal/forex/service.go
// ==============================================================================
package forex

import (
	"context"
	"sync"
	"time"

	"opns/internal/domain"
	"opns/internal/metrics"
	"opns/pkg/errors"
	"opns/pkg/logger"

	"github.com/shopspring/decimal"
)

// DefaultMaxAge is how old a remembered rate may be and still price a payment.
const DefaultMaxAge = time.Hour

// Service provides the USD per BSV rate, preferring live providers.
type Service struct {
	cache     RateCache
	providers []RateProvider
	logger    logger.Logger
	metrics   *metrics.Metrics
	maxAge    time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	last *domain.ExchangeRate
}

// NewService constructs a forex Service. cache may be nil.
func NewService(cache RateCache, providers []RateProvider, maxAge time.Duration, log logger.Logger, m *metrics.Metrics) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{
		cache:     cache,
		providers: providers,
		logger:    log,
		metrics:   m,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// Rate returns a live rate when any provider answers, otherwise a remembered
// rate younger than the max age, otherwise ErrRateNotAvailable.
func (s *Service) Rate(ctx context.Context) (*domain.ExchangeRate, error) {
	if rate := s.fetchLive(ctx); rate != nil {
		s.metrics.IncrementRateLookup("live")
		return rate, nil
	}

	now := s.now()

	// Try cache first (In-Memory)
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()
	if last != nil && last.Age(now) < s.maxAge {
		s.metrics.IncrementRateLookup("memory")
		return last, nil
	}

	// Try Distributed Cache (Redis)
	if s.cache != nil {
		rate, err := s.cache.Get(ctx)
		if err == nil && rate.Rate.IsPositive() && rate.Age(now) < s.maxAge {
			s.mu.Lock()
			s.last = rate
			s.mu.Unlock()
			s.metrics.IncrementRateLookup("cache")
			return rate, nil
		}
		if err != nil {
			s.logger.Debug("Rate cache miss", map[string]interface{}{"error": err.Error()})
		}
	}

	s.metrics.IncrementRateLookup("unavailable")
	return nil, errors.NewPayment("forex.rate", "no exchange rate younger than "+s.maxAge.String(), errors.ErrRateNotAvailable)
}

func (s *Service) fetchLive(ctx context.Context) *domain.ExchangeRate {
	for _, provider := range s.providers {
		value, err := provider.Rate(ctx)
		if err != nil {
			s.logger.Warn("Provider failed", map[string]interface{}{
				"provider": provider.Name(),
				"error":    err.Error(),
			})
			continue
		}
		if !value.IsPositive() {
			s.logger.Warn("Provider returned non-positive rate", map[string]interface{}{
				"provider": provider.Name(),
				"rate":     value.String(),
			})
			continue
		}

		rate := &domain.ExchangeRate{Rate: value, Source: provider.Name(), FetchedAt: s.now()}
		s.mu.Lock()
		s.last = rate
		s.mu.Unlock()

		if s.cache != nil {
			if err := s.cache.Set(ctx, rate, s.maxAge); err != nil {
				s.logger.Error("Failed to cache rate", map[string]interface{}{"error": err.Error()})
			}
		}
		return rate
	}
	return nil
}

// RateCache stores the last good rate outside the process.
type RateCache interface {
	Get(ctx context.Context) (*domain.ExchangeRate, error)
	Set(ctx context.Context, rate *domain.ExchangeRate, ttl time.Duration) error
}

// RateProvider supplies a live USD per BSV rate.
type RateProvider interface {
	Name() string
	Rate(ctx context.Context) (decimal.Decimal, error)
}
