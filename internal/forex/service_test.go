package forex

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"opns/internal/domain"
	opnserrors "opns/pkg/errors"
	"opns/pkg/logger"
)

// --- Mocks ---

type MockRateProvider struct {
	mock.Mock
	name string
}

func (m *MockRateProvider) Name() string { return m.name }

func (m *MockRateProvider) Rate(ctx context.Context) (decimal.Decimal, error) {
	args := m.Called(ctx)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type memoryRateCache struct {
	rate *domain.ExchangeRate
	ttl  time.Duration
}

func (c *memoryRateCache) Get(ctx context.Context) (*domain.ExchangeRate, error) {
	if c.rate == nil {
		return nil, errors.New("miss")
	}
	return c.rate, nil
}

func (c *memoryRateCache) Set(ctx context.Context, rate *domain.ExchangeRate, ttl time.Duration) error {
	c.rate = rate
	c.ttl = ttl
	return nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestService(cache RateCache, providers ...RateProvider) (*Service, *clock) {
	s := NewService(cache, providers, time.Hour, logger.NewNop(), nil)
	c := &clock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	s.now = c.now
	return s, c
}

// --- Tests ---

func TestRate_PrefersLive(t *testing.T) {
	p := &MockRateProvider{name: "wallet"}
	p.On("Rate", mock.Anything).Return(decimal.NewFromInt(50), nil).Once()
	cache := &memoryRateCache{}
	s, _ := newTestService(cache, p)

	rate, err := s.Rate(context.Background())

	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(rate.Rate))
	assert.Equal(t, "wallet", rate.Source)
	require.NotNil(t, cache.rate)
	assert.Equal(t, time.Hour, cache.ttl)
}

func TestRate_FallsThroughProviders(t *testing.T) {
	wallet := &MockRateProvider{name: "wallet"}
	wallet.On("Rate", mock.Anything).Return(decimal.Zero, errors.New("wallet locked")).Once()
	gecko := &MockRateProvider{name: "coingecko"}
	gecko.On("Rate", mock.Anything).Return(decimal.RequireFromString("42.5"), nil).Once()
	s, _ := newTestService(nil, wallet, gecko)

	rate, err := s.Rate(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "coingecko", rate.Source)
}

func TestRate_SkipsNonPositive(t *testing.T) {
	p := &MockRateProvider{name: "wallet"}
	p.On("Rate", mock.Anything).Return(decimal.Zero, nil).Once()
	s, _ := newTestService(nil, p)

	_, err := s.Rate(context.Background())

	assert.ErrorIs(t, err, opnserrors.ErrRateNotAvailable)
}

func TestRate_RememberedRateWithinWindow(t *testing.T) {
	p := &MockRateProvider{name: "wallet"}
	p.On("Rate", mock.Anything).Return(decimal.NewFromInt(50), nil).Once()
	p.On("Rate", mock.Anything).Return(decimal.Zero, errors.New("offline"))
	s, c := newTestService(nil, p)

	_, err := s.Rate(context.Background())
	require.NoError(t, err)

	c.t = c.t.Add(59 * time.Minute)
	rate, err := s.Rate(context.Background())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(50).Equal(rate.Rate))

	c.t = c.t.Add(2 * time.Minute)
	_, err = s.Rate(context.Background())
	assert.ErrorIs(t, err, opnserrors.ErrRateNotAvailable)
	assert.Equal(t, opnserrors.KindPayment, opnserrors.KindOf(err))
}

func TestRate_DistributedCacheAfterRestart(t *testing.T) {
	p := &MockRateProvider{name: "wallet"}
	p.On("Rate", mock.Anything).Return(decimal.Zero, errors.New("offline"))
	cache := &memoryRateCache{}
	s, c := newTestService(cache, p)

	cache.rate = &domain.ExchangeRate{Rate: decimal.NewFromInt(48), Source: "coingecko", FetchedAt: c.t.Add(-30 * time.Minute)}
	rate, err := s.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "coingecko", rate.Source)

	cache.rate = &domain.ExchangeRate{Rate: decimal.NewFromInt(48), Source: "coingecko", FetchedAt: c.t.Add(-2 * time.Hour)}
	s2, c2 := newTestService(cache, p)
	c2.t = c.t
	_, err = s2.Rate(context.Background())
	assert.ErrorIs(t, err, opnserrors.ErrRateNotAvailable)
}

func TestCoinGeckoProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin-cash-sv", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"bitcoin-cash-sv":{"usd":51.23}}`))
	}))
	defer srv.Close()

	rate, err := NewCoinGeckoProvider(srv.URL, time.Second).Rate(context.Background())

	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("51.23").Equal(rate))
}

func TestCoinGeckoProvider_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewCoinGeckoProvider(srv.URL, time.Second).Rate(context.Background())

	assert.ErrorContains(t, err, "status 429")
}
