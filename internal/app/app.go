// Package app wires configuration into the running components.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"opns/internal/availability"
	"opns/internal/backend"
	"opns/internal/domain"
	"opns/internal/forex"
	"opns/internal/metrics"
	"opns/internal/notification"
	"opns/internal/payment"
	"opns/internal/repository/postgres"
	"opns/internal/store"
	"opns/internal/wallet"
	"opns/internal/wallet/bridge"
	"opns/pkg/cache"
	"opns/pkg/config"
	"opns/pkg/logger"
)

// Options adjusts how New builds the app.
type Options struct {
	// Out receives user-facing notifications. Defaults to os.Stdout.
	Out io.Writer
	// Redirector opens checkout pages. Defaults to printing the URL to Out.
	Redirector payment.Redirector
	// Offline skips dialing the wallet bridge.
	Offline bool
	// OnAcquired receives each acquired qualified name.
	OnAcquired func(name string)
}

// App holds every long-lived component of a process.
type App struct {
	Config       *config.Config
	Logger       logger.Logger
	Metrics      *metrics.Metrics
	Gatherer     prometheus.Gatherer
	Session      *wallet.Session
	Resolver     *availability.Resolver
	Rates        *forex.Service
	Pending      store.PendingStore
	Notifier     *notification.DefaultService
	Orchestrator *payment.Orchestrator

	closers []func() error
}

// New builds the app from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts Options) (*App, error) {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Redirector == nil {
		opts.Redirector = payment.PrintRedirector{W: opts.Out}
	}
	payCfg := PaymentConfig(cfg)
	if err := payCfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	a := &App{
		Config:   cfg,
		Logger:   log,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Notifier: notification.NewService(log, notification.NewWriterSink(opts.Out)),
	}

	var redisCache *cache.RedisCache
	if cfg.Store.Driver == "redis" {
		c, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		redisCache = c
		a.closers = append(a.closers, c.Close)
	}

	pending, err := a.openStore(cfg, redisCache)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Pending = pending

	provider := a.dialWallet(ctx, cfg, opts.Offline)
	a.Session = wallet.NewSession(provider, log,
		wallet.WithMetrics(a.Metrics),
		wallet.WithProfileRetryDelay(cfg.Wallet.ProfileRetryDelay),
		wallet.WithFetchTimeout(cfg.Wallet.CallTimeout),
	)
	a.Session.Start()
	a.closers = append(a.closers, func() error { a.Session.Close(); return nil })

	var rateCache forex.RateCache
	if redisCache != nil {
		rateCache = forex.NewRedisRateCache(redisCache)
	}
	a.Rates = forex.NewService(rateCache, []forex.RateProvider{
		forex.NewWalletRateProvider(a.Session),
		forex.NewCoinGeckoProvider(cfg.Rates.APIURL, cfg.Rates.Timeout),
	}, cfg.Rates.MaxAge, log, a.Metrics)

	registry := backend.NewClient(cfg.Backend.APIURL, cfg.Payment.StripeProductID, cfg.Backend.Timeout, log)
	market := backend.NewMarketClient(cfg.Backend.MarketURL, cfg.Backend.Timeout, log)

	a.Resolver = availability.NewResolver(registry, market, log,
		availability.WithDebounce(cfg.Resolver.Debounce),
		availability.WithTimeout(cfg.Resolver.Timeout),
		availability.WithMetrics(a.Metrics),
	)

	orchOpts := []payment.Option{
		payment.WithMetrics(a.Metrics),
		payment.WithNotifier(a.Notifier),
	}
	if opts.OnAcquired != nil {
		orchOpts = append(orchOpts, payment.OnAcquired(opts.OnAcquired))
	}
	a.Orchestrator = payment.New(payCfg, a.Session, registry, a.Rates, pending, opts.Redirector, log, orchOpts...)

	a.watch()
	return a, nil
}

// PaymentConfig maps configuration onto the orchestrator's settings.
func PaymentConfig(cfg *config.Config) payment.Config {
	return payment.Config{
		Domain:           cfg.Name.Domain,
		PriceUSD:         cfg.Payment.PriceUSD,
		CollectorAddress: cfg.Payment.CollectorAddress,
		FeeRate:          cfg.Payment.MarketplaceFeeRate,
		FeeAddress:       cfg.Payment.MarketplaceFeeAddr,
		ReturnURL:        cfg.Payment.ReturnURL,
		StateSecret:      []byte(cfg.Payment.StateSecret),
		StateTTL:         cfg.Payment.StateTTL,
	}
}

// Close releases everything New opened, in reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *App) openStore(cfg *config.Config, redisCache *cache.RedisCache) (store.PendingStore, error) {
	switch cfg.Store.Driver {
	case "memory":
		return store.NewMemoryStore(), nil
	case "file":
		return store.NewFileStore(cfg.Store.Path)
	case "redis":
		return store.NewRedisStore(redisCache, cfg.Payment.StateTTL), nil
	case "postgres":
		db, err := OpenDatabase(cfg)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := postgres.Migrate(db, postgres.Up); err != nil {
			return nil, err
		}
		return postgres.NewPendingRepository(db), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}

// OpenDatabase connects to DATABASE_URL with the configured pool limits.
func OpenDatabase(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	return db, nil
}

// dialWallet connects to the wallet bridge. Without one the session stays
// disconnected and Connect reports the wallet as not installed.
func (a *App) dialWallet(ctx context.Context, cfg *config.Config, offline bool) wallet.Provider {
	if offline || cfg.Wallet.BridgeURL == "" {
		return wallet.Offline{}
	}
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	client, err := bridge.Dial(dialCtx, cfg.Wallet.BridgeURL, a.Logger, cfg.Wallet.CallTimeout)
	if err != nil {
		a.Logger.Warn("Wallet bridge unavailable", map[string]interface{}{"error": err.Error()})
		return wallet.Offline{}
	}
	a.closers = append(a.closers, client.Close)
	return client
}

// watch re-checks availability when the wallet connects or disconnects and
// tells the user about lost sessions and failed checks.
func (a *App) watch() {
	var mu sync.Mutex
	last := a.Session.Snapshot().State
	a.Session.Subscribe(func(s domain.WalletSession) {
		mu.Lock()
		prev := last
		last = s.State
		mu.Unlock()
		if prev == s.State {
			return
		}
		if s.State == domain.Connected || s.State == domain.Disconnected {
			a.Resolver.Refresh()
		}
		if prev == domain.Connected && s.State == domain.Disconnected {
			a.notify(notification.EventWalletSessionReset, nil)
		}
	})

	a.Resolver.OnChange(func(c domain.NameCandidate) {
		if c.Status == domain.StatusFailed {
			a.notify(notification.EventAvailabilityUnchecked, map[string]interface{}{"handle": c.Handle})
		}
	})
}

func (a *App) notify(event string, data map[string]interface{}) {
	if err := a.Notifier.Notify(context.Background(), event, data); err != nil {
		a.Logger.Warn("Notification failed", map[string]interface{}{"event": event, "error": err.Error()})
	}
}
