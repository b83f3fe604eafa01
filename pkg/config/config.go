// ==============================================================================
// CONFIG PACKAGE - pkg/config/config.go
// ==============================================================================
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Backend  BackendConfig
	Name     NameConfig
	Payment  PaymentConfig
	Wallet   WalletConfig
	Resolver ResolverConfig
	Rates    RatesConfig
	Store    StoreConfig
	LogLevel string
}

type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type BackendConfig struct {
	APIURL    string `validate:"required,url"`
	MarketURL string `validate:"required,url"`
	Timeout   time.Duration
}

type NameConfig struct {
	Domain string `validate:"required"`
}

type PaymentConfig struct {
	PriceUSD           decimal.Decimal `validate:"gt=0"`
	StripeProductID    string
	CollectorAddress   string          `validate:"omitempty,bsv_address"`
	MarketplaceFeeRate decimal.Decimal `validate:"gte=0"`
	MarketplaceFeeAddr string          `validate:"omitempty,bsv_address"`
	ReturnURL          string          `validate:"required,url"`
	StateSecret        string
	StateTTL           time.Duration
}

type WalletConfig struct {
	BridgeURL         string
	CallTimeout       time.Duration
	ProfileRetryDelay time.Duration
}

type ResolverConfig struct {
	Debounce time.Duration
	Timeout  time.Duration
}

type RatesConfig struct {
	APIURL  string
	MaxAge  time.Duration
	Timeout time.Duration
}

type StoreConfig struct {
	Driver string `validate:"oneof=memory file redis postgres"`
	Path   string
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("OPNS_CALLBACK_ADDR", "127.0.0.1:8787"),
			ReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDurationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 5),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:      normalizeRedisURL(getEnv("REDIS_URL", "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Backend: BackendConfig{
			APIURL:    strings.TrimRight(getEnv("OPNS_API_URL", "https://api.1sat.name"), "/"),
			MarketURL: strings.TrimRight(getEnv("OPNS_MARKET_API_URL", "https://ordinals.gorillapool.io/api"), "/"),
			Timeout:   getDurationEnv("OPNS_API_TIMEOUT", 15*time.Second),
		},
		Name: NameConfig{
			Domain: getEnv("OPNS_DOMAIN", "1sat.name"),
		},
		Payment: PaymentConfig{
			PriceUSD:           getDecimalEnv("OPNS_PRICE_USD", decimal.NewFromInt(1)),
			StripeProductID:    getEnv("OPNS_STRIPE_PRODUCT_ID", ""),
			CollectorAddress:   getEnv("OPNS_COLLECTOR_ADDRESS", ""),
			MarketplaceFeeRate: getDecimalEnv("OPNS_MARKETPLACE_FEE_RATE", decimal.RequireFromString("0.15")),
			MarketplaceFeeAddr: getEnv("OPNS_MARKETPLACE_FEE_ADDRESS", ""),
			ReturnURL:          getEnv("OPNS_RETURN_URL", "http://127.0.0.1:8787/return"),
			StateSecret:        getEnv("OPNS_STATE_SECRET", ""),
			StateTTL:           getDurationEnv("OPNS_STATE_TTL", 24*time.Hour),
		},
		Wallet: WalletConfig{
			BridgeURL:         getEnv("OPNS_WALLET_BRIDGE_URL", "ws://127.0.0.1:8788/wallet"),
			CallTimeout:       getDurationEnv("OPNS_WALLET_TIMEOUT", 2*time.Minute),
			ProfileRetryDelay: getDurationEnv("OPNS_PROFILE_RETRY_DELAY", 2*time.Second),
		},
		Resolver: ResolverConfig{
			Debounce: getDurationEnv("OPNS_DEBOUNCE", 500*time.Millisecond),
			Timeout:  getDurationEnv("OPNS_LOOKUP_TIMEOUT", 10*time.Second),
		},
		Rates: RatesConfig{
			APIURL:  strings.TrimRight(getEnv("OPNS_RATE_API_URL", "https://api.coingecko.com/api/v3"), "/"),
			MaxAge:  getDurationEnv("OPNS_RATE_MAX_AGE", time.Hour),
			Timeout: getDurationEnv("OPNS_RATE_TIMEOUT", 15*time.Second),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(getEnv("OPNS_STORE", "file")),
			Path:   getEnv("OPNS_STORE_PATH", defaultStorePath()),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func defaultStorePath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/opns/pending.json"
	}
	return ".opns/pending.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func normalizeRedisURL(url string) string {
	// Strip redis:// or redis+tls:// scheme if present
	if strings.HasPrefix(url, "redis+tls://") {
		return url[len("redis+tls://"):]
	}
	if strings.HasPrefix(url, "redis://") {
		return url[len("redis://"):]
	}
	return url
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getDecimalEnv(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return defaultValue
}
