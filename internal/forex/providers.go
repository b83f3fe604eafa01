// ==============================================================================
// FOREX RATE PROVIDERS - internal/forex/providers.go
// ==============================================================================
package forex

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	coingeckoAPI = "https://api.coingecko.com/api/v3"
	coingeckoID  = "bitcoin-cash-sv"
)

// WalletRate is the part of the wallet session that quotes a rate.
type WalletRate interface {
	ExchangeRate(ctx context.Context) (decimal.Decimal, error)
}

// WalletRateProvider asks the connected wallet for its rate.
type WalletRateProvider struct {
	wallet WalletRate
}

func NewWalletRateProvider(w WalletRate) *WalletRateProvider {
	return &WalletRateProvider{wallet: w}
}

func (p *WalletRateProvider) Name() string {
	return "wallet"
}

func (p *WalletRateProvider) Rate(ctx context.Context) (decimal.Decimal, error) {
	return p.wallet.ExchangeRate(ctx)
}

// CoinGeckoProvider reads the BSV price from the CoinGecko simple price API.
type CoinGeckoProvider struct {
	baseURL string
	client  *http.Client
}

func NewCoinGeckoProvider(baseURL string, timeout time.Duration) *CoinGeckoProvider {
	if baseURL == "" {
		baseURL = coingeckoAPI
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &CoinGeckoProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (p *CoinGeckoProvider) Name() string {
	return "coingecko"
}

func (p *CoinGeckoProvider) Rate(ctx context.Context) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", p.baseURL, coingeckoID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("failed to get rate: status %d", resp.StatusCode)
	}

	var prices map[string]map[string]decimal.Decimal
	if err := json.NewDecoder(resp.Body).Decode(&prices); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode rate: %w", err)
	}

	usd, ok := prices[coingeckoID]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("no usd price for %s", coingeckoID)
	}
	return usd, nil
}
