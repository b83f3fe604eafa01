package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"opns/internal/domain"
	"opns/pkg/errors"
	"opns/pkg/logger"
)

type txoResponse struct {
	Outpoint string `json:"outpoint"`
	Data     struct {
		List *struct {
			Price int64 `json:"price"`
			Sale  bool  `json:"sale"`
		} `json:"list"`
	} `json:"data"`
}

// MarketClient reads listings from the ordinals marketplace index.
type MarketClient struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewMarketClient(baseURL string, timeout time.Duration, log logger.Logger) *MarketClient {
	return &MarketClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// Listing returns the listing at outpoint, or nil when it is not listed.
func (m *MarketClient) Listing(ctx context.Context, outpoint string) (*domain.Listing, error) {
	const op = "market.listing"
	parsed, err := domain.ParseOutpoint(outpoint)
	if err != nil {
		return nil, errors.NewValidation(op, "bad outpoint from registry", err)
	}

	url := fmt.Sprintf("%s/txos/%s?script=false", m.baseURL, parsed.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, errors.NewNetwork(op, "marketplace unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	var body txoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.NewNetwork(op, "decode listing", err)
	}
	if body.Data.List == nil {
		return nil, nil
	}

	m.logger.Debug("Marketplace listing", map[string]interface{}{
		"outpoint": parsed.String(),
		"price":    body.Data.List.Price,
		"sale":     body.Data.List.Sale,
	})
	return &domain.Listing{
		Outpoint: parsed.String(),
		ForSale:  body.Data.List.Sale,
		Price:    body.Data.List.Price,
	}, nil
}
