// Package backend is the HTTP client for the name registry API and the
// ordinals marketplace index.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"opns/pkg/errors"
	"opns/pkg/logger"
)

const maxErrorBody = 4096

// RegisterResult is the registry's answer to a registration.
type RegisterResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	Name          string `json:"name"`
}

// CheckoutRequest asks the registry for a hosted checkout session.
type CheckoutRequest struct {
	Handle     string
	PriceCents int64
	SuccessURL string
	CancelURL  string
	Address    string
}

// PaymentCompleteResult reports whether the registry already registered the
// name after seeing a direct payment.
type PaymentCompleteResult struct {
	Success       bool   `json:"success"`
	Registered    bool   `json:"registered"`
	TransactionID string `json:"transactionId"`
}

type lookupResponse struct {
	Outpoint string `json:"outpoint"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client talks to the registry API.
type Client struct {
	baseURL   string
	productID string
	client    *http.Client
	logger    logger.Logger
}

// NewClient creates a registry client for baseURL.
func NewClient(baseURL, productID string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		productID: productID,
		client:    &http.Client{Timeout: timeout},
		logger:    log,
	}
}

// Lookup returns the registration outpoint of handle. found is false when
// the registry has no record, which means the name is available.
func (c *Client) Lookup(ctx context.Context, handle string) (string, bool, error) {
	const op = "backend.lookup"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/mine/"+url.PathEscape(handle), nil)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", false, errors.NewNetwork(op, "registry unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", false, statusError(op, resp)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", false, errors.NewNetwork(op, "decode lookup response", err)
	}
	if body.Outpoint == "" {
		return "", false, nil
	}
	return body.Outpoint, true, nil
}

// Register asks the registry to issue handle to address.
func (c *Client) Register(ctx context.Context, handle, address string) (*RegisterResult, error) {
	const op = "backend.register"
	form := url.Values{}
	form.Set("handle", handle)
	if address != "" {
		form.Set("address", address)
	}

	resp, err := c.postForm(ctx, "/register", form)
	if err != nil {
		return nil, errors.NewNetwork(op, "registry unreachable", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		return nil, errors.NewValidation(op, handle+" is already registered", errors.ErrNameTaken)
	case http.StatusPaymentRequired:
		return nil, errors.NewPayment(op, "registry has no payment for "+handle, errors.ErrPaymentRequired)
	default:
		return nil, statusError(op, resp)
	}

	var result RegisterResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewNetwork(op, "decode register response", err)
	}
	c.logger.Info("Name registered", map[string]interface{}{
		"handle": handle,
		"txid":   result.TransactionID,
	})
	return &result, nil
}

// CreateCheckoutSession returns the hosted checkout URL for req.
func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	const op = "backend.create_checkout_session"
	form := url.Values{}
	form.Set("productId", c.productID)
	form.Set("name", req.Handle)
	form.Set("price", strconv.FormatInt(req.PriceCents, 10))
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	if req.Address != "" {
		form.Set("address", req.Address)
	}

	resp, err := c.postForm(ctx, "/create-checkout-session", form)
	if err != nil {
		return "", errors.NewNetwork(op, "registry unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError(op, resp)
	}

	var body checkoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.NewNetwork(op, "decode checkout response", err)
	}
	if body.URL == "" {
		return "", errors.NewNetwork(op, "checkout session has no url", errors.ErrUnexpectedStatus)
	}
	return body.URL, nil
}

// PaymentComplete reports a direct wallet payment for handle.
func (c *Client) PaymentComplete(ctx context.Context, handle, txid, address string) (*PaymentCompleteResult, error) {
	const op = "backend.payment_complete"
	form := url.Values{}
	form.Set("handle", handle)
	form.Set("txid", txid)
	form.Set("address", address)

	resp, err := c.postForm(ctx, "/payment-complete", form)
	if err != nil {
		return nil, errors.NewNetwork(op, "registry unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(op, resp)
	}

	var result PaymentCompleteResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, errors.NewNetwork(op, "decode payment response", err)
	}
	return &result, nil
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	var parsed errorResponse
	if json.Unmarshal(body, &parsed) == nil {
		switch {
		case parsed.Message != "":
			msg = parsed.Message
		case parsed.Error != "":
			msg = parsed.Error
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return errors.NewUnauthorized(op, msg, nil).With("status", resp.StatusCode)
	}
	return errors.NewNetwork(op, fmt.Sprintf("status %d: %s", resp.StatusCode, msg), errors.ErrUnexpectedStatus).
		With("status", resp.StatusCode)
}
