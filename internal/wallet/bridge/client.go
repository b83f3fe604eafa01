// Package bridge implements wallet.Provider over a JSON-RPC websocket
// exposed by a local wallet bridge.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"opns/internal/domain"
	"opns/internal/wallet"
	"opns/pkg/errors"
	"opns/pkg/logger"
)

const (
	methodConnect         = "connect"
	methodDisconnect      = "disconnect"
	methodGetAddresses    = "getAddresses"
	methodGetProfile      = "getSocialProfile"
	methodSendBsv         = "sendBsv"
	methodPurchaseOrdinal = "purchaseOrdinal"
	methodGetExchangeRate = "getExchangeRate"
	methodGetOrdinals     = "getOrdinals"

	codeUnauthorized = "unauthorized"

	writeWait = 10 * time.Second
)

type request struct {
	ID     string      `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelope is either a response (ID set) or a pushed event (Event set).
type envelope struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
}

type addressesResult struct {
	BsvAddress      string `json:"bsvAddress"`
	OrdAddress      string `json:"ordAddress"`
	IdentityAddress string `json:"identityAddress"`
}

type txResult struct {
	Txid string `json:"txid"`
}

type ordinalsParams struct {
	From  string `json:"from,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type ordinalResult struct {
	ID       string `json:"id"`
	Outpoint string `json:"outpoint"`
	TypeInfo struct {
		Content string `json:"content"`
	} `json:"typeInfo"`
	Data json.RawMessage `json:"data"`
}

type ordinalsPage struct {
	Ordinals []ordinalResult `json:"ordinals"`
	From     string          `json:"from"`
}

// Client is a wallet.Provider backed by a websocket connection.
type Client struct {
	conn    *websocket.Conn
	logger  logger.Logger
	timeout time.Duration

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan envelope

	handlersMu sync.Mutex
	handlers   map[wallet.Event]map[int]func()
	nextID     int

	alive atomic.Bool
	done  chan struct{}
}

var _ wallet.Provider = (*Client)(nil)

// Dial connects to the bridge at url and starts reading.
func Dial(ctx context.Context, url string, log logger.Logger, timeout time.Duration) (*Client, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, errors.NewConnection("bridge.dial", "wallet bridge unreachable at "+url, err)
	}

	c := &Client{
		conn:     conn,
		logger:   log,
		timeout:  timeout,
		pending:  make(map[string]chan envelope),
		handlers: make(map[wallet.Event]map[int]func()),
		done:     make(chan struct{}),
	}
	c.alive.Store(true)
	go c.readLoop()

	log.Info("Wallet bridge connected", map[string]interface{}{"url": url})
	return c, nil
}

// Ready reports whether the bridge connection is open.
func (c *Client) Ready() bool {
	return c.alive.Load()
}

// Close closes the connection; pending calls fail.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) Connect(ctx context.Context) (string, error) {
	var pubKey string
	if err := c.call(ctx, methodConnect, nil, &pubKey); err != nil {
		return "", err
	}
	return pubKey, nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	return c.call(ctx, methodDisconnect, nil, nil)
}

func (c *Client) Addresses(ctx context.Context) (domain.Addresses, error) {
	var res addressesResult
	if err := c.call(ctx, methodGetAddresses, nil, &res); err != nil {
		return domain.Addresses{}, err
	}
	return domain.Addresses{
		Payment:  res.BsvAddress,
		Ordinal:  res.OrdAddress,
		Identity: res.IdentityAddress,
	}, nil
}

func (c *Client) SocialProfile(ctx context.Context) (domain.Profile, error) {
	var res domain.Profile
	if err := c.call(ctx, methodGetProfile, nil, &res); err != nil {
		return domain.Profile{}, err
	}
	return res, nil
}

func (c *Client) SendPayment(ctx context.Context, outputs []wallet.PaymentOutput) (string, error) {
	var res txResult
	if err := c.call(ctx, methodSendBsv, outputs, &res); err != nil {
		return "", err
	}
	return res.Txid, nil
}

func (c *Client) PurchaseListing(ctx context.Context, req wallet.PurchaseListingRequest) (string, error) {
	var txid string
	if err := c.call(ctx, methodPurchaseOrdinal, req, &txid); err != nil {
		return "", err
	}
	return txid, nil
}

func (c *Client) ExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	var rate decimal.Decimal
	if err := c.call(ctx, methodGetExchangeRate, nil, &rate); err != nil {
		return decimal.Zero, err
	}
	return rate, nil
}

// Ordinals fetches one page of ordinals. Wallets answer either with a page
// or, without paging support, with a bare list.
func (c *Client) Ordinals(ctx context.Context, from string, limit int) (domain.OrdinalPage, error) {
	var raw json.RawMessage
	if err := c.call(ctx, methodGetOrdinals, ordinalsParams{From: from, Limit: limit}, &raw); err != nil {
		return domain.OrdinalPage{}, err
	}
	if len(raw) == 0 {
		return domain.OrdinalPage{}, nil
	}

	var page ordinalsPage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &page.Ordinals); err != nil {
			return domain.OrdinalPage{}, fmt.Errorf("bridge.%s: decode result: %w", methodGetOrdinals, err)
		}
	} else if err := json.Unmarshal(raw, &page); err != nil {
		return domain.OrdinalPage{}, fmt.Errorf("bridge.%s: decode result: %w", methodGetOrdinals, err)
	}

	out := domain.OrdinalPage{From: page.From, Ordinals: make([]domain.Ordinal, 0, len(page.Ordinals))}
	for _, o := range page.Ordinals {
		out.Ordinals = append(out.Ordinals, domain.Ordinal{
			ID:       o.ID,
			Outpoint: o.Outpoint,
			Content:  o.TypeInfo.Content,
			Data:     o.Data,
		})
	}
	return out, nil
}

// On registers handler for a pushed event.
func (c *Client) On(event wallet.Event, handler func()) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]func())
	}
	id := c.nextID
	c.nextID++
	c.handlers[event][id] = handler

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *Client) call(ctx context.Context, method string, params interface{}, result interface{}) error {
	if !c.alive.Load() {
		return errors.NewConnection("bridge."+method, "wallet bridge closed", errors.ErrWalletNotReady)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	id := uuid.NewString()
	ch := make(chan envelope, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()
	if !c.alive.Load() {
		return errors.NewConnection("bridge."+method, "wallet bridge closed", errors.ErrWalletNotReady)
	}

	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(request{ID: id, Method: method, Params: params})
	c.writeMu.Unlock()
	if err != nil {
		return errors.NewNetwork("bridge."+method, "write request", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return errors.NewConnection("bridge."+method, "wallet bridge closed", errors.ErrWalletNotReady)
		}
		if resp.Error != nil {
			return toError(method, resp.Error)
		}
		if result == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
			return nil
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("bridge.%s: decode result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return errors.NewNetwork("bridge."+method, "wallet did not respond", ctx.Err())
	}
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer c.failPending()

	for {
		var msg envelope
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.alive.Store(false)
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("Wallet bridge read failed", map[string]interface{}{"error": err.Error()})
			}
			return
		}

		if msg.Event != "" {
			c.dispatch(wallet.Event(msg.Event))
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		c.pendingMu.Unlock()
		if !ok {
			c.logger.Debug("Wallet bridge response without caller", map[string]interface{}{"id": msg.ID})
			continue
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

func (c *Client) dispatch(event wallet.Event) {
	c.handlersMu.Lock()
	handlers := make([]func(), 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		handlers = append(handlers, h)
	}
	c.handlersMu.Unlock()

	c.logger.Debug("Wallet event", map[string]interface{}{"event": string(event), "handlers": len(handlers)})
	for _, h := range handlers {
		h()
	}
}

func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func toError(method string, e *rpcError) error {
	if e.Code == codeUnauthorized {
		return errors.NewUnauthorized("bridge."+method, e.Message, errors.ErrUnauthorized)
	}
	return fmt.Errorf("bridge.%s: %s (%s)", method, e.Message, e.Code)
}
