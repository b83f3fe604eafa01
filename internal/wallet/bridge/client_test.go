package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opns/internal/domain"
	"opns/internal/wallet"
	opnserrors "opns/pkg/errors"
	"opns/pkg/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type incoming struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// fakeWallet answers requests with canned results and can push events.
type fakeWallet struct {
	t       *testing.T
	replies map[string]interface{}
	errors  map[string]rpcError

	mu       sync.Mutex
	conn     *websocket.Conn
	received []incoming
	ready    chan struct{}
}

func newFakeWallet(t *testing.T) (*fakeWallet, string) {
	fw := &fakeWallet{
		t:       t,
		replies: map[string]interface{}{},
		errors:  map[string]rpcError{},
		ready:   make(chan struct{}),
	}
	srv := httptest.NewServer(http.HandlerFunc(fw.serve))
	t.Cleanup(srv.Close)
	return fw, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (fw *fakeWallet) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fw.mu.Lock()
	fw.conn = conn
	fw.mu.Unlock()
	close(fw.ready)

	for {
		var req incoming
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		fw.mu.Lock()
		fw.received = append(fw.received, req)
		resp := map[string]interface{}{"id": req.ID}
		if e, ok := fw.errors[req.Method]; ok {
			resp["error"] = e
		} else {
			resp["result"] = fw.replies[req.Method]
		}
		err := conn.WriteJSON(resp)
		fw.mu.Unlock()
		if err != nil {
			return
		}
	}
}

func (fw *fakeWallet) push(event string) {
	<-fw.ready
	fw.mu.Lock()
	defer fw.mu.Unlock()
	require.NoError(fw.t, fw.conn.WriteJSON(map[string]string{"event": event}))
}

func (fw *fakeWallet) drop() {
	<-fw.ready
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_ = fw.conn.Close()
}

func (fw *fakeWallet) lastParams(method string) json.RawMessage {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	for i := len(fw.received) - 1; i >= 0; i-- {
		if fw.received[i].Method == method {
			return fw.received[i].Params
		}
	}
	return nil
}

func dial(t *testing.T, url string) *Client {
	t.Helper()
	c, err := Dial(context.Background(), url, logger.NewNop(), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClient_RoundTrips(t *testing.T) {
	fw, url := newFakeWallet(t)
	fw.replies[methodConnect] = "02pubkey"
	fw.replies[methodGetAddresses] = addressesResult{BsvAddress: "1Pay", OrdAddress: "1Ord", IdentityAddress: "1Id"}
	fw.replies[methodGetProfile] = domain.Profile{DisplayName: "Alice"}
	fw.replies[methodSendBsv] = txResult{Txid: "tx1"}
	fw.replies[methodPurchaseOrdinal] = "tx2"
	fw.replies[methodGetExchangeRate] = 50.25

	c := dial(t, url)
	ctx := context.Background()
	assert.True(t, c.Ready())

	pub, err := c.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, "02pubkey", pub)

	addrs, err := c.Addresses(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Addresses{Payment: "1Pay", Ordinal: "1Ord", Identity: "1Id"}, addrs)

	profile, err := c.SocialProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.DisplayName)

	txid, err := c.SendPayment(ctx, []wallet.PaymentOutput{{Address: "1Collector", Satoshis: 2000000}})
	require.NoError(t, err)
	assert.Equal(t, "tx1", txid)
	assert.JSONEq(t, `[{"address":"1Collector","satoshis":2000000}]`, string(fw.lastParams(methodSendBsv)))

	txid, err = c.PurchaseListing(ctx, wallet.PurchaseListingRequest{
		Outpoint:           "abc_0",
		MarketplaceRate:    decimal.RequireFromString("0.15"),
		MarketplaceAddress: "1Fees",
	})
	require.NoError(t, err)
	assert.Equal(t, "tx2", txid)

	rate, err := c.ExchangeRate(ctx)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("50.25").Equal(rate))
}

func TestClient_Ordinals(t *testing.T) {
	fw, url := newFakeWallet(t)
	fw.replies[methodGetOrdinals] = map[string]interface{}{
		"ordinals": []map[string]interface{}{
			{"id": "o1", "outpoint": "a_0", "typeInfo": map[string]string{"content": "alice@1sat.name"}},
			{"id": "o2", "outpoint": "b_0", "data": map[string]string{"name": "bob@1sat.name"}},
		},
		"from": "next",
	}
	c := dial(t, url)

	page, err := c.Ordinals(context.Background(), "start", 20)
	require.NoError(t, err)
	assert.JSONEq(t, `{"from":"start","limit":20}`, string(fw.lastParams(methodGetOrdinals)))
	assert.Equal(t, "next", page.From)
	require.Len(t, page.Ordinals, 2)
	assert.Equal(t, "alice@1sat.name", page.Ordinals[0].Content)
	assert.Equal(t, []domain.OwnedName{
		{Name: "alice@1sat.name", Outpoint: "a_0"},
		{Name: "bob@1sat.name", Outpoint: "b_0"},
	}, domain.OwnedNames(page.Ordinals, "1sat.name"))
}

func TestClient_OrdinalsBareList(t *testing.T) {
	fw, url := newFakeWallet(t)
	fw.replies[methodGetOrdinals] = []map[string]interface{}{
		{"id": "o1", "outpoint": "a_0", "data": "carol@1sat.name"},
	}
	c := dial(t, url)

	page, err := c.Ordinals(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.From)
	require.Len(t, page.Ordinals, 1)
	name, ok := page.Ordinals[0].NameOf("1sat.name")
	assert.True(t, ok)
	assert.Equal(t, "carol@1sat.name", name)
}

func TestClient_UnauthorizedErrorCode(t *testing.T) {
	fw, url := newFakeWallet(t)
	fw.errors[methodGetAddresses] = rpcError{Code: codeUnauthorized, Message: "session revoked"}
	fw.errors[methodSendBsv] = rpcError{Code: "rejected", Message: "user cancelled"}

	c := dial(t, url)

	_, err := c.Addresses(context.Background())
	assert.True(t, opnserrors.IsUnauthorized(err))

	_, err = c.SendPayment(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, opnserrors.IsUnauthorized(err))
	assert.Contains(t, err.Error(), "user cancelled")
}

func TestClient_DispatchesEvents(t *testing.T) {
	fw, url := newFakeWallet(t)
	fw.replies[methodGetExchangeRate] = 1
	c := dial(t, url)

	fired := make(chan struct{}, 1)
	off := c.On(wallet.EventSignedOut, func() { fired <- struct{}{} })

	fw.push("signedOut")
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("signedOut handler not called")
	}

	off()
	fw.push("signedOut")
	// a follow-up call proves the event was read and ignored
	_, err := c.ExchangeRate(context.Background())
	require.NoError(t, err)
	assert.Len(t, fired, 0)
}

func TestClient_ConnectionLossFailsCalls(t *testing.T) {
	fw, url := newFakeWallet(t)
	c := dial(t, url)

	fw.drop()

	require.Eventually(t, func() bool { return !c.Ready() }, time.Second, 5*time.Millisecond)
	_, err := c.Connect(context.Background())
	assert.ErrorIs(t, err, opnserrors.ErrWalletNotReady)
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/wallet", logger.NewNop(), time.Second)
	require.Error(t, err)
	assert.Equal(t, opnserrors.KindConnection, opnserrors.KindOf(err))
}
