// Package payment turns an available or listed name into an owned one
// through one of three rails: hosted checkout, direct wallet payment, or a
// marketplace purchase.
//
// ==============================================================================
// PURCHASE ORCHESTRATOR - internal/payment/orchestrator.go
// ==============================================================================
package payment

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"opns/internal/backend"
	"opns/internal/domain"
	"opns/internal/handle"
	"opns/internal/metrics"
	"opns/internal/notification"
	"opns/internal/store"
	"opns/internal/wallet"
	"opns/pkg/errors"
	"opns/pkg/logger"
	"opns/pkg/validator"
)

// Session is the part of the wallet session the rails use.
type Session interface {
	Snapshot() domain.WalletSession
	Connect(ctx context.Context) error
	RefreshAddresses(ctx context.Context)
	SendPayment(ctx context.Context, outputs []wallet.PaymentOutput) (string, error)
	PurchaseListing(ctx context.Context, req wallet.PurchaseListingRequest) (string, error)
}

// Registry is the part of the registry API the rails use.
type Registry interface {
	Register(ctx context.Context, handle, address string) (*backend.RegisterResult, error)
	CreateCheckoutSession(ctx context.Context, req backend.CheckoutRequest) (string, error)
	PaymentComplete(ctx context.Context, handle, txid, address string) (*backend.PaymentCompleteResult, error)
}

// RateSource prices BSV in USD.
type RateSource interface {
	Rate(ctx context.Context) (*domain.ExchangeRate, error)
}

// Config holds the pricing and routing settings of every rail.
type Config struct {
	Domain           string          `validate:"required"`
	PriceUSD         decimal.Decimal `validate:"gt=0"`
	CollectorAddress string          `validate:"omitempty,bsv_address"`
	FeeRate          decimal.Decimal `validate:"gte=0"`
	FeeAddress       string          `validate:"omitempty,bsv_address"`
	ReturnURL        string          `validate:"required,url"`
	StateSecret      []byte
	StateTTL         time.Duration
}

// Validate checks cfg against its field rules.
func (c Config) Validate() error {
	if err := validator.New().Validate(c); err != nil {
		return errors.NewValidation("payment.config", err.Error(), nil)
	}
	return nil
}

// Request is what a rail needs to buy one handle.
type Request struct {
	Handle    string `validate:"required,handle"`
	Addresses domain.Addresses
	Outpoint  string
	Price     int64 `validate:"gte=0"`
}

// Result is a rail's outcome. Pending results complete later through Resume.
type Result struct {
	Ref     string
	Pending bool
}

// Rail executes one payment method.
type Rail interface {
	Kind() domain.Rail
	Execute(ctx context.Context, intent *domain.PurchaseIntent, req Request) (Result, error)
}

// Orchestrator validates purchases, runs the chosen rail and reports the
// acquired name. Purchases of one handle never overlap.
type Orchestrator struct {
	cfg        Config
	session    Session
	registry   Registry
	pending    store.PendingStore
	rails      map[domain.Rail]Rail
	logger     logger.Logger
	metrics    *metrics.Metrics
	notifier   notification.Service
	validator  *validator.Validator
	onAcquired func(name string)

	mu      sync.Mutex
	busy    map[string]struct{}
	intents map[string]*domain.PurchaseIntent
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithNotifier(n notification.Service) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// OnAcquired sets the callback receiving the qualified name after a purchase.
func OnAcquired(fn func(name string)) Option {
	return func(o *Orchestrator) { o.onAcquired = fn }
}

// WithRail replaces the rail of the same kind.
func WithRail(r Rail) Option {
	return func(o *Orchestrator) { o.rails[r.Kind()] = r }
}

// New builds an orchestrator with the three standard rails.
func New(
	cfg Config,
	session Session,
	registry Registry,
	rates RateSource,
	pending store.PendingStore,
	redirector Redirector,
	log logger.Logger,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		session:   session,
		registry:  registry,
		pending:   pending,
		logger:    log,
		validator: validator.New(),
		busy:      make(map[string]struct{}),
		intents:   make(map[string]*domain.PurchaseIntent),
	}
	o.rails = map[domain.Rail]Rail{
		domain.RailHostedCheckout: NewCheckoutRail(cfg, registry, pending, redirector, log),
		domain.RailDirectWallet:   NewDirectRail(cfg, session, registry, rates, log),
		domain.RailMarketplace:    NewMarketRail(cfg, session, log),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Buy acquires candidate. The wallet is connected first, so a disconnected
// user is always asked to connect. A listed name then goes through the
// marketplace; an available one through pref, which must be hosted checkout
// or direct wallet. The returned intent is terminal except for hosted
// checkout, which stays in flight until Resume sees the return redirect.
func (o *Orchestrator) Buy(ctx context.Context, c domain.NameCandidate, pref domain.Rail) (*domain.PurchaseIntent, error) {
	const op = "payment.buy"

	if err := o.ensureConnected(ctx); err != nil {
		return nil, err
	}

	kind, err := selectRail(c, pref)
	if err != nil {
		return nil, err
	}

	req := Request{
		Handle:   c.Handle,
		Outpoint: c.ListingOutpoint,
		Price:    c.ListingPrice,
	}
	if err := o.validator.Validate(req); err != nil {
		return nil, errors.NewValidation(op, err.Error(), errors.ErrInvalidHandle)
	}

	if err := o.acquire(c.Handle, kind); err != nil {
		return nil, err
	}
	defer o.release(c.Handle)

	if kind == domain.RailHostedCheckout {
		// another process may be waiting on the shared slot
		p, err := o.checkout().live(ctx)
		if err != nil {
			return nil, errors.NewPayment(op, "could not read pending registration", err)
		}
		if p != nil {
			return nil, errors.NewValidation(op, "the checkout for "+p.Handle+" has not returned yet", errors.ErrPurchaseInFlight)
		}
	}

	snap, err := o.ensureAddresses(ctx, kind)
	if err != nil {
		return nil, err
	}
	req.Addresses = snap.Addresses

	intent := domain.NewPurchaseIntent(kind, c.Handle, o.amount(kind, c))
	o.mu.Lock()
	_ = intent.Start()
	o.intents[c.Handle] = intent
	o.mu.Unlock()

	o.logger.Info("Purchase started", map[string]interface{}{
		"intent_id": intent.ID.String(),
		"handle":    c.Handle,
		"rail":      string(kind),
	})

	res, err := o.rails[kind].Execute(ctx, intent, req)
	if err != nil {
		o.fail(ctx, intent, err)
		return o.Intent(c.Handle), err
	}

	if res.Pending {
		o.mu.Lock()
		intent.ExternalRef = res.Ref
		o.mu.Unlock()
		o.metrics.IncrementPurchase(string(kind), "redirected")
		o.notify(ctx, notification.EventCheckoutRedirected, map[string]interface{}{
			"handle": c.Handle,
			"url":    res.Ref,
		})
		return o.Intent(c.Handle), nil
	}

	o.succeed(ctx, intent, res.Ref)
	return o.Intent(c.Handle), nil
}

// Intent returns a copy of the latest intent for handle, or nil.
func (o *Orchestrator) Intent(h string) *domain.PurchaseIntent {
	o.mu.Lock()
	defer o.mu.Unlock()
	intent, ok := o.intents[h]
	if !ok {
		return nil
	}
	cp := *intent
	return &cp
}

// Busy reports whether a Buy of handle is running. A hosted checkout waiting
// for its return is not busy but still blocks new purchases through its
// in-flight intent.
func (o *Orchestrator) Busy(h string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.busy[h]
	return ok
}

func selectRail(c domain.NameCandidate, pref domain.Rail) (domain.Rail, error) {
	const op = "payment.select_rail"

	switch c.Status {
	case domain.StatusRegisteredListed:
		return domain.RailMarketplace, nil
	case domain.StatusAvailable:
		switch pref {
		case domain.RailHostedCheckout, domain.RailDirectWallet:
			return pref, nil
		}
		return "", errors.NewValidation(op, "choose hosted checkout or direct wallet payment", nil)
	case domain.StatusRegisteredUnlisted:
		return "", errors.NewValidation(op, c.Handle+" is registered and not for sale", errors.ErrNotAvailable)
	default:
		return "", errors.NewValidation(op, "availability of "+c.Handle+" is not known ("+string(c.Status)+")", errors.ErrNotAvailable)
	}
}

// ensureConnected connects the wallet when needed.
func (o *Orchestrator) ensureConnected(ctx context.Context) error {
	const op = "payment.connect"

	if o.session.Snapshot().IsConnected() {
		return nil
	}
	if err := o.session.Connect(ctx); err != nil {
		return err
	}
	if !o.session.Snapshot().IsConnected() {
		return errors.NewConnection(op, "connect your wallet to continue", errors.ErrNotConnected)
	}
	return nil
}

// ensureAddresses returns the session once it has the addresses the rail
// pays or registers to. Marketplace trades only need the wallet itself.
func (o *Orchestrator) ensureAddresses(ctx context.Context, kind domain.Rail) (domain.WalletSession, error) {
	const op = "payment.connect"

	snap := o.session.Snapshot()
	if kind != domain.RailMarketplace && !snap.AddressesValid {
		o.session.RefreshAddresses(ctx)
		snap = o.session.Snapshot()
		if !snap.AddressesValid {
			return snap, errors.NewConnection(op, "wallet has not shared a payment address", errors.ErrNoAddress)
		}
	}
	return snap, nil
}

func (o *Orchestrator) amount(kind domain.Rail, c domain.NameCandidate) decimal.Decimal {
	if kind == domain.RailMarketplace {
		return decimal.NewFromInt(Total(c.ListingPrice, o.cfg.FeeRate))
	}
	return o.cfg.PriceUSD
}

// acquire takes the busy flag for h. It fails while another Buy of h runs,
// while an earlier intent for h is not terminal, and, for hosted checkout,
// while any checkout still waits for its return since they share one
// pending slot.
func (o *Orchestrator) acquire(h string, kind domain.Rail) error {
	const op = "payment.buy"

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.busy[h]; ok {
		return errors.NewValidation(op, "a purchase of "+h+" is already in progress", errors.ErrPurchaseInFlight)
	}
	if intent, ok := o.intents[h]; ok && o.waiting(intent) {
		return errors.NewValidation(op, "a purchase of "+h+" is waiting to finish", errors.ErrPurchaseInFlight).
			With("intent_id", intent.ID.String())
	}
	if kind == domain.RailHostedCheckout {
		for other, intent := range o.intents {
			if intent.Rail == domain.RailHostedCheckout && o.waiting(intent) {
				return errors.NewValidation(op, "the checkout for "+other+" has not returned yet", errors.ErrPurchaseInFlight).
					With("intent_id", intent.ID.String())
			}
		}
	}
	o.busy[h] = struct{}{}
	return nil
}

// waiting reports whether intent still blocks new purchases. A checkout
// that has not returned within the state lifetime is abandoned.
func (o *Orchestrator) waiting(intent *domain.PurchaseIntent) bool {
	if intent.State.Terminal() {
		return false
	}
	if intent.Rail == domain.RailHostedCheckout {
		r := o.checkout()
		return r.now().Sub(intent.UpdatedAt) < r.ttl
	}
	return true
}

func (o *Orchestrator) release(h string) {
	o.mu.Lock()
	delete(o.busy, h)
	o.mu.Unlock()
}

func (o *Orchestrator) succeed(ctx context.Context, intent *domain.PurchaseIntent, ref string) string {
	name := handle.Qualify(intent.Handle, o.cfg.Domain)

	o.mu.Lock()
	_ = intent.Succeed(ref)
	o.mu.Unlock()

	o.metrics.IncrementPurchase(string(intent.Rail), "succeeded")
	o.logger.Info("Name acquired", map[string]interface{}{
		"intent_id": intent.ID.String(),
		"name":      name,
		"rail":      string(intent.Rail),
		"ref":       ref,
	})

	if o.onAcquired != nil {
		o.onAcquired(name)
	}
	o.notify(ctx, notification.EventNameAcquired, map[string]interface{}{"name": name, "txid": ref})
	return name
}

func (o *Orchestrator) fail(ctx context.Context, intent *domain.PurchaseIntent, cause error) {
	o.mu.Lock()
	_ = intent.Fail(cause)
	o.mu.Unlock()

	outcome := "failed"
	if errors.KindOf(cause) == errors.KindReconciliation {
		outcome = "reconciliation"
	}
	o.metrics.IncrementPurchase(string(intent.Rail), outcome)

	fields := map[string]interface{}{
		"intent_id": intent.ID.String(),
		"handle":    intent.Handle,
		"rail":      string(intent.Rail),
		"error":     cause.Error(),
	}
	for k, v := range errors.Context(cause) {
		fields[k] = v
	}
	o.logger.Error("Purchase failed", fields)

	if outcome == "reconciliation" {
		data := map[string]interface{}{"handle": intent.Handle}
		if txid, ok := errors.Context(cause)["txid"]; ok {
			data["txid"] = txid
		}
		o.notify(ctx, notification.EventRegistrationPending, data)
		return
	}
	o.notify(ctx, notification.EventPurchaseFailed, map[string]interface{}{
		"handle": intent.Handle,
		"reason": cause.Error(),
	})
}

func (o *Orchestrator) notify(ctx context.Context, event string, data map[string]interface{}) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, event, data); err != nil {
		o.logger.Warn("Notification failed", map[string]interface{}{"event": event, "error": err.Error()})
	}
}
