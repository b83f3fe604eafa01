package payment

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"

	"opns/internal/backend"
	"opns/internal/domain"
	"opns/internal/notification"
	"opns/internal/store"
	"opns/pkg/errors"
	"opns/pkg/logger"
)

// Return URL query markers.
const (
	paramSuccess   = "payment_success"
	paramCancelled = "payment_cancelled"
	paramState     = "state"
)

const defaultStateTTL = 24 * time.Hour

// Redirector sends the user to the hosted checkout page.
type Redirector interface {
	Redirect(ctx context.Context, url string) error
}

// PrintRedirector writes the checkout URL for the user to open.
type PrintRedirector struct {
	W io.Writer
}

func (p PrintRedirector) Redirect(_ context.Context, url string) error {
	_, err := fmt.Fprintf(p.W, "Open this link to pay: %s\n", url)
	return err
}

// stateClaims binds a return redirect to the pending registration.
type stateClaims struct {
	jwt.RegisteredClaims
}

// CheckoutRail pays with a card on a hosted page. The purchase finishes when
// the browser comes back to the return URL, possibly in a new process, so
// the pending registration is persisted before leaving.
type CheckoutRail struct {
	registry   Registry
	pending    store.PendingStore
	redirector Redirector
	logger     logger.Logger
	priceUSD   decimal.Decimal
	returnURL  string
	secret     []byte
	ttl        time.Duration
	now        func() time.Time
}

func NewCheckoutRail(cfg Config, registry Registry, pending store.PendingStore, redirector Redirector, log logger.Logger) *CheckoutRail {
	ttl := cfg.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &CheckoutRail{
		registry:   registry,
		pending:    pending,
		redirector: redirector,
		logger:     log,
		priceUSD:   cfg.PriceUSD,
		returnURL:  cfg.ReturnURL,
		secret:     cfg.StateSecret,
		ttl:        ttl,
		now:        time.Now,
	}
}

func (r *CheckoutRail) Kind() domain.Rail { return domain.RailHostedCheckout }

func (r *CheckoutRail) Execute(ctx context.Context, intent *domain.PurchaseIntent, req Request) (Result, error) {
	const op = "payment.checkout"

	token, err := r.signState(intent)
	if err != nil {
		return Result{}, errors.NewPayment(op, "could not sign checkout state", err)
	}
	successURL, cancelURL, err := r.returnURLs(token)
	if err != nil {
		return Result{}, errors.NewPayment(op, "invalid return url", err)
	}

	address := req.Addresses.Registration()
	err = r.pending.Save(ctx, domain.PendingRegistration{
		Handle:    req.Handle,
		Address:   address,
		State:     token,
		CreatedAt: r.now().UTC(),
	})
	if err != nil {
		return Result{}, errors.NewPayment(op, "could not remember pending registration", err)
	}

	checkoutURL, err := r.registry.CreateCheckoutSession(ctx, backend.CheckoutRequest{
		Handle:     req.Handle,
		PriceCents: Cents(r.priceUSD),
		SuccessURL: successURL,
		CancelURL:  cancelURL,
		Address:    address,
	})
	if err != nil {
		r.discard(ctx, req.Handle)
		return Result{}, errors.NewPayment(op, "could not create checkout session", err)
	}

	if err := r.redirector.Redirect(ctx, checkoutURL); err != nil {
		r.discard(ctx, req.Handle)
		return Result{}, errors.NewPayment(op, "could not open checkout", err)
	}

	r.logger.Info("Redirected to checkout", map[string]interface{}{
		"intent_id": intent.ID.String(),
		"handle":    req.Handle,
	})
	return Result{Ref: checkoutURL, Pending: true}, nil
}

// Cents converts a USD price to whole cents.
func Cents(usd decimal.Decimal) int64 {
	return usd.Shift(2).Round(0).IntPart()
}

func (r *CheckoutRail) signState(intent *domain.PurchaseIntent) (string, error) {
	now := r.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   intent.Handle,
			ID:        intent.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(r.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(r.secret)
}

// verifyState checks that token is the one issued for the pending
// registration p and has not expired.
func (r *CheckoutRail) verifyState(token string, p *domain.PendingRegistration) error {
	if p.State == "" {
		return nil
	}
	if token == "" {
		return fmt.Errorf("missing state")
	}
	if token != p.State {
		return fmt.Errorf("state belongs to another checkout")
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(r.now))
	if err != nil {
		return err
	}
	if claims.Subject != p.Handle {
		return fmt.Errorf("state issued for %q", claims.Subject)
	}
	return nil
}

func (r *CheckoutRail) returnURLs(token string) (string, string, error) {
	base, err := url.Parse(r.returnURL)
	if err != nil {
		return "", "", err
	}

	success := *base
	q := success.Query()
	q.Set(paramSuccess, "true")
	q.Set(paramState, token)
	success.RawQuery = q.Encode()

	cancel := *base
	q = cancel.Query()
	q.Set(paramCancelled, "true")
	q.Set(paramState, token)
	cancel.RawQuery = q.Encode()

	return success.String(), cancel.String(), nil
}

// live returns the pending registration when one is saved and younger than
// the state lifetime. Older ones belong to abandoned checkouts.
func (r *CheckoutRail) live(ctx context.Context) (*domain.PendingRegistration, error) {
	p, err := r.pending.Peek(ctx)
	if err != nil || p == nil {
		return nil, err
	}
	if r.now().Sub(p.CreatedAt) >= r.ttl {
		return nil, nil
	}
	return p, nil
}

// discard drops the slot saved for a checkout that never started.
func (r *CheckoutRail) discard(ctx context.Context, h string) {
	if _, err := r.pending.Take(ctx); err != nil {
		r.logger.Warn("Failed to clear pending registration", map[string]interface{}{
			"handle": h,
			"error":  err.Error(),
		})
	}
}

// ResumeOutcome says what a return redirect did.
type ResumeOutcome string

const (
	ResumeNone                ResumeOutcome = "none"
	ResumeAcquired            ResumeOutcome = "acquired"
	ResumeCancelled           ResumeOutcome = "cancelled"
	ResumeRegistrationPending ResumeOutcome = "registration_pending"
)

// ResumeResult reports the outcome of a return redirect. CleanURL is the
// redirect URL without the checkout markers; Marked is true when any marker
// was present.
type ResumeResult struct {
	Outcome  ResumeOutcome `json:"outcome"`
	Handle   string        `json:"handle,omitempty"`
	Name     string        `json:"name,omitempty"`
	CleanURL string        `json:"cleanUrl"`
	Marked   bool          `json:"-"`
}

// Resume completes or cancels a hosted checkout from its return URL. The
// pending registration is consumed exactly once, so reloading the success
// URL is a no-op.
func (o *Orchestrator) Resume(ctx context.Context, rawURL string) (ResumeResult, error) {
	const op = "payment.resume"

	u, err := url.Parse(rawURL)
	if err != nil {
		return ResumeResult{Outcome: ResumeNone, CleanURL: rawURL}, errors.NewValidation(op, "invalid return url", err)
	}
	q := u.Query()
	success := q.Get(paramSuccess) == "true"
	cancelled := q.Get(paramCancelled) == "true"
	token := q.Get(paramState)

	res := ResumeResult{
		Outcome:  ResumeNone,
		CleanURL: stripMarkers(u),
		Marked:   q.Has(paramSuccess) || q.Has(paramCancelled) || q.Has(paramState),
	}

	switch {
	case success:
		return o.resumeSuccess(ctx, token, res)
	case cancelled:
		return o.resumeCancelled(ctx, token, res)
	default:
		return res, nil
	}
}

func (o *Orchestrator) resumeSuccess(ctx context.Context, token string, res ResumeResult) (ResumeResult, error) {
	const op = "payment.resume"

	p, err := o.matchPending(ctx, token)
	if err != nil {
		return res, err
	}
	if p == nil {
		o.metrics.IncrementResumption("noop")
		o.logger.Debug("Checkout return without pending registration", nil)
		return res, nil
	}
	res.Handle = p.Handle

	p, err = o.pending.Take(ctx)
	if err != nil {
		return res, errors.NewReconciliation(op, "could not consume pending registration", err)
	}
	if p == nil {
		o.metrics.IncrementResumption("noop")
		return res, nil
	}

	intent := o.resumeIntent(p.Handle)
	reg, err := o.registry.Register(ctx, p.Handle, p.Address)
	if err == nil && !reg.Success {
		err = errors.ErrRegistrationFailed
	}
	if err != nil {
		rerr := errors.NewReconciliation(op, "payment succeeded, registration pending", err).With("handle", p.Handle)
		o.fail(ctx, intent, rerr)
		o.metrics.IncrementResumption("registration_pending")
		res.Outcome = ResumeRegistrationPending
		return res, rerr
	}

	res.Name = o.succeed(ctx, intent, reg.TransactionID)
	res.Outcome = ResumeAcquired
	o.metrics.IncrementResumption("acquired")
	return res, nil
}

func (o *Orchestrator) resumeCancelled(ctx context.Context, token string, res ResumeResult) (ResumeResult, error) {
	const op = "payment.resume"

	p, err := o.matchPending(ctx, token)
	if err != nil {
		return res, err
	}
	res.Outcome = ResumeCancelled
	if p == nil {
		o.metrics.IncrementResumption("cancelled")
		return res, nil
	}

	p, err = o.pending.Take(ctx)
	if err != nil {
		return res, errors.Wrap(err, op+": clear pending registration")
	}
	o.metrics.IncrementResumption("cancelled")
	if p == nil {
		return res, nil
	}

	res.Handle = p.Handle
	intent := o.resumeIntent(p.Handle)
	o.mu.Lock()
	_ = intent.Fail(errors.ErrCheckoutCancelled)
	o.mu.Unlock()
	o.metrics.IncrementPurchase(string(domain.RailHostedCheckout), "cancelled")

	o.logger.Info("Checkout cancelled", map[string]interface{}{"handle": p.Handle})
	o.notify(ctx, notification.EventCheckoutCancelled, map[string]interface{}{"handle": p.Handle})
	return res, nil
}

// matchPending returns the pending registration the return redirect belongs
// to, or nil when none is saved. A token issued for another checkout leaves
// the slot in place.
func (o *Orchestrator) matchPending(ctx context.Context, token string) (*domain.PendingRegistration, error) {
	const op = "payment.resume"

	p, err := o.pending.Peek(ctx)
	if err != nil {
		return nil, errors.NewReconciliation(op, "could not read pending registration", err)
	}
	if p == nil {
		return nil, nil
	}
	if err := o.checkout().verifyState(token, p); err != nil {
		o.metrics.IncrementResumption("invalid_state")
		return nil, errors.NewValidation(op, "checkout state does not match the pending registration", errors.ErrInvalidState).
			With("handle", p.Handle).
			With("reason", err.Error())
	}
	return p, nil
}

// resumeIntent returns the in-flight checkout intent for h, creating one
// when the checkout was started by another process.
func (o *Orchestrator) resumeIntent(h string) *domain.PurchaseIntent {
	o.mu.Lock()
	defer o.mu.Unlock()
	if intent, ok := o.intents[h]; ok && intent.Rail == domain.RailHostedCheckout && !intent.State.Terminal() {
		return intent
	}
	intent := domain.NewPurchaseIntent(domain.RailHostedCheckout, h, o.cfg.PriceUSD)
	_ = intent.Start()
	o.intents[h] = intent
	return intent
}

func (o *Orchestrator) checkout() *CheckoutRail {
	if r, ok := o.rails[domain.RailHostedCheckout].(*CheckoutRail); ok {
		return r
	}
	return NewCheckoutRail(o.cfg, o.registry, o.pending, nil, o.logger)
}

func stripMarkers(u *url.URL) string {
	clean := *u
	q := clean.Query()
	q.Del(paramSuccess)
	q.Del(paramCancelled)
	q.Del(paramState)
	clean.RawQuery = q.Encode()
	return clean.String()
}
