// Package availability resolves whether a handle can be bought, debouncing
// input and remembering failures until the user edits or retries.
package availability

import (
	"context"
	"sync"
	"time"

	"opns/internal/domain"
	"opns/internal/handle"
	"opns/internal/metrics"
	"opns/pkg/errors"
	"opns/pkg/logger"
)

const (
	DefaultDebounce = 500 * time.Millisecond
	defaultTimeout  = 10 * time.Second
)

// Registry looks up a handle's registration outpoint.
type Registry interface {
	Lookup(ctx context.Context, handle string) (outpoint string, found bool, err error)
}

// Market looks up the listing for an outpoint; nil means not listed.
type Market interface {
	Listing(ctx context.Context, outpoint string) (*domain.Listing, error)
}

// Timer is the part of *time.Timer the resolver uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Resolver tracks the live handle and its availability.
type Resolver struct {
	registry  Registry
	market    Market
	logger    logger.Logger
	metrics   *metrics.Metrics
	debounce  time.Duration
	timeout   time.Duration
	afterFunc AfterFunc

	mu           sync.Mutex
	current      domain.NameCandidate
	generation   uint64
	stickyHandle string
	pending      Timer
	listeners    []func(domain.NameCandidate)
}

// Option configures a Resolver.
type Option func(*Resolver)

func WithDebounce(d time.Duration) Option {
	return func(r *Resolver) { r.debounce = d }
}

func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithAfterFunc replaces the debounce scheduler.
func WithAfterFunc(f AfterFunc) Option {
	return func(r *Resolver) { r.afterFunc = f }
}

func NewResolver(registry Registry, market Market, log logger.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		registry:  registry,
		market:    market,
		logger:    log,
		debounce:  DefaultDebounce,
		timeout:   defaultTimeout,
		afterFunc: realAfterFunc,
		current:   domain.NameCandidate{Status: domain.StatusUnknown},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnChange registers fn to receive every candidate update.
func (r *Resolver) OnChange(fn func(domain.NameCandidate)) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// Current returns the live candidate.
func (r *Resolver) Current() domain.NameCandidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Check feeds raw input to the resolver. A changed handle supersedes the
// previous candidate, clears any sticky failure and restarts the debounce.
func (r *Resolver) Check(raw string) {
	h := handle.Sanitize(raw)
	if h == "" {
		return
	}

	r.mu.Lock()
	if h == r.current.Handle {
		r.current.RawInput = raw
		r.mu.Unlock()
		return
	}

	r.cancelPendingLocked()
	r.generation++
	r.stickyHandle = ""

	if len(h) < handle.MinLength {
		r.current = domain.NameCandidate{RawInput: raw, Handle: h, Status: domain.StatusUnknown}
		snap := r.current
		r.mu.Unlock()
		r.notify(snap)
		return
	}

	r.current = domain.NameCandidate{RawInput: raw, Handle: h, Status: domain.StatusChecking}
	r.scheduleLocked(h)
	snap := r.current
	r.mu.Unlock()
	r.notify(snap)
}

// Refresh re-checks the live handle after the debounce, unless it is
// sticky-failed or too short. Used when the wallet session changes.
func (r *Resolver) Refresh() {
	r.mu.Lock()
	h := r.current.Handle
	if len(h) < handle.MinLength || r.stickyHandle == h {
		r.mu.Unlock()
		return
	}
	r.cancelPendingLocked()
	r.generation++
	r.current.Status = domain.StatusChecking
	r.current.ListingOutpoint = ""
	r.current.ListingPrice = 0
	r.current.Err = nil
	r.scheduleLocked(h)
	snap := r.current
	r.mu.Unlock()
	r.notify(snap)
}

// Retry clears the sticky failure for the live handle and checks it now.
func (r *Resolver) Retry(ctx context.Context) domain.NameCandidate {
	r.mu.Lock()
	h := r.current.Handle
	if len(h) < handle.MinLength {
		snap := r.current
		r.mu.Unlock()
		return snap
	}
	r.cancelPendingLocked()
	r.generation++
	r.stickyHandle = ""
	gen := r.generation
	r.current.Status = domain.StatusChecking
	r.current.Err = nil
	snap := r.current
	r.mu.Unlock()
	r.notify(snap)

	r.run(ctx, h, gen)
	return r.Current()
}

// Resolve looks up raw input directly, without touching the live candidate.
func (r *Resolver) Resolve(ctx context.Context, raw string) (domain.NameCandidate, error) {
	h := handle.Sanitize(raw)
	if len(h) < handle.MinLength {
		return domain.NameCandidate{RawInput: raw, Handle: h, Status: domain.StatusUnknown},
			errors.NewValidation("availability.resolve", "handle must have at least 3 letters or digits", errors.ErrHandleTooShort)
	}
	c := r.lookup(ctx, h)
	c.RawInput = raw
	return c, c.Err
}

func (r *Resolver) scheduleLocked(h string) {
	gen := r.generation
	r.pending = r.afterFunc(r.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		r.run(ctx, h, gen)
	})
}

func (r *Resolver) cancelPendingLocked() {
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

func (r *Resolver) run(ctx context.Context, h string, gen uint64) {
	c := r.lookup(ctx, h)

	r.mu.Lock()
	if gen != r.generation || h != r.current.Handle {
		r.mu.Unlock()
		r.logger.Debug("Discarding stale availability result", map[string]interface{}{"handle": h})
		return
	}
	if c.Status == domain.StatusFailed {
		r.stickyHandle = h
	}
	c.RawInput = r.current.RawInput
	r.current = c
	r.pending = nil
	r.mu.Unlock()

	r.notify(c)
}

// lookup asks the registry, then the marketplace for registered names.
func (r *Resolver) lookup(ctx context.Context, h string) domain.NameCandidate {
	c := domain.NameCandidate{Handle: h}

	outpoint, found, err := r.registry.Lookup(ctx, h)
	if err != nil {
		return r.failed(c, err)
	}
	if !found {
		c.Status = domain.StatusAvailable
		r.metrics.IncrementAvailabilityCheck(string(c.Status))
		return c
	}

	listing, err := r.market.Listing(ctx, outpoint)
	if err != nil {
		return r.failed(c, err)
	}
	if listing.Purchasable() {
		c.Status = domain.StatusRegisteredListed
		c.ListingOutpoint = listing.Outpoint
		c.ListingPrice = listing.Price
	} else {
		c.Status = domain.StatusRegisteredUnlisted
		c.ListingOutpoint = outpoint
	}
	r.metrics.IncrementAvailabilityCheck(string(c.Status))
	return c
}

func (r *Resolver) failed(c domain.NameCandidate, err error) domain.NameCandidate {
	r.logger.Warn("Availability check failed", map[string]interface{}{
		"handle": c.Handle,
		"error":  err.Error(),
	})
	if errors.KindOf(err) != errors.KindNetwork {
		err = errors.NewNetwork("availability.lookup", "could not check "+c.Handle, err)
	}
	c.Status = domain.StatusFailed
	c.Err = err
	r.metrics.IncrementAvailabilityCheck(string(c.Status))
	return c
}

func (r *Resolver) notify(c domain.NameCandidate) {
	r.mu.Lock()
	listeners := append([]func(domain.NameCandidate){}, r.listeners...)
	r.mu.Unlock()
	for _, fn := range listeners {
		fn(c)
	}
}
