package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"opns/internal/domain"
	"opns/internal/metrics"
	"opns/pkg/errors"
	"opns/pkg/logger"
)

const (
	defaultProfileRetryDelay = 2 * time.Second
	defaultFetchTimeout      = 30 * time.Second
)

// Session is the single owner of the wallet Provider. All state changes go
// through it and observers receive copies.
type Session struct {
	provider          Provider
	logger            logger.Logger
	metrics           *metrics.Metrics
	profileRetryDelay time.Duration
	fetchTimeout      time.Duration

	mu             sync.Mutex
	state          domain.WalletSession
	epoch          uint64
	profileRetried bool
	retryTimer     *time.Timer
	observers      map[int]func(domain.WalletSession)
	nextObserver   int
	unsubscribe    []func()

	bg sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

// WithMetrics records session resets.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithProfileRetryDelay sets the delay of the one-shot profile re-fetch after connect.
func WithProfileRetryDelay(d time.Duration) Option {
	return func(s *Session) { s.profileRetryDelay = d }
}

// WithFetchTimeout bounds background address and profile fetches.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Session) { s.fetchTimeout = d }
}

// NewSession creates a Disconnected session over provider.
func NewSession(provider Provider, log logger.Logger, opts ...Option) *Session {
	s := &Session{
		provider:          provider,
		logger:            log,
		profileRetryDelay: defaultProfileRetryDelay,
		fetchTimeout:      defaultFetchTimeout,
		state:             domain.WalletSession{State: domain.Disconnected},
		observers:         make(map[int]func(domain.WalletSession)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start subscribes to the provider's account signals.
func (s *Session) Start() {
	offSwitch := s.provider.On(EventSwitchAccount, s.handleSwitchAccount)
	offSignedOut := s.provider.On(EventSignedOut, s.handleSignedOut)

	s.mu.Lock()
	s.unsubscribe = append(s.unsubscribe, offSwitch, offSignedOut)
	s.mu.Unlock()
}

// Close removes event subscriptions and waits for background fetches.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	if s.retryTimer != nil {
		if s.retryTimer.Stop() {
			s.bg.Done()
		}
		s.retryTimer = nil
	}
	s.mu.Unlock()

	for _, off := range unsubscribe {
		off()
	}
	s.bg.Wait()
}

// Snapshot returns a copy of the current session.
func (s *Session) Snapshot() domain.WalletSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes and returns its cancel func.
func (s *Session) Subscribe(fn func(domain.WalletSession)) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// Connect starts a fresh session. A provider that is not ready yields a
// ConnectionError and leaves state untouched. A rejection classified as
// Unauthorized resets silently and returns nil.
func (s *Session) Connect(ctx context.Context) error {
	if !s.provider.Ready() {
		return errors.NewConnection("wallet.connect", "wallet not ready, install it from "+InstallURL, errors.ErrWalletNotReady)
	}

	s.mu.Lock()
	s.resetLocked()
	s.state.State = domain.Connecting
	epoch := s.epoch
	snap := s.state
	s.mu.Unlock()
	s.notify(snap)

	pubKey, err := s.provider.Connect(ctx)
	if err == nil && pubKey == "" {
		err = errors.NewConnection("wallet.connect", "wallet returned no public key", nil)
	}
	if err != nil {
		s.resetIf(epoch, "connect_failed")
		if errors.IsUnauthorized(err) {
			s.logger.Warn("Wallet connect unauthorized", map[string]interface{}{"error": err.Error()})
			return nil
		}
		if errors.KindOf(err) == errors.KindConnection {
			return err
		}
		return errors.NewConnection("wallet.connect", "wallet connect failed", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	s.state.State = domain.Connected
	s.state.PublicKey = pubKey
	snap = s.state
	s.mu.Unlock()
	s.notify(snap)

	s.logger.Info("Wallet connected", map[string]interface{}{"pubkey": pubKey})

	s.bg.Add(1)
	go s.loadSession(epoch)
	return nil
}

// Disconnect asks the provider to disconnect and always resets local state.
func (s *Session) Disconnect(ctx context.Context) {
	if s.provider.Ready() {
		if err := s.provider.Disconnect(ctx); err != nil {
			s.logger.Debug("Wallet disconnect failed", map[string]interface{}{"error": err.Error()})
		}
	}
	s.reset("disconnect")
}

// RefreshAddresses re-fetches addresses when connected.
func (s *Session) RefreshAddresses(ctx context.Context) {
	if epoch, ok := s.connectedEpoch(); ok {
		s.refreshAddresses(ctx, epoch)
	}
}

// RefreshProfile re-fetches the social profile when connected.
func (s *Session) RefreshProfile(ctx context.Context) {
	if epoch, ok := s.connectedEpoch(); ok {
		s.refreshProfile(ctx, epoch)
	}
}

// SendPayment pays outputs from the connected wallet and returns the txid.
func (s *Session) SendPayment(ctx context.Context, outputs []PaymentOutput) (string, error) {
	epoch, ok := s.connectedEpoch()
	if !ok {
		return "", errors.NewConnection("wallet.send_payment", "wallet not connected", errors.ErrNotConnected)
	}
	txid, err := s.provider.SendPayment(ctx, outputs)
	if err != nil {
		s.checkUnauthorized(epoch, err)
		return "", err
	}
	return txid, nil
}

// PurchaseListing buys a listing through the wallet and returns the txid.
func (s *Session) PurchaseListing(ctx context.Context, req PurchaseListingRequest) (string, error) {
	epoch, ok := s.connectedEpoch()
	if !ok {
		return "", errors.NewConnection("wallet.purchase_listing", "wallet not connected", errors.ErrNotConnected)
	}
	txid, err := s.provider.PurchaseListing(ctx, req)
	if err != nil {
		s.checkUnauthorized(epoch, err)
		return "", err
	}
	return txid, nil
}

// ExchangeRate returns the wallet's USD per BSV rate.
func (s *Session) ExchangeRate(ctx context.Context) (decimal.Decimal, error) {
	if !s.provider.Ready() {
		return decimal.Zero, errors.NewConnection("wallet.exchange_rate", "wallet not ready", errors.ErrWalletNotReady)
	}
	rate, err := s.provider.ExchangeRate(ctx)
	if err != nil {
		if epoch, ok := s.connectedEpoch(); ok {
			s.checkUnauthorized(epoch, err)
		}
		return decimal.Zero, err
	}
	return rate, nil
}

// Ordinals lists one page of the connected wallet's ordinals. A
// disconnected session has none.
func (s *Session) Ordinals(ctx context.Context, from string, limit int) (domain.OrdinalPage, error) {
	epoch, ok := s.connectedEpoch()
	if !ok {
		return domain.OrdinalPage{}, nil
	}
	page, err := s.provider.Ordinals(ctx, from, limit)
	if err != nil {
		if s.checkUnauthorized(epoch, err) {
			return domain.OrdinalPage{}, nil
		}
		return domain.OrdinalPage{}, err
	}
	return page, nil
}

// OwnedNames lists the names under nameDomain on one page of ordinals and
// returns the cursor of the next page.
func (s *Session) OwnedNames(ctx context.Context, nameDomain, from string, limit int) ([]domain.OwnedName, string, error) {
	page, err := s.Ordinals(ctx, from, limit)
	if err != nil {
		return nil, "", err
	}
	return domain.OwnedNames(page.Ordinals, nameDomain), page.From, nil
}

func (s *Session) loadSession(epoch uint64) {
	defer s.bg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
	defer cancel()

	s.refreshAddresses(ctx, epoch)
	s.refreshProfile(ctx, epoch)
	s.scheduleProfileRetry(epoch)
}

// scheduleProfileRetry re-fetches the profile once per session; wallets
// often return an empty profile right after connect.
func (s *Session) scheduleProfileRetry(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profileRetried || s.epoch != epoch || s.state.State != domain.Connected {
		return
	}
	s.profileRetried = true
	s.bg.Add(1)
	s.retryTimer = time.AfterFunc(s.profileRetryDelay, func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()
		s.refreshProfile(ctx, epoch)
	})
}

func (s *Session) refreshAddresses(ctx context.Context, epoch uint64) {
	addrs, err := s.provider.Addresses(ctx)
	if err != nil {
		s.handleBackgroundError("addresses", epoch, err)
		return
	}
	if addrs.Payment == "" {
		s.logger.Warn("Wallet returned no payment address", nil)
		return
	}

	s.mu.Lock()
	if s.epoch != epoch || s.state.State != domain.Connected {
		s.mu.Unlock()
		return
	}
	s.state.Addresses = addrs
	s.state.AddressesValid = true
	snap := s.state
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) refreshProfile(ctx context.Context, epoch uint64) {
	profile, err := s.provider.SocialProfile(ctx)
	if err != nil {
		s.handleBackgroundError("profile", epoch, err)
		return
	}
	if profile.DisplayName == "" && profile.Avatar == "" {
		return
	}

	s.mu.Lock()
	if s.epoch != epoch || s.state.State != domain.Connected {
		s.mu.Unlock()
		return
	}
	if profile.DisplayName != "" {
		s.state.Profile.DisplayName = profile.DisplayName
	}
	if profile.Avatar != "" {
		s.state.Profile.Avatar = profile.Avatar
	}
	snap := s.state
	s.mu.Unlock()
	s.notify(snap)
}

func (s *Session) handleSwitchAccount() {
	epoch, ok := s.connectedEpoch()
	if !ok {
		return
	}
	s.logger.Info("Wallet account switched", nil)

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()
		s.refreshAddresses(ctx, epoch)
		s.refreshProfile(ctx, epoch)
	}()
}

func (s *Session) handleSignedOut() {
	s.logger.Info("Wallet signed out", nil)
	s.reset("signed_out")

	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.fetchTimeout)
		defer cancel()
		if err := s.provider.Disconnect(ctx); err != nil {
			s.logger.Debug("Wallet disconnect after sign out failed", map[string]interface{}{"error": err.Error()})
		}
	}()
}

func (s *Session) handleBackgroundError(op string, epoch uint64, err error) {
	if s.checkUnauthorized(epoch, err) {
		return
	}
	s.logger.Warn("Wallet background fetch failed", map[string]interface{}{
		"op":    op,
		"error": err.Error(),
	})
}

// checkUnauthorized resets the session when err means authorization was
// lost and epoch is still the live session.
func (s *Session) checkUnauthorized(epoch uint64, err error) bool {
	if !errors.IsUnauthorized(err) {
		return false
	}
	s.logger.Warn("Wallet authorization lost, resetting session", map[string]interface{}{"error": err.Error()})
	s.resetIf(epoch, "unauthorized")
	return true
}

func (s *Session) connectedEpoch() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch, s.state.State == domain.Connected
}

func (s *Session) reset(reason string) {
	s.mu.Lock()
	s.resetLocked()
	snap := s.state
	s.mu.Unlock()

	s.metrics.IncrementSessionReset(reason)
	s.notify(snap)
}

func (s *Session) resetIf(epoch uint64, reason string) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	s.resetLocked()
	snap := s.state
	s.mu.Unlock()

	s.metrics.IncrementSessionReset(reason)
	s.notify(snap)
}

func (s *Session) resetLocked() {
	s.epoch++
	s.state = domain.WalletSession{State: domain.Disconnected}
	s.profileRetried = false
	if s.retryTimer != nil {
		if s.retryTimer.Stop() {
			s.bg.Done()
		}
		s.retryTimer = nil
	}
}

func (s *Session) notify(snap domain.WalletSession) {
	s.mu.Lock()
	observers := make([]func(domain.WalletSession), 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}
