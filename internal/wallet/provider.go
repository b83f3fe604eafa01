// Package wallet owns the browser-wallet session: connection state,
// addresses, profile and recovery from revoked authorization.
package wallet

import (
	"context"

	"github.com/shopspring/decimal"

	"opns/internal/domain"
	"opns/pkg/errors"
)

// InstallURL is where users without a wallet are sent.
const InstallURL = "https://yours.org"

// Event is a signal pushed by the wallet.
type Event string

const (
	EventSwitchAccount Event = "switchAccount"
	EventSignedOut     Event = "signedOut"
)

// PaymentOutput pays Satoshis to Address.
type PaymentOutput struct {
	Address  string `json:"address"`
	Satoshis int64  `json:"satoshis"`
}

// PurchaseListingRequest buys a marketplace listing in one signed trade.
type PurchaseListingRequest struct {
	Outpoint           string          `json:"outpoint"`
	MarketplaceRate    decimal.Decimal `json:"marketplaceRate"`
	MarketplaceAddress string          `json:"marketplaceAddress,omitempty"`
}

// Provider is the capability set of a concrete wallet.
type Provider interface {
	Ready() bool
	Connect(ctx context.Context) (string, error)
	Disconnect(ctx context.Context) error
	Addresses(ctx context.Context) (domain.Addresses, error)
	SocialProfile(ctx context.Context) (domain.Profile, error)
	SendPayment(ctx context.Context, outputs []PaymentOutput) (string, error)
	PurchaseListing(ctx context.Context, req PurchaseListingRequest) (string, error)
	ExchangeRate(ctx context.Context) (decimal.Decimal, error)
	// Ordinals lists the wallet's ordinals starting at cursor from.
	Ordinals(ctx context.Context, from string, limit int) (domain.OrdinalPage, error)
	// On registers handler for event and returns a function removing it.
	On(event Event, handler func()) func()
}

// Offline is a Provider for when no wallet is reachable. It is never ready.
type Offline struct{}

var _ Provider = Offline{}

func (Offline) Ready() bool { return false }

func (Offline) Connect(context.Context) (string, error) {
	return "", errors.NewConnection("wallet.offline", "wallet not ready", errors.ErrWalletNotReady)
}

func (Offline) Disconnect(context.Context) error { return nil }

func (Offline) Addresses(context.Context) (domain.Addresses, error) {
	return domain.Addresses{}, errors.ErrWalletNotReady
}

func (Offline) SocialProfile(context.Context) (domain.Profile, error) {
	return domain.Profile{}, errors.ErrWalletNotReady
}

func (Offline) SendPayment(context.Context, []PaymentOutput) (string, error) {
	return "", errors.ErrWalletNotReady
}

func (Offline) PurchaseListing(context.Context, PurchaseListingRequest) (string, error) {
	return "", errors.ErrWalletNotReady
}

func (Offline) ExchangeRate(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, errors.ErrWalletNotReady
}

func (Offline) Ordinals(context.Context, string, int) (domain.OrdinalPage, error) {
	return domain.OrdinalPage{}, errors.ErrWalletNotReady
}

func (Offline) On(Event, func()) func() { return func() {} }
