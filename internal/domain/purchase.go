package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"opns/pkg/errors"
)

// Rail is one of the independent payment paths.
type Rail string

const (
	RailHostedCheckout Rail = "hosted_checkout"
	RailDirectWallet   Rail = "direct_wallet"
	RailMarketplace    Rail = "marketplace"
)

// ParseRail maps CLI and query values onto a Rail.
func ParseRail(s string) (Rail, error) {
	switch s {
	case "checkout", "card", string(RailHostedCheckout):
		return RailHostedCheckout, nil
	case "wallet", "direct", string(RailDirectWallet):
		return RailDirectWallet, nil
	case "market", string(RailMarketplace):
		return RailMarketplace, nil
	}
	return "", fmt.Errorf("unknown payment rail %q", s)
}

type IntentState string

const (
	IntentIdle      IntentState = "idle"
	IntentInFlight  IntentState = "in_flight"
	IntentSucceeded IntentState = "succeeded"
	IntentFailed    IntentState = "failed"
)

func (s IntentState) Terminal() bool {
	return s == IntentSucceeded || s == IntentFailed
}

// PurchaseIntent tracks one purchase attempt. Amount is USD for checkout and
// direct payments and satoshis for marketplace purchases.
type PurchaseIntent struct {
	ID          uuid.UUID       `json:"id"`
	Rail        Rail            `json:"rail"`
	Handle      string          `json:"handle"`
	Amount      decimal.Decimal `json:"amount"`
	State       IntentState     `json:"state"`
	ExternalRef string          `json:"externalRef,omitempty"`
	Err         error           `json:"-"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func NewPurchaseIntent(rail Rail, h string, amount decimal.Decimal) *PurchaseIntent {
	now := time.Now().UTC()
	return &PurchaseIntent{
		ID:        uuid.New(),
		Rail:      rail,
		Handle:    h,
		Amount:    amount,
		State:     IntentIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (p *PurchaseIntent) transition(to IntentState) error {
	if p.State.Terminal() {
		return fmt.Errorf("%w: %s is %s", errors.ErrTerminalIntent, p.ID, p.State)
	}
	p.State = to
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (p *PurchaseIntent) Start() error {
	return p.transition(IntentInFlight)
}

func (p *PurchaseIntent) Succeed(ref string) error {
	if err := p.transition(IntentSucceeded); err != nil {
		return err
	}
	if ref != "" {
		p.ExternalRef = ref
	}
	return nil
}

func (p *PurchaseIntent) Fail(cause error) error {
	if err := p.transition(IntentFailed); err != nil {
		return err
	}
	p.Err = cause
	return nil
}

// PendingRegistration marks a hosted checkout awaiting its return redirect.
type PendingRegistration struct {
	Handle    string    `json:"handle" db:"handle"`
	Address   string    `json:"address,omitempty" db:"address"`
	State     string    `json:"state,omitempty" db:"state"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ExchangeRate is the USD price of one BSV.
type ExchangeRate struct {
	Rate      decimal.Decimal `json:"rate"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Age reports how old the rate is at now.
func (r *ExchangeRate) Age(now time.Time) time.Duration {
	return now.Sub(r.FetchedAt)
}
