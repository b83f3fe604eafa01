package domain

// ConnectionState is the wallet session lifecycle.
type ConnectionState string

const (
	Disconnected ConnectionState = "disconnected"
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
)

// Addresses are the wallet's receive addresses.
type Addresses struct {
	Payment  string `json:"payment,omitempty"`
	Ordinal  string `json:"ordinal,omitempty"`
	Identity string `json:"identity,omitempty"`
}

// Registration returns the address a new name should be sent to.
func (a Addresses) Registration() string {
	if a.Ordinal != "" {
		return a.Ordinal
	}
	return a.Payment
}

// Reconciliation returns the address reported with a direct payment.
func (a Addresses) Reconciliation() string {
	if a.Identity != "" {
		return a.Identity
	}
	return a.Registration()
}

type Profile struct {
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// WalletSession is a snapshot of the session manager's state.
type WalletSession struct {
	State          ConnectionState `json:"state"`
	PublicKey      string          `json:"publicKey,omitempty"`
	Addresses      Addresses       `json:"addresses"`
	Profile        Profile         `json:"profile"`
	AddressesValid bool            `json:"addressesValid"`
}

func (s WalletSession) IsConnected() bool {
	return s.State == Connected
}
