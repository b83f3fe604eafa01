// Package errors provides the error taxonomy shared by the session, resolver and purchase layers.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure by how the caller is expected to react to it.
type Kind string

const (
	KindUnknown        Kind = ""
	KindConnection     Kind = "connection"
	KindUnauthorized   Kind = "unauthorized"
	KindNetwork        Kind = "network"
	KindValidation     Kind = "validation"
	KindPayment        Kind = "payment"
	KindReconciliation Kind = "reconciliation"
)

// Common errors
var (
	// Wallet errors
	ErrWalletNotReady = errors.New("wallet provider not ready")
	ErrUnauthorized   = errors.New("wallet session unauthorized")
	ErrNotConnected   = errors.New("wallet not connected")
	ErrNoAddress      = errors.New("wallet has no valid payment address")

	// Name errors
	ErrHandleTooShort = errors.New("handle too short")
	ErrInvalidHandle  = errors.New("invalid handle")
	ErrNameTaken      = errors.New("name already registered")
	ErrNotAvailable   = errors.New("name status does not allow purchase")

	// Purchase errors
	ErrPurchaseInFlight   = errors.New("purchase already in flight for handle")
	ErrRateNotAvailable   = errors.New("exchange rate not available")
	ErrPaymentRequired    = errors.New("payment required")
	ErrPaymentRejected    = errors.New("payment rejected")
	ErrCheckoutCancelled  = errors.New("checkout cancelled")
	ErrRegistrationFailed = errors.New("registration could not be confirmed")
	ErrTerminalIntent     = errors.New("purchase intent already terminal")

	// Resumption errors
	ErrPendingNotFound = errors.New("pending registration not found")
	ErrInvalidState    = errors.New("invalid checkout state token")

	// Lookup errors
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrInvalidOutpoint  = errors.New("invalid outpoint")
)

// Error carries a Kind and the operation that failed alongside the cause.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Cause != nil {
		if e.Message != "" {
			b.WriteString(": ")
		}
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// With attaches a context value, such as a transaction id, and returns e.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// NewConnection reports a missing or unusable wallet provider.
func NewConnection(op, message string, cause error) *Error {
	return newError(KindConnection, op, message, cause)
}

func NewUnauthorized(op, message string, cause error) *Error {
	if cause == nil {
		cause = ErrUnauthorized
	}
	return newError(KindUnauthorized, op, message, cause)
}

// NewNetwork reports a lookup failure; these are the only retryable errors.
func NewNetwork(op, message string, cause error) *Error {
	return newError(KindNetwork, op, message, cause)
}

func NewValidation(op, message string, cause error) *Error {
	return newError(KindValidation, op, message, cause)
}

func NewPayment(op, message string, cause error) *Error {
	return newError(KindPayment, op, message, cause)
}

// NewReconciliation reports that funds moved but registration was not confirmed.
func NewReconciliation(op, message string, cause error) *Error {
	return newError(KindReconciliation, op, message, cause)
}

// KindOf returns the Kind of the outermost *Error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindUnauthorized
	}
	return KindUnknown
}

// IsUnauthorized reports whether err means the wallet session was revoked.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnauthorized) {
		return true
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindUnauthorized {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Unauthorized") || strings.Contains(msg, "Not connected")
}

// Retryable reports whether the caller may offer an explicit retry.
func Retryable(err error) bool {
	return KindOf(err) == KindNetwork
}

// Context returns the context map of the outermost *Error, or nil.
func Context(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Context
	}
	return nil
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(message string) error { return errors.New(message) }
