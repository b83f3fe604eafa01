// Package store keeps the single pending hosted-checkout registration that
// must survive the redirect away from and back to the app.
package store

import (
	"context"

	"opns/internal/domain"
)

// Slot is the well-known key of the pending registration.
const Slot = "opns:pending_registration"

// PendingStore holds at most one PendingRegistration. Take reads and removes
// it atomically; both Take and Peek return nil when the slot is empty.
type PendingStore interface {
	Save(ctx context.Context, p domain.PendingRegistration) error
	Take(ctx context.Context) (*domain.PendingRegistration, error)
	Peek(ctx context.Context) (*domain.PendingRegistration, error)
}
