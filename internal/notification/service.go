// Package notification tells the user about acquisition outcomes.
package notification

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"opns/pkg/logger"

	"github.com/google/uuid"
)

// Event types raised by the purchase flow.
const (
	EventNameAcquired          = "NAME_ACQUIRED"
	EventRegistrationPending   = "PAYMENT_PENDING_REGISTRATION"
	EventCheckoutCancelled     = "CHECKOUT_CANCELLED"
	EventPurchaseFailed        = "PURCHASE_FAILED"
	EventCheckoutRedirected    = "CHECKOUT_REDIRECTED"
	EventWalletSessionReset    = "WALLET_SESSION_RESET"
	EventAvailabilityUnchecked = "AVAILABILITY_UNCHECKED"
)

// Priority represents the urgency of the notification.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
	PriorityUrgent Priority = 3
)

// Notification represents a message to be shown.
type Notification struct {
	ID        uuid.UUID
	Type      string
	Priority  Priority
	Subject   string
	Body      string
	Metadata  map[string]interface{}
	CreatedAt time.Time
}

// Sink delivers a notification somewhere the user will see it.
type Sink interface {
	Deliver(ctx context.Context, n *Notification) error
}

// Service defines the notification service interface.
type Service interface {
	Notify(ctx context.Context, eventType string, data map[string]interface{}) error
}

// DefaultService logs every notification and fans it out to sinks.
type DefaultService struct {
	logger logger.Logger
	mu     sync.Mutex
	sinks  []Sink
}

// NewService creates a new notification service.
func NewService(log logger.Logger, sinks ...Sink) *DefaultService {
	return &DefaultService{
		logger: log,
		sinks:  sinks,
	}
}

// AddSink registers another delivery target.
func (s *DefaultService) AddSink(sink Sink) {
	s.mu.Lock()
	s.sinks = append(s.sinks, sink)
	s.mu.Unlock()
}

// Notify constructs and sends a notification based on an event type.
func (s *DefaultService) Notify(ctx context.Context, eventType string, data map[string]interface{}) error {
	var subject, body string
	priority := PriorityNormal

	switch eventType {
	case EventNameAcquired:
		subject = "Name Acquired"
		body = fmt.Sprintf("%v is yours.", data["name"])
		if txid, ok := data["txid"]; ok && txid != "" {
			body = fmt.Sprintf("%v is yours (tx %v).", data["name"], txid)
		}
		priority = PriorityHigh

	case EventRegistrationPending:
		subject = "Registration Pending"
		body = fmt.Sprintf("Payment for %v succeeded but registration is not confirmed. Contact support", data["handle"])
		if txid, ok := data["txid"]; ok && txid != "" {
			body += fmt.Sprintf(" with transaction %v", txid)
		}
		body += "."
		priority = PriorityUrgent

	case EventCheckoutCancelled:
		subject = "Checkout Cancelled"
		body = fmt.Sprintf("Checkout for %v was cancelled. No payment was taken.", data["handle"])

	case EventCheckoutRedirected:
		subject = "Complete Checkout"
		body = fmt.Sprintf("Continue checkout for %v at %v", data["handle"], data["url"])
		priority = PriorityHigh

	case EventPurchaseFailed:
		subject = "Purchase Failed"
		body = fmt.Sprintf("Could not buy %v: %v", data["handle"], data["reason"])
		priority = PriorityHigh

	case EventWalletSessionReset:
		subject = "Wallet Disconnected"
		body = "Your wallet session ended. Connect again to continue."
		priority = PriorityLow

	case EventAvailabilityUnchecked:
		subject = "Availability Unknown"
		body = fmt.Sprintf("Could not check %v. Retry when the registry is reachable.", data["handle"])
		priority = PriorityLow

	default:
		subject = "Notification"
		body = fmt.Sprintf("Event: %s", eventType)
	}

	return s.SendRaw(ctx, &Notification{
		ID:        uuid.New(),
		Type:      eventType,
		Priority:  priority,
		Subject:   subject,
		Body:      body,
		Metadata:  data,
		CreatedAt: time.Now(),
	})
}

// SendRaw logs n and hands it to every sink. A failing sink does not stop
// the others; the first error is returned.
func (s *DefaultService) SendRaw(ctx context.Context, n *Notification) error {
	s.logger.Info("Notification sent", map[string]interface{}{
		"notification_id": n.ID.String(),
		"type":            n.Type,
		"subject":         n.Subject,
		"priority":        int(n.Priority),
	})

	s.mu.Lock()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	var first error
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, n); err != nil {
			s.logger.Error("Failed to deliver notification", map[string]interface{}{
				"error":           err.Error(),
				"notification_id": n.ID.String(),
			})
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// WriterSink prints the notification body as one line.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Deliver(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, n.Body)
	return err
}
