package model

import (
	"fmt"
	"time"

	"school-payments/internal/domain"
)

type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
	TransactionCancelled TransactionStatus = "cancelled"
)

func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionFailed || s == TransactionCancelled
}

func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case TransactionPending, TransactionCompleted, TransactionFailed, TransactionCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: transaction status %q", domain.ErrInvalidArgument, s)
	}
}

// TransactionEvent drives the transaction state machine.
type TransactionEvent string

const (
	EventPaid       TransactionEvent = "paid"
	EventDeclined   TransactionEvent = "declined"
	EventExpired    TransactionEvent = "expired"
	EventAbandoned  TransactionEvent = "abandoned"
	EventInitFailed TransactionEvent = "init_failed"
)

// TryTransition returns the next status for an event. Only pending moves;
// every terminal status rejects every event.
func TryTransition(current TransactionStatus, ev TransactionEvent) (TransactionStatus, bool) {
	if current != TransactionPending {
		return current, false
	}
	switch ev {
	case EventPaid:
		return TransactionCompleted, true
	case EventDeclined, EventInitFailed:
		return TransactionFailed, true
	case EventExpired, EventAbandoned:
		return TransactionCancelled, true
	default:
		return current, false
	}
}

// EventForOutcome maps a gateway-reported terminal status onto the event that produces it.
func EventForOutcome(status TransactionStatus) (TransactionEvent, error) {
	switch status {
	case TransactionCompleted:
		return EventPaid, nil
	case TransactionFailed:
		return EventDeclined, nil
	case TransactionCancelled:
		return EventAbandoned, nil
	default:
		return "", fmt.Errorf("%w: %q is not a terminal outcome", domain.ErrInvalidArgument, status)
	}
}

// PaymentTransaction is one attempt to buy one service.
type PaymentTransaction struct {
	ID               string
	UserID           string
	ServiceType      ServiceType
	AssessmentID     *string
	Amount           int64 // minor units
	Currency         string
	Reference        string
	Gateway          string
	Status           TransactionStatus
	PaymentMethod    string
	GatewayReference string
	GatewayResponse  string // raw provider JSON, kept for audit
	CheckoutURL      string
	ExpiresAt        time.Time
	CompletedAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ServiceRequest reconstructs what the transaction paid for.
func (t *PaymentTransaction) ServiceRequest() ServiceRequest {
	r := ServiceRequest{Type: t.ServiceType}
	if t.AssessmentID != nil {
		r.AssessmentID = *t.AssessmentID
	}
	return r
}

// Expired reports whether a pending transaction is past its checkout window.
func (t *PaymentTransaction) Expired(now time.Time) bool {
	return t.Status == TransactionPending && !now.Before(t.ExpiresAt)
}

// GatewayData is what a gateway outcome attaches to a transaction.
type GatewayData struct {
	PaymentMethod    string
	GatewayReference string
	Response         string
}

// Apply copies non-empty gateway data onto the transaction.
func (t *PaymentTransaction) Apply(d GatewayData) {
	if d.PaymentMethod != "" {
		t.PaymentMethod = d.PaymentMethod
	}
	if d.GatewayReference != "" {
		t.GatewayReference = d.GatewayReference
	}
	if d.Response != "" {
		t.GatewayResponse = d.Response
	}
}

// GenerateReference builds PREFIX_unixSeconds_NNNN. suffix must be in [1000,9999].
func GenerateReference(t ServiceType, now time.Time, suffix int) string {
	return fmt.Sprintf("%s_%d_%04d", t.Prefix(), now.Unix(), suffix)
}
