package repository

import (
	"context"
	"time"

	"school-payments/internal/domain/model"
)

// -----------------------------
// Payment transactions
// -----------------------------

type PaymentTransactionRepository interface {
	// Create inserts a new pending transaction; a reference collision yields domain.ErrAlreadyExists.
	Create(ctx context.Context, tx Tx, t *model.PaymentTransaction) error
	// FindByReference locks the row when tx is a database transaction.
	FindByReference(ctx context.Context, tx Tx, reference string) (*model.PaymentTransaction, error)
	// UpdateStatusIfPending is the only status writer: it changes the row only while it is
	// still pending and reports whether it did.
	UpdateStatusIfPending(ctx context.Context, tx Tx, id string, status model.TransactionStatus, data model.GatewayData, completedAt *time.Time) (bool, error)
	// SetCheckout stores what gateway initialization returned.
	SetCheckout(ctx context.Context, tx Tx, id, gatewayReference, checkoutURL string) error
	// CancelExpiredPending cancels pending rows whose expires_at is before the cutoff.
	CancelExpiredPending(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
	// CancelPendingCreatedBefore cancels pending rows created before the cutoff.
	CancelPendingCreatedBefore(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error)
	ListByUser(ctx context.Context, tx Tx, userID string, limit int) ([]*model.PaymentTransaction, error)
	AggregateSince(ctx context.Context, tx Tx, since time.Time) ([]model.StatsRow, error)
}

// -----------------------------
// Paid services (grants)
// -----------------------------

type PaidServiceRepository interface {
	Create(ctx context.Context, tx Tx, g *model.PaidService) error
	// FindUsable returns the oldest grant that passes the usability rule at now.
	FindUsable(ctx context.Context, tx Tx, userID string, t model.ServiceType, referenceID *string, now time.Time) (*model.PaidService, error)
	// FindLatest returns the newest active grant regardless of usage or expiry.
	FindLatest(ctx context.Context, tx Tx, userID string, t model.ServiceType, referenceID *string) (*model.PaidService, error)
	FindByTransaction(ctx context.Context, tx Tx, transactionID string) (*model.PaidService, error)
	// ConsumeUse atomically takes one use of the oldest usable grant; domain.ErrNotFound when none is left.
	ConsumeUse(ctx context.Context, tx Tx, userID string, t model.ServiceType, referenceID *string, now time.Time) (*model.PaidService, error)
	// ConsumeGrant takes one use of the given grant only while it is still usable; domain.ErrNotFound otherwise.
	ConsumeGrant(ctx context.Context, tx Tx, id string, now time.Time) (*model.PaidService, error)
}

// -----------------------------
// Pricing
// -----------------------------

type ServicePricingRepository interface {
	FindByServiceType(ctx context.Context, tx Tx, t model.ServiceType) (*model.ServicePricing, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.ServicePricing, error)
	Save(ctx context.Context, tx Tx, p *model.ServicePricing) error
}

// -----------------------------
// Webhook log
// -----------------------------

type WebhookLogRepository interface {
	Save(ctx context.Context, tx Tx, l *model.WebhookLog) error
	ListRecent(ctx context.Context, tx Tx, gateway string, limit int) ([]*model.WebhookLog, error)
}
