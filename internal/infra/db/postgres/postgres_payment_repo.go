package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.PaymentTransactionRepository = (*paymentTransactionRepo)(nil)

type paymentTransactionRepo struct{ pool *pgxpool.Pool }

func NewPaymentTransactionRepo(pool *pgxpool.Pool) *paymentTransactionRepo {
	return &paymentTransactionRepo{pool: pool}
}

const txnColumns = `id, user_id, service_type, assessment_id, amount, currency, reference, gateway, status,
  payment_method, gateway_reference, COALESCE(gateway_response::text, ''), checkout_url,
  expires_at, completed_at, created_at, updated_at`

func scanTxn(row pgx.Row) (*model.PaymentTransaction, error) {
	t := &model.PaymentTransaction{}
	var service, status string
	if err := row.Scan(&t.ID, &t.UserID, &service, &t.AssessmentID, &t.Amount, &t.Currency, &t.Reference, &t.Gateway, &status,
		&t.PaymentMethod, &t.GatewayReference, &t.GatewayResponse, &t.CheckoutURL,
		&t.ExpiresAt, &t.CompletedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	t.ServiceType = model.ServiceType(service)
	t.Status = model.TransactionStatus(status)
	return t, nil
}

func (r *paymentTransactionRepo) Create(ctx context.Context, tx repository.Tx, t *model.PaymentTransaction) error {
	const q = `
INSERT INTO payment_transactions (
  id, user_id, service_type, assessment_id, amount, currency, reference, gateway, status,
  payment_method, gateway_reference, gateway_response, checkout_url, expires_at, completed_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`
	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.UserID, t.ServiceType, t.AssessmentID, t.Amount, t.Currency, t.Reference, t.Gateway, t.Status,
		t.PaymentMethod, t.GatewayReference, jsonOrNil(t.GatewayResponse), t.CheckoutURL, t.ExpiresAt, t.CompletedAt, t.CreatedAt, t.UpdatedAt)
	return writeErr(err)
}

func (r *paymentTransactionRepo) FindByReference(ctx context.Context, tx repository.Tx, reference string) (*model.PaymentTransaction, error) {
	q := forUpdate(`SELECT `+txnColumns+` FROM payment_transactions WHERE reference=$1`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, reference)
	if err != nil {
		return nil, err
	}
	return scanTxn(row)
}

// UpdateStatusIfPending is the compare-and-set that makes callbacks idempotent:
// of two concurrent writers only one sees RowsAffected == 1.
func (r *paymentTransactionRepo) UpdateStatusIfPending(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, data model.GatewayData, completedAt *time.Time) (bool, error) {
	const q = `
UPDATE payment_transactions
   SET status=$2,
       payment_method=COALESCE(NULLIF($3, ''), payment_method),
       gateway_reference=COALESCE(NULLIF($4, ''), gateway_reference),
       gateway_response=COALESCE($5::jsonb, gateway_response),
       completed_at=$6,
       updated_at=NOW()
 WHERE id=$1 AND status='pending';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, data.PaymentMethod, data.GatewayReference, jsonOrNil(data.Response), completedAt)
	if err != nil {
		return false, writeErr(err)
	}
	return tag.RowsAffected() >= 1, nil
}

func (r *paymentTransactionRepo) SetCheckout(ctx context.Context, tx repository.Tx, id, gatewayReference, checkoutURL string) error {
	const q = `UPDATE payment_transactions SET gateway_reference=$2, checkout_url=$3, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, gatewayReference, checkoutURL)
	if err != nil {
		return writeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *paymentTransactionRepo) CancelExpiredPending(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `UPDATE payment_transactions SET status='cancelled', updated_at=NOW() WHERE status='pending' AND expires_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *paymentTransactionRepo) CancelPendingCreatedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `UPDATE payment_transactions SET status='cancelled', updated_at=NOW() WHERE status='pending' AND created_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, writeErr(err)
	}
	return tag.RowsAffected(), nil
}

func (r *paymentTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	q := `SELECT ` + txnColumns + ` FROM payment_transactions WHERE status='pending' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *paymentTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.PaymentTransaction, error) {
	q := `SELECT ` + txnColumns + ` FROM payment_transactions WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2;`
	return r.list(ctx, tx, q, userID, limit)
}

func (r *paymentTransactionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.PaymentTransaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PaymentTransaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *paymentTransactionRepo) AggregateSince(ctx context.Context, tx repository.Tx, since time.Time) ([]model.StatsRow, error) {
	const q = `
SELECT service_type, status, currency, COUNT(*), COALESCE(SUM(amount), 0)
  FROM payment_transactions
 WHERE created_at >= $1
 GROUP BY service_type, status, currency
 ORDER BY service_type, status;`
	rows, err := queryRows(ctx, r.pool, tx, q, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StatsRow
	for rows.Next() {
		var s model.StatsRow
		var service, status string
		if err := rows.Scan(&service, &status, &s.Currency, &s.Count, &s.Amount); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		s.ServiceType = model.ServiceType(service)
		s.Status = model.TransactionStatus(status)
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
