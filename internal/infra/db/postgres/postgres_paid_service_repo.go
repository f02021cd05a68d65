package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.PaidServiceRepository = (*paidServiceRepo)(nil)

type paidServiceRepo struct{ pool *pgxpool.Pool }

func NewPaidServiceRepo(pool *pgxpool.Pool) *paidServiceRepo {
	return &paidServiceRepo{pool: pool}
}

const grantColumns = `id, user_id, service_type, reference_id, transaction_id, max_uses, usage_count, is_active, expires_at, used_at, created_at`

// usableWhere is the usability rule; $1 user, $2 service, $3 reference, $4 now, $5 multi-use.
const usableWhere = `
 WHERE user_id=$1 AND service_type=$2 AND reference_id IS NOT DISTINCT FROM $3
   AND is_active
   AND (expires_at IS NULL OR expires_at > $4)
   AND usage_count < max_uses
   AND ($5 OR used_at IS NULL)`

func scanGrant(row pgx.Row) (*model.PaidService, error) {
	g := &model.PaidService{}
	var service string
	if err := row.Scan(&g.ID, &g.UserID, &service, &g.ReferenceID, &g.TransactionID, &g.MaxUses, &g.UsageCount, &g.IsActive, &g.ExpiresAt, &g.UsedAt, &g.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	g.ServiceType = model.ServiceType(service)
	return g, nil
}

func (r *paidServiceRepo) Create(ctx context.Context, tx repository.Tx, g *model.PaidService) error {
	const q = `
INSERT INTO paid_services (` + grantColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11);`
	_, err := execSQL(ctx, r.pool, tx, q, g.ID, g.UserID, g.ServiceType, g.ReferenceID, g.TransactionID, g.MaxUses, g.UsageCount, g.IsActive, g.ExpiresAt, g.UsedAt, g.CreatedAt)
	return writeErr(err)
}

func (r *paidServiceRepo) FindUsable(ctx context.Context, tx repository.Tx, userID string, t model.ServiceType, referenceID *string, now time.Time) (*model.PaidService, error) {
	q := `SELECT ` + grantColumns + ` FROM paid_services` + usableWhere + ` ORDER BY created_at ASC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, t, referenceID, now, t.MultiUse())
	if err != nil {
		return nil, err
	}
	return scanGrant(row)
}

func (r *paidServiceRepo) FindLatest(ctx context.Context, tx repository.Tx, userID string, t model.ServiceType, referenceID *string) (*model.PaidService, error) {
	const q = `SELECT ` + grantColumns + ` FROM paid_services
 WHERE user_id=$1 AND service_type=$2 AND reference_id IS NOT DISTINCT FROM $3 AND is_active
 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, t, referenceID)
	if err != nil {
		return nil, err
	}
	return scanGrant(row)
}

func (r *paidServiceRepo) FindByTransaction(ctx context.Context, tx repository.Tx, transactionID string) (*model.PaidService, error) {
	const q = `SELECT ` + grantColumns + ` FROM paid_services WHERE transaction_id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, transactionID)
	if err != nil {
		return nil, err
	}
	return scanGrant(row)
}

// ConsumeUse picks the oldest usable grant and increments it in one statement.
// The row lock plus the usage_count guard mean two consumers never spend the same use.
func (r *paidServiceRepo) ConsumeUse(ctx context.Context, tx repository.Tx, userID string, t model.ServiceType, referenceID *string, now time.Time) (*model.PaidService, error) {
	q := `
UPDATE paid_services
   SET usage_count = usage_count + 1,
       used_at = COALESCE(used_at, $4)
 WHERE id = (
   SELECT id FROM paid_services` + usableWhere + `
    ORDER BY created_at ASC
    LIMIT 1
    FOR UPDATE)
   AND usage_count < max_uses
RETURNING ` + grantColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, userID, t, referenceID, now, t.MultiUse())
	if err != nil {
		return nil, err
	}
	return scanGrant(row)
}

func (r *paidServiceRepo) ConsumeGrant(ctx context.Context, tx repository.Tx, id string, now time.Time) (*model.PaidService, error) {
	const q = `
UPDATE paid_services
   SET usage_count = usage_count + 1,
       used_at = COALESCE(used_at, $2)
 WHERE id = $1
   AND is_active
   AND (expires_at IS NULL OR expires_at > $2)
   AND usage_count < max_uses
RETURNING ` + grantColumns + `;`
	row, err := pickRow(ctx, r.pool, tx, q, id, now)
	if err != nil {
		return nil, err
	}
	return scanGrant(row)
}
