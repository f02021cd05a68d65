package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.ActivityRepository = (*activityRepo)(nil)

type activityRepo struct{ pool *pgxpool.Pool }

func NewActivityRepo(pool *pgxpool.Pool) *activityRepo {
	return &activityRepo{pool: pool}
}

func (r *activityRepo) Save(ctx context.Context, tx repository.Tx, a *model.Activity) error {
	const q = `
INSERT INTO system_activity_log (component, message, severity, user_id, created_at)
VALUES ($1,$2,$3,$4,$5)
RETURNING id;`
	row, err := pickRow(ctx, r.pool, tx, q, a.Component, a.Message, a.Severity, a.UserID, a.CreatedAt)
	if err != nil {
		return err
	}
	if err := row.Scan(&a.ID); err != nil {
		return writeErr(err)
	}
	return nil
}
