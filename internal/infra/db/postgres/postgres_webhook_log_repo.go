package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.WebhookLogRepository = (*webhookLogRepo)(nil)

type webhookLogRepo struct{ pool *pgxpool.Pool }

func NewWebhookLogRepo(pool *pgxpool.Pool) *webhookLogRepo {
	return &webhookLogRepo{pool: pool}
}

func (r *webhookLogRepo) Save(ctx context.Context, tx repository.Tx, l *model.WebhookLog) error {
	const q = `
INSERT INTO payment_webhooks (id, gateway, event_type, reference, payload, signature, processed, error, received_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET event_type=$3, reference=$4, processed=$7, error=$8;`
	_, err := execSQL(ctx, r.pool, tx, q, l.ID, l.Gateway, l.EventType, l.Reference, l.Payload, l.Signature, l.Processed, l.Error, l.ReceivedAt)
	return writeErr(err)
}

func (r *webhookLogRepo) ListRecent(ctx context.Context, tx repository.Tx, gateway string, limit int) ([]*model.WebhookLog, error) {
	const q = `
SELECT id, gateway, event_type, reference, payload, signature, processed, error, received_at
  FROM payment_webhooks
 WHERE ($1::text = '' OR gateway = $1)
 ORDER BY received_at DESC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, gateway, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.WebhookLog
	for rows.Next() {
		l := &model.WebhookLog{}
		if err := rows.Scan(&l.ID, &l.Gateway, &l.EventType, &l.Reference, &l.Payload, &l.Signature, &l.Processed, &l.Error, &l.ReceivedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, l)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
