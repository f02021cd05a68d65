package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.ConfigRepository = (*configRepo)(nil)

type configRepo struct{ pool *pgxpool.Pool }

func NewConfigRepo(pool *pgxpool.Pool) *configRepo {
	return &configRepo{pool: pool}
}

func (r *configRepo) Find(ctx context.Context, tx repository.Tx, key string) (*model.ConfigEntry, error) {
	const q = `SELECT config_key, config_value, is_encrypted, access_count, last_accessed, updated_at FROM payment_config WHERE config_key=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, key)
	if err != nil {
		return nil, err
	}
	e := &model.ConfigEntry{}
	if err := row.Scan(&e.Key, &e.Value, &e.IsEncrypted, &e.AccessCount, &e.LastAccessed, &e.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	return e, nil
}

func (r *configRepo) Upsert(ctx context.Context, tx repository.Tx, e *model.ConfigEntry) error {
	const q = `
INSERT INTO payment_config (config_key, config_value, is_encrypted, updated_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (config_key) DO UPDATE SET config_value=$2, is_encrypted=$3, updated_at=$4;`
	_, err := execSQL(ctx, r.pool, tx, q, e.Key, e.Value, e.IsEncrypted, e.UpdatedAt)
	return writeErr(err)
}

func (r *configRepo) TouchAccess(ctx context.Context, tx repository.Tx, key string, at time.Time) error {
	const q = `UPDATE payment_config SET access_count=access_count+1, last_accessed=$2 WHERE config_key=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, key, at)
	return writeErr(err)
}

func (r *configRepo) ListKeys(ctx context.Context, tx repository.Tx) ([]string, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT config_key FROM payment_config ORDER BY config_key;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, k)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
