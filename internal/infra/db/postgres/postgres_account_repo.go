package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct{ pool *pgxpool.Pool }

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	const q = `SELECT id, email, first_name, last_name, phone, password_hash, role FROM users WHERE id=$1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	a := &model.Account{}
	var role string
	if err := row.Scan(&a.ID, &a.Email, &a.FirstName, &a.LastName, &a.Phone, &a.PasswordHash, &role); err != nil {
		return nil, scanErr(err)
	}
	a.Role = model.Role(role)
	return a, nil
}

func (r *accountRepo) UpdatePassword(ctx context.Context, tx repository.Tx, id, passwordHash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, passwordHash)
	if err != nil {
		return writeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Save upserts a user row. Only the seed tool and tests create users.
func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	const q = `
INSERT INTO users (id, email, first_name, last_name, phone, password_hash, role)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET email=$2, first_name=$3, last_name=$4, phone=$5, password_hash=$6, role=$7, updated_at=NOW();`
	_, err := execSQL(ctx, r.pool, tx, q, a.ID, a.Email, a.FirstName, a.LastName, a.Phone, a.PasswordHash, a.Role)
	return writeErr(err)
}
