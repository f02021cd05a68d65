package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.ServicePricingRepository = (*servicePricingRepo)(nil)

type servicePricingRepo struct{ pool *pgxpool.Pool }

func NewServicePricingRepo(pool *pgxpool.Pool) *servicePricingRepo {
	return &servicePricingRepo{pool: pool}
}

func scanPricing(row pgx.Row) (*model.ServicePricing, error) {
	p := &model.ServicePricing{}
	var service string
	if err := row.Scan(&service, &p.Amount, &p.Currency, &p.Description, &p.IsActive, &p.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	p.ServiceType = model.ServiceType(service)
	return p, nil
}

// FindByServiceType returns only active prices; an inactive row reads as not found.
func (r *servicePricingRepo) FindByServiceType(ctx context.Context, tx repository.Tx, t model.ServiceType) (*model.ServicePricing, error) {
	const q = `SELECT service_type, amount, currency, description, is_active, updated_at FROM service_pricing WHERE service_type=$1 AND is_active;`
	row, err := pickRow(ctx, r.pool, tx, q, t)
	if err != nil {
		return nil, err
	}
	return scanPricing(row)
}

func (r *servicePricingRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.ServicePricing, error) {
	const q = `SELECT service_type, amount, currency, description, is_active, updated_at FROM service_pricing ORDER BY service_type;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ServicePricing
	for rows.Next() {
		p, err := scanPricing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *servicePricingRepo) Save(ctx context.Context, tx repository.Tx, p *model.ServicePricing) error {
	const q = `
INSERT INTO service_pricing (service_type, amount, currency, description, is_active, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (service_type) DO UPDATE SET
  amount=$2, currency=$3, description=$4, is_active=$5, updated_at=$6;`
	_, err := execSQL(ctx, r.pool, tx, q, p.ServiceType, p.Amount, p.Currency, p.Description, p.IsActive, p.UpdatedAt)
	return writeErr(err)
}
