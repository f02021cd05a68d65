package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/metrics"
)

// Compile-time check
var _ PricingUseCase = (*pricingUC)(nil)

type PricingUseCase interface {
	List(ctx context.Context) ([]*model.ServicePricing, error)
	// SetPrice takes a major-unit amount ("5.00"); an empty currency keeps the configured one.
	SetPrice(ctx context.Context, adminID string, serviceType, amount, currency, description string, active bool) (*model.ServicePricing, error)
}

type pricingUC struct {
	repo     repository.ServicePricingRepository
	settings *Settings
	audit    *Auditor
	log      *zerolog.Logger
}

func NewPricingUseCase(repo repository.ServicePricingRepository, settings *Settings, audit *Auditor, logger *zerolog.Logger) *pricingUC {
	return &pricingUC{repo: repo, settings: settings, audit: audit, log: logger}
}

func (u *pricingUC) List(ctx context.Context) ([]*model.ServicePricing, error) {
	return u.repo.ListAll(ctx, repository.NoTX)
}

func (u *pricingUC) SetPrice(ctx context.Context, adminID string, serviceType, amount, currency, description string, active bool) (*model.ServicePricing, error) {
	t, err := model.ParseServiceType(serviceType)
	if err != nil {
		metrics.IncAdminAction("set_price", "invalid")
		return nil, err
	}
	minor, err := model.ParseMajor(strings.TrimSpace(amount))
	if err != nil {
		metrics.IncAdminAction("set_price", "invalid")
		return nil, err
	}
	if strings.TrimSpace(currency) == "" {
		currency = u.settings.Currency(ctx)
	}
	if description == "" {
		description = t.DisplayName()
	}
	p, err := model.NewServicePricing(t, minor, currency, description)
	if err != nil {
		metrics.IncAdminAction("set_price", "invalid")
		return nil, err
	}
	p.IsActive = active
	p.UpdatedAt = time.Now()
	if err := u.repo.Save(ctx, repository.NoTX, p); err != nil {
		metrics.IncAdminAction("set_price", "error")
		return nil, err
	}
	metrics.IncAdminAction("set_price", "ok")
	u.audit.Record(ctx, "admin", model.SeverityInfo, adminID, "price of %s set to %s %s (active=%t)", t, p.DisplayAmount(), p.Currency, active)
	return p, nil
}
