package model

import (
	"fmt"
	"strings"
	"time"

	"school-payments/internal/domain"
)

// ServicePricing is the admin-set price of one service type.
type ServicePricing struct {
	ServiceType ServiceType
	Amount      int64 // minor units
	Currency    string
	Description string
	IsActive    bool
	UpdatedAt   time.Time
}

func NewServicePricing(t ServiceType, amount int64, currency, description string) (*ServicePricing, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidServiceType, t)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", domain.ErrInvalidArgument)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return nil, fmt.Errorf("%w: currency must be a 3-letter code", domain.ErrInvalidArgument)
	}
	return &ServicePricing{
		ServiceType: t,
		Amount:      amount,
		Currency:    currency,
		Description: description,
		IsActive:    true,
		UpdatedAt:   time.Now(),
	}, nil
}

// DisplayAmount is the major-unit amount, e.g. "5.00".
func (p *ServicePricing) DisplayAmount() string { return FormatMinor(p.Amount) }
