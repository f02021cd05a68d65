package model

import (
	"fmt"
	"time"

	"school-payments/internal/domain"
)

// PaidService is an access grant produced by a completed transaction.
type PaidService struct {
	ID            string
	UserID        string
	ServiceType   ServiceType
	ReferenceID   *string
	TransactionID string
	MaxUses       int
	UsageCount    int
	IsActive      bool
	ExpiresAt     *time.Time
	UsedAt        *time.Time
	CreatedAt     time.Time
}

func NewPaidService(id, userID string, req ServiceRequest, transactionID string, expiresAt *time.Time, now time.Time) (*PaidService, error) {
	if id == "" || userID == "" || transactionID == "" {
		return nil, fmt.Errorf("%w: grant requires id, user and transaction", domain.ErrInvalidArgument)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &PaidService{
		ID:            id,
		UserID:        userID,
		ServiceType:   req.Type,
		ReferenceID:   req.ReferenceID(),
		TransactionID: transactionID,
		MaxUses:       req.Type.MaxUses(),
		IsActive:      true,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
	}, nil
}

// HasAccess applies the usability rule: active, unexpired, uses left, and
// for one-shot services not yet consumed.
func (g *PaidService) HasAccess(now time.Time) bool {
	if g == nil || !g.IsActive {
		return false
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	if g.UsageCount >= g.MaxUses {
		return false
	}
	if !g.ServiceType.MultiUse() && g.UsedAt != nil {
		return false
	}
	return true
}

// InWindow reports whether a windowed grant is still open at now, whether or not it has been used.
func (g *PaidService) InWindow(now time.Time) bool {
	if g == nil || !g.IsActive || g.ExpiresAt == nil {
		return false
	}
	return now.Before(*g.ExpiresAt)
}

func (g *PaidService) RemainingUses() int {
	if g == nil || g.UsageCount >= g.MaxUses {
		return 0
	}
	return g.MaxUses - g.UsageCount
}
