package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
)

type ReviewStatus string

const (
	ReviewNotPaid ReviewStatus = "not_paid"
	ReviewExpired ReviewStatus = "expired"
	ReviewActive  ReviewStatus = "active"
)

// Compile-time check
var _ ReviewUseCase = (*reviewUC)(nil)

type ReviewUseCase interface {
	RequiresPayment(ctx context.Context, userID, assessmentID string) bool
	// GrantAccess turns a completed review payment into access, idempotently.
	GrantAccess(ctx context.Context, userID, assessmentID, reference string) (*ReviewAccess, error)
	CheckAccess(ctx context.Context, userID, assessmentID string) ReviewAccess
	// OpenReview checks access and stamps the first opening of the review.
	OpenReview(ctx context.Context, userID, assessmentID string) (ReviewAccess, error)
}

// ReviewAccess: callers branch on Status, not only HasAccess.
type ReviewAccess struct {
	Status           ReviewStatus `json:"status"`
	HasAccess        bool         `json:"has_access"`
	ExpiresAt        *time.Time   `json:"expires_at,omitempty"`
	RemainingSeconds int64        `json:"remaining_seconds"`
}

type reviewUC struct {
	payments PaymentUseCase
	audit    *Auditor
	log      *zerolog.Logger
	now      func() time.Time
}

func NewReviewUseCase(payments PaymentUseCase, audit *Auditor, logger *zerolog.Logger) *reviewUC {
	l := logger.With().Str("component", "review_uc").Logger()
	return &reviewUC{payments: payments, audit: audit, log: &l, now: time.Now}
}

func (u *reviewUC) RequiresPayment(ctx context.Context, userID, assessmentID string) bool {
	return !u.CheckAccess(ctx, userID, assessmentID).HasAccess
}

// CheckAccess reads the newest grant. A review grant is a time window: opening
// it stamps used_at but does not end access before expires_at.
func (u *reviewUC) CheckAccess(ctx context.Context, userID, assessmentID string) ReviewAccess {
	g, err := u.payments.LatestGrant(ctx, userID, model.AssessmentReview(assessmentID))
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Error().Err(err).Str("user_id", userID).Str("assessment_id", assessmentID).Msg("review grant lookup failed")
		}
		return ReviewAccess{Status: ReviewNotPaid}
	}
	return reviewAccessOf(g, u.now())
}

func reviewAccessOf(g *model.PaidService, now time.Time) ReviewAccess {
	if g == nil || !g.IsActive {
		return ReviewAccess{Status: ReviewNotPaid}
	}
	if g.ExpiresAt == nil {
		return ReviewAccess{Status: ReviewActive, HasAccess: true}
	}
	left := g.ExpiresAt.Sub(now)
	if left <= 0 {
		return ReviewAccess{Status: ReviewExpired, ExpiresAt: g.ExpiresAt}
	}
	return ReviewAccess{Status: ReviewActive, HasAccess: true, ExpiresAt: g.ExpiresAt, RemainingSeconds: int64(left / time.Second)}
}

func (u *reviewUC) GrantAccess(ctx context.Context, userID, assessmentID, reference string) (*ReviewAccess, error) {
	txn, err := u.payments.FindTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, domain.ErrTransactionNotOwned
	}
	if txn.ServiceType != model.ServiceReviewAssessment || txn.AssessmentID == nil || *txn.AssessmentID != assessmentID {
		return nil, fmt.Errorf("%w: %s does not pay for a review of %s", domain.ErrInvalidServiceType, reference, assessmentID)
	}
	g, err := u.payments.EnsureGrant(ctx, reference)
	if err != nil {
		return nil, err
	}
	access := reviewAccessOf(g, u.now())
	u.audit.Record(ctx, "review", model.SeverityInfo, userID, "review access for %s confirmed by %s", assessmentID, reference)
	return &access, nil
}

func (u *reviewUC) OpenReview(ctx context.Context, userID, assessmentID string) (ReviewAccess, error) {
	access := u.CheckAccess(ctx, userID, assessmentID)
	if !access.HasAccess {
		return access, domain.ErrNoAccess
	}
	if _, err := u.payments.MarkServiceAsUsed(ctx, userID, model.AssessmentReview(assessmentID)); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Str("assessment_id", assessmentID).Msg("stamping review use failed")
	}
	return access, nil
}
