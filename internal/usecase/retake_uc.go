package usecase

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/metrics"
)

type RetakeReason string

const (
	RetakeGrantedFree     RetakeReason = "granted_free"
	RetakeGrantedPaid     RetakeReason = "granted_paid"
	RetakeCooldown        RetakeReason = "cooldown"
	RetakePaymentRequired RetakeReason = "payment_required"
	RetakeNotEnrolled     RetakeReason = "not_enrolled"
	RetakeError           RetakeReason = "error"
)

// errRetakeRaced rolls back a paid retake whose grant was used concurrently.
var errRetakeRaced = errors.New("retake lost a race")

// Compile-time check
var _ RetakeUseCase = (*retakeUC)(nil)

type RetakeUseCase interface {
	Eligibility(ctx context.Context, userID, assessmentID string) RetakeEligibility
	GrantRetake(ctx context.Context, userID, assessmentID string) RetakeResult
}

type RetakeEligibility struct {
	Enrolled        bool `json:"enrolled"`
	FreeRetakesLeft int  `json:"free_retakes_left"`
	RequiresPayment bool `json:"requires_payment"`
	HasPaidRetake   bool `json:"has_paid_retake"`
	OnCooldown      bool `json:"on_cooldown"`
	WaitMinutes     int  `json:"wait_minutes"`
}

type RetakeResult struct {
	Success     bool         `json:"success"`
	Reason      RetakeReason `json:"reason"`
	WaitMinutes int          `json:"wait_minutes,omitempty"`
	RetakeCount int          `json:"retake_count"`
}

type retakeUC struct {
	enrollments repository.EnrollmentRepository
	grants      repository.PaidServiceRepository
	payments    PaymentUseCase
	settings    *Settings
	tm          repository.TransactionManager
	audit       *Auditor
	log         *zerolog.Logger
	now         func() time.Time
}

func NewRetakeUseCase(enrollments repository.EnrollmentRepository, grants repository.PaidServiceRepository, payments PaymentUseCase, settings *Settings, tm repository.TransactionManager, audit *Auditor, logger *zerolog.Logger) *retakeUC {
	l := logger.With().Str("component", "retake_uc").Logger()
	return &retakeUC{
		enrollments: enrollments,
		grants:      grants,
		payments:    payments,
		settings:    settings,
		tm:          tm,
		audit:       audit,
		log:         &l,
		now:         time.Now,
	}
}

func waitMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

func (u *retakeUC) Eligibility(ctx context.Context, userID, assessmentID string) RetakeEligibility {
	enr, err := u.enrollments.Find(ctx, repository.NoTX, userID, assessmentID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			u.log.Error().Err(err).Str("user_id", userID).Str("assessment_id", assessmentID).Msg("enrollment lookup failed")
		}
		return RetakeEligibility{}
	}
	out := RetakeEligibility{Enrolled: true, FreeRetakesLeft: enr.FreeRetakesLeft()}
	if rem := enr.CooldownRemaining(u.now(), u.settings.RetakeCooldown(ctx)); rem > 0 {
		out.OnCooldown, out.WaitMinutes = true, waitMinutes(rem)
	}
	if out.FreeRetakesLeft == 0 {
		out.HasPaidRetake = u.payments.CanUserAccessService(ctx, userID, model.AssessmentRetake(assessmentID))
		out.RequiresPayment = !out.HasPaidRetake
	}
	return out
}

// GrantRetake checks the cooldown first, then the free quota, then a paid grant.
// The retake counter and the grant use move together in one transaction.
func (u *retakeUC) GrantRetake(ctx context.Context, userID, assessmentID string) RetakeResult {
	log := u.log.With().Str("user_id", userID).Str("assessment_id", assessmentID).Logger()

	enr, err := u.enrollments.Find(ctx, repository.NoTX, userID, assessmentID)
	if errors.Is(err, domain.ErrNotFound) {
		return RetakeResult{Reason: RetakeNotEnrolled}
	}
	if err != nil {
		log.Error().Err(err).Msg("enrollment lookup failed")
		return RetakeResult{Reason: RetakeError}
	}

	now := u.now()
	cooldown := u.settings.RetakeCooldown(ctx)
	if rem := enr.CooldownRemaining(now, cooldown); rem > 0 {
		return RetakeResult{Reason: RetakeCooldown, WaitMinutes: waitMinutes(rem), RetakeCount: enr.RetakeCount}
	}

	req := model.AssessmentRetake(assessmentID)
	paid := enr.FreeRetakesLeft() == 0
	if paid && !u.payments.CanUserAccessService(ctx, userID, req) {
		return RetakeResult{Reason: RetakePaymentRequired, RetakeCount: enr.RetakeCount}
	}

	var recorded bool
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var err error
		recorded, err = u.enrollments.RecordRetake(ctx, tx, userID, assessmentID, now, now.Add(-cooldown), paid)
		if err != nil || !recorded || !paid {
			return err
		}
		if _, err := u.grants.ConsumeUse(ctx, tx, userID, req.Type, req.ReferenceID(), now); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return errRetakeRaced
			}
			return err
		}
		return nil
	})
	switch {
	case errors.Is(err, errRetakeRaced):
		return RetakeResult{Reason: RetakePaymentRequired, RetakeCount: enr.RetakeCount}
	case err != nil:
		log.Error().Err(err).Msg("recording retake failed")
		return RetakeResult{Reason: RetakeError}
	case !recorded:
		// Another grant landed between the read and the write.
		return RetakeResult{Reason: RetakeCooldown, WaitMinutes: waitMinutes(cooldown), RetakeCount: enr.RetakeCount}
	}

	reason := RetakeGrantedFree
	if paid {
		reason = RetakeGrantedPaid
		metrics.IncGrantConsumption(string(req.Type), "ok")
	}
	u.audit.Record(ctx, "retake", model.SeverityInfo, userID, "retake of %s granted (%s)", assessmentID, reason)
	return RetakeResult{Success: true, Reason: reason, RetakeCount: enr.RetakeCount + 1}
}
