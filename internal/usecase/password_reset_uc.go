package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/logging"
)

const MinPasswordLength = 8

// Compile-time check
var _ PasswordResetUseCase = (*passwordResetUC)(nil)

type PasswordResetUseCase interface {
	// RequiresPayment: the toggle is on and the user holds no grant with uses left.
	RequiresPayment(ctx context.Context, userID string) bool
	// ProcessReset verifies the paying transaction (when payment is required),
	// then takes one use of its grant and stores the new password in one transaction.
	ProcessReset(ctx context.Context, userID, reference, newPassword string) (*ResetResult, error)
}

type ResetResult struct {
	Success       bool `json:"success"`
	PaymentUsed   bool `json:"payment_used"`
	RemainingUses int  `json:"remaining_uses"`
}

type passwordResetUC struct {
	payments PaymentUseCase
	accounts repository.AccountRepository
	tm       repository.TransactionManager
	settings *Settings
	audit    *Auditor
	log      *zerolog.Logger
	now      func() time.Time
	cost     int
}

func NewPasswordResetUseCase(payments PaymentUseCase, accounts repository.AccountRepository, tm repository.TransactionManager, settings *Settings, audit *Auditor, logger *zerolog.Logger) *passwordResetUC {
	l := logger.With().Str("component", "password_reset_uc").Logger()
	return &passwordResetUC{
		payments: payments,
		accounts: accounts,
		tm:       tm,
		settings: settings,
		audit:    audit,
		log:      &l,
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
}

func (u *passwordResetUC) RequiresPayment(ctx context.Context, userID string) bool {
	if !u.settings.PasswordResetPaymentRequired(ctx) {
		return false
	}
	return !u.payments.CanUserAccessService(ctx, userID, model.PasswordReset())
}

func (u *passwordResetUC) ProcessReset(ctx context.Context, userID, reference, newPassword string) (*ResetResult, error) {
	defer logging.TraceDuration(u.log, "PasswordResetUC.ProcessReset")()

	if len(newPassword) < MinPasswordLength {
		return nil, domain.ErrWeakPassword
	}
	paid := u.settings.PasswordResetPaymentRequired(ctx)
	var grant *model.PaidService
	if paid {
		g, err := u.checkPayment(ctx, userID, reference)
		if err != nil {
			u.audit.Record(ctx, "password_reset", model.SeverityWarning, userID, "reset refused for %s: %v", reference, err)
			return nil, err
		}
		grant = g
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), u.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	res := &ResetResult{Success: true}
	if !paid {
		if err := u.accounts.UpdatePassword(ctx, repository.NoTX, userID, string(hash)); err != nil {
			u.log.Error().Err(err).Str("user_id", userID).Msg("password update failed")
			return nil, fmt.Errorf("update password: %w", err)
		}
		u.audit.Record(ctx, "password_reset", model.SeverityInfo, userID, "password reset completed (paid=false)")
		return res, nil
	}

	// The use is taken first; a grant spent by a concurrent reset rolls back before the password is written.
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		used, err := u.payments.ConsumeGrant(ctx, tx, grant)
		if err != nil {
			return err
		}
		if err := u.accounts.UpdatePassword(ctx, tx, userID, string(hash)); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		res.PaymentUsed, res.RemainingUses = true, used.RemainingUses()
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoAccess) {
			u.audit.Record(ctx, "password_reset", model.SeverityWarning, userID, "reset refused for %s: grant already spent", reference)
		} else {
			u.log.Error().Err(err).Str("user_id", userID).Str("reference", reference).Msg("password reset failed")
		}
		return nil, err
	}
	u.audit.Record(ctx, "password_reset", model.SeverityInfo, userID, "password reset completed (paid=true, remaining=%d)", res.RemainingUses)
	return res, nil
}

// checkPayment returns the grant bought by reference when it still has a use left.
func (u *passwordResetUC) checkPayment(ctx context.Context, userID, reference string) (*model.PaidService, error) {
	if reference == "" {
		return nil, fmt.Errorf("%w: payment reference required", domain.ErrInvalidArgument)
	}
	txn, err := u.payments.FindTransaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, domain.ErrTransactionNotOwned
	}
	if txn.ServiceType != model.ServicePasswordReset {
		return nil, fmt.Errorf("%w: %s is a %s payment", domain.ErrInvalidServiceType, reference, txn.ServiceType)
	}
	if txn.Status != model.TransactionCompleted {
		return nil, domain.ErrPaymentNotCompleted
	}
	g, err := u.payments.GrantForTransaction(ctx, txn.ID)
	if err != nil || !g.HasAccess(u.now()) {
		return nil, domain.ErrNoAccess
	}
	return g, nil
}
