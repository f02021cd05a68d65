package repository

import (
	"context"
	"time"

	"school-payments/internal/domain/model"
)

// Tables owned by other modules. Payments read them and write a few flags.

type AccountRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	UpdatePassword(ctx context.Context, tx Tx, id, passwordHash string) error
}

type EnrollmentRepository interface {
	Find(ctx context.Context, tx Tx, userID, assessmentID string) (*model.Enrollment, error)
	MarkReviewPaid(ctx context.Context, tx Tx, userID, assessmentID string, expiresAt *time.Time) error
	MarkRetakePaid(ctx context.Context, tx Tx, userID, assessmentID string) error
	// RecordRetake bumps retake_count and stamps last_retake_at, but only while neither
	// last_completed_at nor last_retake_at is after notAfter. Reports whether it applied.
	RecordRetake(ctx context.Context, tx Tx, userID, assessmentID string, at, notAfter time.Time, paid bool) (bool, error)
}

type ActivityRepository interface {
	Save(ctx context.Context, tx Tx, a *model.Activity) error
}
