package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
)

var _ repository.EnrollmentRepository = (*enrollmentRepo)(nil)

type enrollmentRepo struct{ pool *pgxpool.Pool }

func NewEnrollmentRepo(pool *pgxpool.Pool) *enrollmentRepo {
	return &enrollmentRepo{pool: pool}
}

func (r *enrollmentRepo) Find(ctx context.Context, tx repository.Tx, userID, assessmentID string) (*model.Enrollment, error) {
	q := forUpdate(`
SELECT user_id, assessment_id, max_retakes, retake_count, retake_paid, review_paid,
       review_expires_at, last_completed_at, last_retake_at
  FROM assessment_enrollments
 WHERE user_id=$1 AND assessment_id=$2`, tx) + ";"
	row, err := pickRow(ctx, r.pool, tx, q, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	e := &model.Enrollment{}
	if err := row.Scan(&e.UserID, &e.AssessmentID, &e.MaxRetakes, &e.RetakeCount, &e.RetakePaid, &e.ReviewPaid,
		&e.ReviewExpiresAt, &e.LastCompletedAt, &e.LastRetakeAt); err != nil {
		return nil, scanErr(err)
	}
	return e, nil
}

func (r *enrollmentRepo) MarkReviewPaid(ctx context.Context, tx repository.Tx, userID, assessmentID string, expiresAt *time.Time) error {
	const q = `UPDATE assessment_enrollments SET review_paid=TRUE, review_expires_at=$3 WHERE user_id=$1 AND assessment_id=$2;`
	return r.exec1(ctx, tx, q, userID, assessmentID, expiresAt)
}

func (r *enrollmentRepo) MarkRetakePaid(ctx context.Context, tx repository.Tx, userID, assessmentID string) error {
	const q = `UPDATE assessment_enrollments SET retake_paid=TRUE WHERE user_id=$1 AND assessment_id=$2;`
	return r.exec1(ctx, tx, q, userID, assessmentID)
}

// RecordRetake re-checks the cooldown in the WHERE clause, so a concurrent grant
// that already stamped last_retake_at makes this one a no-op.
func (r *enrollmentRepo) RecordRetake(ctx context.Context, tx repository.Tx, userID, assessmentID string, at, notAfter time.Time, paid bool) (bool, error) {
	const q = `
UPDATE assessment_enrollments
   SET retake_count = retake_count + 1,
       last_retake_at = $3,
       retake_paid = CASE WHEN $5 THEN FALSE ELSE retake_paid END
 WHERE user_id=$1 AND assessment_id=$2
   AND (last_completed_at IS NULL OR last_completed_at <= $4)
   AND (last_retake_at IS NULL OR last_retake_at <= $4);`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, assessmentID, at, notAfter, paid)
	if err != nil {
		return false, writeErr(err)
	}
	return tag.RowsAffected() >= 1, nil
}

// Save upserts an enrollment. The assessment module owns these rows; seed and tests use this.
func (r *enrollmentRepo) Save(ctx context.Context, tx repository.Tx, e *model.Enrollment) error {
	const q = `
INSERT INTO assessment_enrollments (user_id, assessment_id, max_retakes, retake_count, retake_paid, review_paid,
  review_expires_at, last_completed_at, last_retake_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (user_id, assessment_id) DO UPDATE SET
  max_retakes=$3, retake_count=$4, retake_paid=$5, review_paid=$6, review_expires_at=$7, last_completed_at=$8, last_retake_at=$9;`
	_, err := execSQL(ctx, r.pool, tx, q, e.UserID, e.AssessmentID, e.MaxRetakes, e.RetakeCount, e.RetakePaid, e.ReviewPaid,
		e.ReviewExpiresAt, e.LastCompletedAt, e.LastRetakeAt)
	return writeErr(err)
}

func (r *enrollmentRepo) exec1(ctx context.Context, tx repository.Tx, q string, args ...interface{}) error {
	tag, err := execSQL(ctx, r.pool, tx, q, args...)
	if err != nil {
		return writeErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
