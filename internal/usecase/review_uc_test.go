//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/usecase"
)

func TestReviewUseCase(t *testing.T) {
	ctx := context.Background()

	t.Run("should move from not paid to active", func(t *testing.T) {
		// --- Arrange ---
		d := newPaymentDeps()
		payments := d.paymentUC()
		uc := usecase.NewReviewUseCase(payments, d.audit, newTestLogger())

		before := uc.CheckAccess(ctx, "user-1", "quiz-1")
		ref := d.completedPayment(payments, "user-1", model.AssessmentReview("quiz-1"))

		// --- Act ---
		granted, err := uc.GrantAccess(ctx, "user-1", "quiz-1", ref)

		// --- Assert ---
		if before.Status != usecase.ReviewNotPaid || before.HasAccess {
			t.Errorf("expected not_paid before payment, got %+v", before)
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if granted.Status != usecase.ReviewActive || !granted.HasAccess {
			t.Fatalf("expected active access, got %+v", granted)
		}
		if granted.RemainingSeconds <= 23*3600 || granted.RemainingSeconds > 24*3600 {
			t.Errorf("expected about a day left, got %ds", granted.RemainingSeconds)
		}
		if len(d.grants.All()) != 1 {
			t.Error("granting access for a paid review must not add a grant")
		}
		if uc.RequiresPayment(ctx, "user-1", "quiz-1") {
			t.Error("payment must not be required while active")
		}
	})

	t.Run("should stay open after the review is opened", func(t *testing.T) {
		d := newPaymentDeps()
		payments := d.paymentUC()
		uc := usecase.NewReviewUseCase(payments, d.audit, newTestLogger())
		d.completedPayment(payments, "user-1", model.AssessmentReview("quiz-1"))

		if _, err := uc.OpenReview(ctx, "user-1", "quiz-1"); err != nil {
			t.Fatalf("first open: %v", err)
		}
		access, err := uc.OpenReview(ctx, "user-1", "quiz-1")

		if err != nil || !access.HasAccess {
			t.Fatalf("review must stay open inside the window, got %+v %v", access, err)
		}
		if g := d.grants.All()[0]; g.UsedAt == nil {
			t.Error("expected the first opening to be stamped")
		}
	})

	t.Run("should refuse a second review payment inside an opened window", func(t *testing.T) {
		d := newPaymentDeps()
		payments := d.paymentUC()
		uc := usecase.NewReviewUseCase(payments, d.audit, newTestLogger())
		d.completedPayment(payments, "user-1", model.AssessmentReview("quiz-1"))
		if _, err := uc.OpenReview(ctx, "user-1", "quiz-1"); err != nil {
			t.Fatalf("open: %v", err)
		}

		_, err := payments.CreatePaymentRequest(ctx, "user-1", model.AssessmentReview("quiz-1"))

		if !errors.Is(err, domain.ErrAlreadyHasAccess) {
			t.Fatalf("expected ErrAlreadyHasAccess, got %v", err)
		}
		if !payments.CanUserAccessService(ctx, "user-1", model.AssessmentReview("quiz-1")) {
			t.Error("access check must agree with the open review window")
		}
		if uc.CheckAccess(ctx, "user-1", "quiz-1").Status != usecase.ReviewActive {
			t.Error("expected the review to report active")
		}
	})

	t.Run("should report expired once the window passes", func(t *testing.T) {
		// --- Arrange ---
		d := newPaymentDeps()
		past := time.Now().Add(-48 * time.Hour)
		uc := usecase.NewReviewUseCase(d.paymentUCAt(func() time.Time { return past }), d.audit, newTestLogger())
		d.completedPayment(d.paymentUCAt(func() time.Time { return past }), "user-1", model.AssessmentReview("quiz-1"))

		// --- Act ---
		access := uc.CheckAccess(ctx, "user-1", "quiz-1")
		_, openErr := uc.OpenReview(ctx, "user-1", "quiz-1")

		// --- Assert ---
		if access.Status != usecase.ReviewExpired || access.HasAccess || access.ExpiresAt == nil {
			t.Errorf("expected expired, got %+v", access)
		}
		if !errors.Is(openErr, domain.ErrNoAccess) {
			t.Errorf("expected ErrNoAccess, got %v", openErr)
		}
		if !uc.RequiresPayment(ctx, "user-1", "quiz-1") {
			t.Error("an expired review requires a new payment")
		}
	})

	t.Run("should refuse a reference for another assessment", func(t *testing.T) {
		d := newPaymentDeps()
		payments := d.paymentUC()
		uc := usecase.NewReviewUseCase(payments, d.audit, newTestLogger())
		ref := d.completedPayment(payments, "user-1", model.AssessmentReview("quiz-1"))

		_, err := uc.GrantAccess(ctx, "user-1", "quiz-2", ref)

		if !errors.Is(err, domain.ErrInvalidServiceType) {
			t.Fatalf("expected ErrInvalidServiceType, got %v", err)
		}
	})

	t.Run("should refuse a pending payment", func(t *testing.T) {
		d := newPaymentDeps()
		payments := d.paymentUC()
		uc := usecase.NewReviewUseCase(payments, d.audit, newTestLogger())
		pr, _ := payments.CreatePaymentRequest(ctx, "user-1", model.AssessmentReview("quiz-1"))

		_, err := uc.GrantAccess(ctx, "user-1", "quiz-1", pr.Reference)

		if !errors.Is(err, domain.ErrPaymentNotCompleted) {
			t.Fatalf("expected ErrPaymentNotCompleted, got %v", err)
		}
	})
}
