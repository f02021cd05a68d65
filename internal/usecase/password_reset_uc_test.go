//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/usecase"
)

func newResetUC(d *paymentDeps, payments usecase.PaymentUseCase) usecase.PasswordResetUseCase {
	return usecase.NewPasswordResetUseCase(payments, d.accounts, d.tm, d.settings, d.audit, newTestLogger())
}

func TestPasswordResetUseCase_ProcessReset(t *testing.T) {
	ctx := context.Background()

	t.Run("should allow exactly two resets per payment", func(t *testing.T) {
		// --- Arrange ---
		d := newPaymentDeps()
		payments := d.paymentUC()
		uc := newResetUC(d, payments)
		if !uc.RequiresPayment(ctx, "user-1") {
			t.Fatal("expected payment to be required before paying")
		}
		ref := d.completedPayment(payments, "user-1", model.PasswordReset())

		// --- Act ---
		first, err := uc.ProcessReset(ctx, "user-1", ref, "correct horse")
		if err != nil {
			t.Fatalf("first reset: %v", err)
		}
		afterFirst := payments.CanUserAccessService(ctx, "user-1", model.PasswordReset())
		second, err := uc.ProcessReset(ctx, "user-1", ref, "battery staple")
		if err != nil {
			t.Fatalf("second reset: %v", err)
		}
		_, thirdErr := uc.ProcessReset(ctx, "user-1", ref, "third password")

		// --- Assert ---
		if !first.PaymentUsed || first.RemainingUses != 1 {
			t.Errorf("unexpected first result %+v", first)
		}
		if !afterFirst {
			t.Error("access must remain after one use")
		}
		if !second.PaymentUsed || second.RemainingUses != 0 {
			t.Errorf("unexpected second result %+v", second)
		}
		if !errors.Is(thirdErr, domain.ErrNoAccess) {
			t.Errorf("expected ErrNoAccess on the third reset, got %v", thirdErr)
		}
		if payments.CanUserAccessService(ctx, "user-1", model.PasswordReset()) {
			t.Error("access must end after two uses")
		}
		acct, _ := d.accounts.FindByID(ctx, nil, "user-1")
		if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte("battery staple")) != nil {
			t.Error("expected the second password to be stored")
		}
	})

	t.Run("should let only one of two concurrent resets spend the last use", func(t *testing.T) {
		// --- Arrange ---
		d := newPaymentDeps()
		payments := d.paymentUC()
		uc := newResetUC(d, payments)
		ref := d.completedPayment(payments, "user-1", model.PasswordReset())
		if _, err := uc.ProcessReset(ctx, "user-1", ref, "first password"); err != nil {
			t.Fatalf("first reset: %v", err)
		}

		// --- Act ---
		passwords := []string{"racing password a", "racing password b"}
		results := make([]*usecase.ResetResult, len(passwords))
		errs := make([]error, len(passwords))
		var wg sync.WaitGroup
		for i, pw := range passwords {
			wg.Add(1)
			go func(i int, pw string) {
				defer wg.Done()
				results[i], errs[i] = uc.ProcessReset(ctx, "user-1", ref, pw)
			}(i, pw)
		}
		wg.Wait()

		// --- Assert ---
		winner := -1
		for i := range passwords {
			switch {
			case errs[i] == nil:
				if winner != -1 {
					t.Fatal("both resets succeeded on a grant with one use left")
				}
				winner = i
				if !results[i].PaymentUsed || results[i].RemainingUses != 0 {
					t.Errorf("unexpected winning result %+v", results[i])
				}
			case !errors.Is(errs[i], domain.ErrNoAccess):
				t.Errorf("expected ErrNoAccess for the losing reset, got %v", errs[i])
			}
		}
		if winner == -1 {
			t.Fatal("expected one reset to succeed")
		}
		if g := d.grants.All()[0]; g.UsageCount != g.MaxUses {
			t.Errorf("expected the grant to be spent exactly, got %d/%d", g.UsageCount, g.MaxUses)
		}
		acct, _ := d.accounts.FindByID(ctx, nil, "user-1")
		if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(passwords[winner])) != nil {
			t.Error("only the winning password may be stored")
		}
	})

	t.Run("should reject a weak password before touching the payment", func(t *testing.T) {
		d := newPaymentDeps()
		payments := d.paymentUC()
		ref := d.completedPayment(payments, "user-1", model.PasswordReset())

		_, err := newResetUC(d, payments).ProcessReset(ctx, "user-1", ref, "short")

		if !errors.Is(err, domain.ErrWeakPassword) {
			t.Fatalf("expected ErrWeakPassword, got %v", err)
		}
		if g := d.grants.All()[0]; g.UsageCount != 0 {
			t.Error("no use may be taken for a refused reset")
		}
	})

	t.Run("should refuse payments that do not cover a reset", func(t *testing.T) {
		d := newPaymentDeps()
		d.accounts.Seed("user-2")
		payments := d.paymentUC()
		uc := newResetUC(d, payments)
		review := d.completedPayment(payments, "user-1", model.AssessmentReview("quiz-1"))
		pending, _ := payments.CreatePaymentRequest(ctx, "user-1", model.PasswordReset())
		foreign := d.completedPayment(payments, "user-2", model.PasswordReset())

		cases := []struct {
			name string
			ref  string
			want error
		}{
			{"missing reference", "", domain.ErrInvalidArgument},
			{"unknown reference", "PAS_1_1111", domain.ErrNotFound},
			{"other user", foreign, domain.ErrTransactionNotOwned},
			{"wrong service", review, domain.ErrInvalidServiceType},
			{"not completed", pending.Reference, domain.ErrPaymentNotCompleted},
		}
		for _, c := range cases {
			t.Run(c.name, func(t *testing.T) {
				_, err := uc.ProcessReset(ctx, "user-1", c.ref, "long enough password")
				if !errors.Is(err, c.want) {
					t.Errorf("expected %v, got %v", c.want, err)
				}
			})
		}
	})

	t.Run("should reset for free when the toggle is off", func(t *testing.T) {
		d := newPaymentDeps()
		d.config.values[usecase.KeyPasswordResetPaymentEnabled] = "false"
		uc := newResetUC(d, d.paymentUC())

		if uc.RequiresPayment(ctx, "user-1") {
			t.Fatal("payment must not be required")
		}
		res, err := uc.ProcessReset(ctx, "user-1", "", "long enough password")

		if err != nil || !res.Success || res.PaymentUsed {
			t.Fatalf("expected a free reset, got %+v %v", res, err)
		}
	})

	t.Run("should reset for free when payments are globally disabled", func(t *testing.T) {
		d := newPaymentDeps()
		d.config.values[usecase.KeyPaymentsEnabled] = "false"

		if newResetUC(d, d.paymentUC()).RequiresPayment(ctx, "user-1") {
			t.Fatal("payment must not be required")
		}
	})
}
