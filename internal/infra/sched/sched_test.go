//go:build !integration

package sched

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/infra/redis"
	"school-payments/internal/infra/worker"
	"school-payments/internal/usecase"
)

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

type fakeSweeper struct {
	mu    sync.Mutex
	calls int
	res   usecase.SweepResult
	err   error
}

func (f *fakeSweeper) Sweep(ctx context.Context) (usecase.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.res, f.err
}

type busyLocker struct{ err error }

func (l busyLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "", l.err
}
func (l busyLocker) Unlock(ctx context.Context, key, token string) error { return nil }

type fakeConfirmer struct {
	mu      sync.Mutex
	pending []*model.PaymentTransaction
	results map[string]model.TransactionStatus
	errs    map[string]error
	seen    []string
}

func (f *fakeConfirmer) ListPendingForReconcile(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentTransaction, error) {
	return f.pending, nil
}

func (f *fakeConfirmer) ConfirmByReference(ctx context.Context, reference, providerReference string) (*usecase.VerificationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, reference)
	if err := f.errs[reference]; err != nil {
		return nil, err
	}
	return &usecase.VerificationResult{Reference: reference, Status: f.results[reference]}, nil
}

type fakeAlerts struct {
	mu    sync.Mutex
	texts []string
}

func (f *fakeAlerts) Alert(ctx context.Context, subject, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return nil
}

func TestCleanupWorker_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("should sweep under a free lock", func(t *testing.T) {
		sw := &fakeSweeper{res: usecase.SweepResult{Expired: 2, Stale: 1}}
		NewCleanupWorker(time.Minute, sw, nil, nopLogger()).RunOnce(ctx)
		assert.Equal(t, 1, sw.calls)
	})

	t.Run("should skip while another instance sweeps", func(t *testing.T) {
		sw := &fakeSweeper{}
		NewCleanupWorker(time.Minute, sw, busyLocker{err: redis.ErrLockBusy}, nopLogger()).RunOnce(ctx)
		assert.Equal(t, 0, sw.calls)
	})

	t.Run("should still sweep when the lock backend is down", func(t *testing.T) {
		sw := &fakeSweeper{err: errors.New("partial")}
		NewCleanupWorker(time.Minute, sw, busyLocker{err: errors.New("dial tcp: refused")}, nopLogger()).RunOnce(ctx)
		assert.Equal(t, 1, sw.calls)
	})
}

func TestCleanupWorker_Run(t *testing.T) {
	sw := &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewCleanupWorker(time.Hour, sw, nil, nopLogger()).Run(ctx) }()

	require.Eventually(t, func() bool {
		sw.mu.Lock()
		defer sw.mu.Unlock()
		return sw.calls == 1
	}, time.Second, 5*time.Millisecond, "expected a sweep on startup")
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPaymentReconciler_Tick(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	pool := worker.NewPool(2, nopLogger())
	pool.Start(ctx)
	defer pool.Stop()

	uc := &fakeConfirmer{
		pending: []*model.PaymentTransaction{
			{Reference: "PAS_1_1001", CreatedAt: now.Add(-10 * time.Minute)},
			{Reference: "PAS_1_1002", CreatedAt: now.Add(-10 * time.Minute)},
			{Reference: "PAS_1_1003", CreatedAt: now.Add(-48 * time.Hour)},
			{Reference: "PAS_1_1004", CreatedAt: now.Add(-30 * time.Hour)},
			{Reference: "PAS_1_1005", CreatedAt: now.Add(-30 * time.Hour)},
		},
		results: map[string]model.TransactionStatus{
			"PAS_1_1001": model.TransactionCompleted,
			"PAS_1_1002": model.TransactionPending,
			"PAS_1_1003": model.TransactionPending,
			"PAS_1_1005": model.TransactionFailed,
		},
		errs: map[string]error{
			"PAS_1_1004": domain.ErrVerificationFailed,
		},
	}
	alerts := &fakeAlerts{}
	r := NewPaymentReconciler(uc, pool, nil, alerts, ReconcilerOptions{
		Interval: time.Minute, OlderThan: 5 * time.Minute, BatchSize: 10, AlertAfter: 24 * time.Hour,
	}, nopLogger())

	r.Tick(ctx)

	assert.ElementsMatch(t, []string{"PAS_1_1001", "PAS_1_1002", "PAS_1_1003", "PAS_1_1004", "PAS_1_1005"}, uc.seen)
	require.Len(t, alerts.texts, 1, "stuck transactions are reported in one alert")
	assert.Contains(t, alerts.texts[0], "PAS_1_1003")
	assert.Contains(t, alerts.texts[0], "PAS_1_1004")
	assert.NotContains(t, alerts.texts[0], "PAS_1_1002")
	assert.NotContains(t, alerts.texts[0], "PAS_1_1005")
}
