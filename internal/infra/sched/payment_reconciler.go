package sched

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain"
	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/adapter"
	"school-payments/internal/infra/metrics"
	"school-payments/internal/infra/redis"
	"school-payments/internal/infra/worker"
	"school-payments/internal/usecase"
)

// Confirmer is the slice of the payment use case the reconciler drives.
type Confirmer interface {
	ListPendingForReconcile(ctx context.Context, olderThan time.Duration, limit int) ([]*model.PaymentTransaction, error)
	ConfirmByReference(ctx context.Context, reference, providerReference string) (*usecase.VerificationResult, error)
}

type ReconcilerOptions struct {
	Interval   time.Duration // how often to scan
	OlderThan  time.Duration // how old a pending transaction must be to re-verify
	BatchSize  int
	AlertAfter time.Duration // pending this long raises an operator alert
}

// PaymentReconciler re-verifies pending transactions with their gateway. It
// covers webhooks that never arrived and processes that died mid-confirm.
type PaymentReconciler struct {
	uc     Confirmer
	pool   *worker.Pool
	locker redis.Locker
	alerts adapter.AlertNotifier
	opts   ReconcilerOptions
	log    *zerolog.Logger
	now    func() time.Time
}

func NewPaymentReconciler(uc Confirmer, pool *worker.Pool, locker redis.Locker, alerts adapter.AlertNotifier, opts ReconcilerOptions, logger *zerolog.Logger) *PaymentReconciler {
	if opts.Interval <= 0 {
		opts.Interval = 2 * time.Minute
	}
	if opts.OlderThan <= 0 {
		opts.OlderThan = 5 * time.Minute
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if locker == nil {
		locker = redis.LocalLocker{}
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, pool: pool, locker: locker, alerts: alerts, opts: opts, log: &l, now: time.Now}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.opts.Interval).Dur("older_than", w.opts.OlderThan).Msg("Starting payment reconciler")
	t := time.NewTicker(w.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-t.C:
			w.Tick(ctx)
		}
	}
}

// Tick reconciles one batch and waits for it to finish.
func (w *PaymentReconciler) Tick(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.opts.Interval)
	defer cancel()

	release, ok := acquire(runCtx, w.locker, "lock:sched:reconcile", w.opts.Interval, w.log)
	if !ok {
		return
	}
	defer release()

	pending, err := w.uc.ListPendingForReconcile(runCtx, w.opts.OlderThan, w.opts.BatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("list pending failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		stuck []string
	)
	for _, txn := range pending {
		wg.Add(1)
		err := w.pool.Submit(runCtx, func(ctx context.Context) error {
			defer wg.Done()
			if w.reconcile(runCtx, txn) == model.TransactionPending && w.opts.AlertAfter > 0 && w.now().Sub(txn.CreatedAt) >= w.opts.AlertAfter {
				mu.Lock()
				stuck = append(stuck, txn.Reference)
				mu.Unlock()
			}
			return nil
		})
		if err != nil {
			wg.Done()
			w.log.Warn().Err(err).Str("reference", txn.Reference).Msg("reconcile not scheduled")
			break
		}
	}
	wg.Wait()

	if len(stuck) > 0 {
		w.alertStuck(ctx, stuck)
	}
}

// reconcile returns the status after verification. A gateway error counts as
// still pending; a vanished row yields "".
func (w *PaymentReconciler) reconcile(ctx context.Context, txn *model.PaymentTransaction) model.TransactionStatus {
	log := w.log.With().Str("reference", txn.Reference).Str("gateway", txn.Gateway).Logger()
	res, err := w.uc.ConfirmByReference(ctx, txn.Reference, "")
	switch {
	case errors.Is(err, domain.ErrNotFound):
		metrics.IncReconcile("gone")
		return ""
	case err != nil:
		metrics.IncReconcile("error")
		log.Warn().Err(err).Msg("reconcile verification failed")
		return model.TransactionPending
	}
	metrics.IncReconcile(string(res.Status))
	if res.Status != model.TransactionPending && !res.AlreadyProcessed {
		log.Info().Str("status", string(res.Status)).Msg("reconciled pending transaction")
	}
	return res.Status
}

func (w *PaymentReconciler) alertStuck(ctx context.Context, refs []string) {
	sort.Strings(refs)
	text := fmt.Sprintf("%d transaction(s) pending longer than %s: %s", len(refs), w.opts.AlertAfter, strings.Join(refs, ", "))
	w.log.Warn().Strs("references", refs).Msg("stuck pending transactions")
	if w.alerts == nil {
		return
	}
	if err := w.alerts.Alert(ctx, "Stuck pending payments", text); err != nil {
		w.log.Warn().Err(err).Msg("alert delivery failed")
	}
}
