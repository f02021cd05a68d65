package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/infra/redis"
	"school-payments/internal/usecase"
)

// Sweeper is the slice of the payment use case the cleanup worker drives.
type Sweeper interface {
	Sweep(ctx context.Context) (usecase.SweepResult, error)
}

// CleanupWorker periodically cancels expired and stale pending transactions.
type CleanupWorker struct {
	interval time.Duration
	sweeper  Sweeper
	locker   redis.Locker
	log      *zerolog.Logger
}

func NewCleanupWorker(interval time.Duration, sweeper Sweeper, locker redis.Locker, logger *zerolog.Logger) *CleanupWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if locker == nil {
		locker = redis.LocalLocker{}
	}
	l := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{interval: interval, sweeper: sweeper, locker: locker, log: &l}
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting cleanup worker")
	// Run once on startup, then on every tick
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce sweeps unless another instance holds the lock.
func (w *CleanupWorker) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.interval)
	defer cancel()

	release, ok := acquire(runCtx, w.locker, "lock:sched:sweep", w.interval, w.log)
	if !ok {
		return
	}
	defer release()

	res, err := w.sweeper.Sweep(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("sweep failed")
	}
	if res.Expired+res.Stale > 0 {
		w.log.Info().Int("expired", res.Expired).Int("stale", res.Stale).Msg("pending transactions cancelled")
	}
}

// acquire takes a best-effort cross-instance lock. A busy lock skips the tick;
// a lock backend error runs it anyway since every write is conditional.
func acquire(ctx context.Context, locker redis.Locker, key string, ttl time.Duration, log *zerolog.Logger) (func(), bool) {
	token, err := locker.TryLock(ctx, key, ttl)
	switch {
	case errors.Is(err, redis.ErrLockBusy):
		log.Debug().Str("lock", key).Msg("another instance holds the lock")
		return nil, false
	case err != nil:
		log.Warn().Err(err).Str("lock", key).Msg("lock unavailable, running unlocked")
		return func() {}, true
	}
	return func() {
		if err := locker.Unlock(context.Background(), key, token); err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("unlock failed")
		}
	}, true
}
