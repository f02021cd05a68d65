package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"school-payments/internal/domain/model"
	"school-payments/internal/domain/ports/repository"
	"school-payments/internal/infra/logging"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

type StatsUseCase interface {
	PaymentStats(ctx context.Context, period string) (*model.PaymentStats, error)
}

type statsUC struct {
	txns repository.PaymentTransactionRepository
	log  *zerolog.Logger
	now  func() time.Time
}

func NewStatsUseCase(txns repository.PaymentTransactionRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{txns: txns, log: logger, now: time.Now}
}

// PaymentStats aggregates transactions created since the start of period.
// Gateway and hosting deductions are not applied.
func (s *statsUC) PaymentStats(ctx context.Context, period string) (*model.PaymentStats, error) {
	defer logging.TraceDuration(s.log, "StatsUC.PaymentStats")()

	p, err := model.ParseStatsPeriod(period)
	if err != nil {
		return nil, err
	}
	since := p.Since(s.now())
	rows, err := s.txns.AggregateSince(ctx, repository.NoTX, since)
	if err != nil {
		return nil, err
	}
	return model.NewPaymentStats(p, since, rows), nil
}
