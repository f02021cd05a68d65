package model

import (
	"fmt"
	"strings"
	"time"

	"school-payments/internal/domain"
)

type StatsPeriod string

const (
	PeriodToday StatsPeriod = "today"
	PeriodWeek  StatsPeriod = "week"
	PeriodMonth StatsPeriod = "month"
	PeriodYear  StatsPeriod = "year"
)

func ParseStatsPeriod(s string) (StatsPeriod, error) {
	switch p := StatsPeriod(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PeriodMonth, nil
	case PeriodToday, PeriodWeek, PeriodMonth, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("%w: period %q", domain.ErrInvalidArgument, s)
	}
}

// Since is the start of the window: midnight for today, otherwise a rolling window.
func (p StatsPeriod) Since(now time.Time) time.Time {
	switch p {
	case PeriodToday:
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	case PeriodWeek:
		return now.AddDate(0, 0, -7)
	case PeriodYear:
		return now.AddDate(-1, 0, 0)
	default:
		return now.AddDate(0, -1, 0)
	}
}

// StatsRow is one (service, status, currency) aggregate bucket from storage.
type StatsRow struct {
	ServiceType ServiceType
	Status      TransactionStatus
	Currency    string
	Count       int64
	Amount      int64
}

type StatusTotals struct {
	Count  int64 `json:"count"`
	Amount int64 `json:"amount"`
}

type ServiceTotals struct {
	Transactions int64 `json:"transactions"`
	Completed    int64 `json:"completed"`
	Revenue      int64 `json:"revenue"`
}

// PaymentStats summarises transactions created within a period.
type PaymentStats struct {
	Period            StatsPeriod                        `json:"period"`
	Since             time.Time                          `json:"since"`
	TotalTransactions int64                              `json:"total_transactions"`
	ByStatus          map[TransactionStatus]StatusTotals `json:"by_status"`
	ByService         map[ServiceType]ServiceTotals      `json:"by_service"`
	RevenueByCurrency map[string]int64                   `json:"revenue_by_currency"`
	SuccessRate       float64                            `json:"success_rate"`
}

// NewPaymentStats folds storage buckets into a summary. Revenue counts completed only.
func NewPaymentStats(period StatsPeriod, since time.Time, rows []StatsRow) *PaymentStats {
	s := &PaymentStats{
		Period:            period,
		Since:             since,
		ByStatus:          make(map[TransactionStatus]StatusTotals),
		ByService:         make(map[ServiceType]ServiceTotals),
		RevenueByCurrency: make(map[string]int64),
	}
	var completed int64
	for _, r := range rows {
		s.TotalTransactions += r.Count

		st := s.ByStatus[r.Status]
		st.Count += r.Count
		st.Amount += r.Amount
		s.ByStatus[r.Status] = st

		sv := s.ByService[r.ServiceType]
		sv.Transactions += r.Count
		if r.Status == TransactionCompleted {
			sv.Completed += r.Count
			sv.Revenue += r.Amount
			s.RevenueByCurrency[r.Currency] += r.Amount
			completed += r.Count
		}
		s.ByService[r.ServiceType] = sv
	}
	if s.TotalTransactions > 0 {
		s.SuccessRate = float64(completed) / float64(s.TotalTransactions)
	}
	return s
}
