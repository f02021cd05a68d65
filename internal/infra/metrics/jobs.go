package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		sweepCancelledTotal,
		reconcileTotal,
	)
}

var (
	sweepCancelledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sweep_cancelled_total",
			Help: "Pending transactions cancelled by the sweeper, by reason.",
		},
		[]string{"reason"}, // expired|stale
	)

	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_total",
			Help: "Pending transactions re-verified by the reconciler, by outcome.",
		},
		[]string{"outcome"}, // completed|failed|pending|error
	)
)

func AddSweepCancelled(reason string, n int64) {
	if n > 0 {
		sweepCancelledTotal.WithLabelValues(norm(reason)).Add(float64(n))
	}
}

func IncReconcile(outcome string) {
	reconcileTotal.WithLabelValues(norm(outcome)).Inc()
}
