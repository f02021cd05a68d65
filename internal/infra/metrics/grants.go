package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		grantsTotal,
		grantConsumptionsTotal,
	)
}

var (
	grantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grants_total",
			Help: "Access grants created by service.",
		},
		[]string{"service"},
	)

	grantConsumptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grant_consumptions_total",
			Help: "Attempts to consume a grant by service and result.",
		},
		[]string{"service", "result"}, // consumed|none_left|error
	)
)

func IncGrant(service string) {
	grantsTotal.WithLabelValues(norm(service)).Inc()
}

func IncGrantConsumption(service, result string) {
	grantConsumptionsTotal.WithLabelValues(norm(service), norm(result)).Inc()
}
