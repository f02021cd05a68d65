package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(configReadsTotal) }

var configReadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "config_reads_total",
		Help: "Secure config reads by result.",
	},
	[]string{"result"}, // cache_hit|db|absent|decrypt_error|error
)

func IncConfigRead(result string) {
	configReadsTotal.WithLabelValues(norm(result)).Inc()
}
