package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(gatewayRequestDuration) }

var gatewayRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Outbound payment gateway call latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	},
	[]string{"gateway", "op", "result"}, // op: initialize|verify; result: ok|http_error|unreachable
)

func ObserveGatewayRequest(gateway, op, result string, d time.Duration) {
	gatewayRequestDuration.WithLabelValues(norm(gateway), norm(op), norm(result)).Observe(d.Seconds())
}
