package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhooksTotal) }

var webhooksTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhooks_total",
		Help: "Inbound gateway webhooks by gateway and result.",
	},
	[]string{"gateway", "result"}, // processed|ignored|bad_signature|malformed|unknown_gateway|error
)

func IncWebhook(gateway, result string) {
	webhooksTotal.WithLabelValues(norm(gateway), norm(result)).Inc()
}
