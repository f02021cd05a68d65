package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(dbPoolConns, dbPoolAcquires, dbPoolAcquireWait) }

var (
	dbPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_connections",
			Help: "Postgres pool connections by state.",
		},
		[]string{"state"}, // max|total|idle|acquired|constructing
	)
	// pgxpool only exposes cumulative counts, so these are gauges mirroring them.
	dbPoolAcquires = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_acquires",
			Help: "Cumulative pool acquires by outcome since start.",
		},
		[]string{"outcome"}, // ok|waited|canceled
	)
	dbPoolAcquireWait = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "db_pool_acquire_wait_seconds",
		Help: "Cumulative time spent waiting for a pool connection.",
	})
)

// PoolSnapshot is one reading of the connection pool.
type PoolSnapshot struct {
	Max, Total, Idle, Acquired, Constructing int32
	Acquires, EmptyAcquires, CanceledAcquires int64
	AcquireWait                               time.Duration
}

func SetDBPoolStats(s PoolSnapshot) {
	dbPoolConns.WithLabelValues("max").Set(float64(s.Max))
	dbPoolConns.WithLabelValues("total").Set(float64(s.Total))
	dbPoolConns.WithLabelValues("idle").Set(float64(s.Idle))
	dbPoolConns.WithLabelValues("acquired").Set(float64(s.Acquired))
	dbPoolConns.WithLabelValues("constructing").Set(float64(s.Constructing))
	dbPoolAcquires.WithLabelValues("ok").Set(float64(s.Acquires))
	dbPoolAcquires.WithLabelValues("waited").Set(float64(s.EmptyAcquires))
	dbPoolAcquires.WithLabelValues("canceled").Set(float64(s.CanceledAcquires))
	dbPoolAcquireWait.Set(s.AcquireWait.Seconds())
}
