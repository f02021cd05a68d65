package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu         sync.Mutex
	collectors []prometheus.Collector
	registered = map[prometheus.Registerer]bool{}
)

// register queues collectors from each file's init().
func register(cs ...prometheus.Collector) {
	mu.Lock()
	defer mu.Unlock()
	collectors = append(collectors, cs...)
}

// MustRegister adds every payment service collector to the default registry.
func MustRegister() { MustRegisterWith(prometheus.DefaultRegisterer) }

// MustRegisterWith registers the collectors on reg; repeat calls for the same reg are no-ops.
func MustRegisterWith(reg prometheus.Registerer) {
	mu.Lock()
	defer mu.Unlock()
	if registered[reg] {
		return
	}
	reg.MustRegister(collectors...)
	registered[reg] = true
}
