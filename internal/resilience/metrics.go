package resilience

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	// BreakerState is 0 closed, 1 open, 2 half-open per dependency.
	BreakerState *prometheus.GaugeVec
	// BreakerTransitions counts state changes per dependency.
	BreakerTransitions *prometheus.CounterVec
)

// MustRegisterMetrics registers the breaker collectors once.
func MustRegisterMetrics(namespace string, reg prometheus.Registerer) {
	registerOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Current breaker state: 0=closed, 1=open, 2=half-open.",
		}, []string{"dependency"})
		transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_transitions_total",
			Help:      "Count of breaker state transitions.",
		}, []string{"dependency", "from", "to"})

		BreakerState = register(reg, state)
		BreakerTransitions = register(reg, transitions)
	})
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}
