package obs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartMutationsTotal counts cart mutations by operation and outcome.
	CartMutationsTotal *prometheus.CounterVec
	// CartRejectionsTotal counts rejection codes returned to shoppers.
	CartRejectionsTotal *prometheus.CounterVec
	// CartStockCapsTotal counts lines capped by the stock allocation sweep.
	CartStockCapsTotal prometheus.Counter
	// CartCouponInvalidationsTotal counts coupons dropped during re-validation.
	CartCouponInvalidationsTotal *prometheus.CounterVec
	// CartRecomputeLatency records the duration of a full cart recompute in milliseconds.
	CartRecomputeLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers the cart Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_mutations_total",
			Help:      "Count of cart mutations by operation and result.",
		}, []string{"op", "result"})
		CartRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_rejections_total",
			Help:      "Count of rejection codes returned by cart mutations.",
		}, []string{"code"})
		CartStockCapsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_stock_caps_total",
			Help:      "Number of cart lines capped or removed by stock allocation.",
		})
		CartCouponInvalidationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_coupon_invalidations_total",
			Help:      "Count of coupons dropped during re-validation.",
		}, []string{"reason"})
		CartRecomputeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_recompute_duration_ms",
			Help:      "Latency of a full cart recompute in milliseconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		})

		CartMutationsTotal = register(reg, CartMutationsTotal)
		CartRejectionsTotal = register(reg, CartRejectionsTotal)
		CartStockCapsTotal = register(reg, CartStockCapsTotal)
		CartCouponInvalidationsTotal = register(reg, CartCouponInvalidationsTotal)
		CartRecomputeLatency = register(reg, CartRecomputeLatency)
	})
}

// RecordCartMutation increments the mutation counter when metrics are registered.
func RecordCartMutation(op, result string) {
	if CartMutationsTotal != nil {
		CartMutationsTotal.WithLabelValues(op, result).Inc()
	}
}

// RecordCartRejection increments the rejection counter.
func RecordCartRejection(code string) {
	if CartRejectionsTotal != nil {
		CartRejectionsTotal.WithLabelValues(code).Inc()
	}
}

// RecordStockCaps adds n capped lines.
func RecordStockCaps(n int) {
	if CartStockCapsTotal != nil && n > 0 {
		CartStockCapsTotal.Add(float64(n))
	}
}

// RecordCouponInvalidation increments the coupon invalidation counter.
func RecordCouponInvalidation(reason string) {
	if CartCouponInvalidationsTotal != nil {
		CartCouponInvalidationsTotal.WithLabelValues(reason).Inc()
	}
}

// ObserveCartRecompute records a recompute duration.
func ObserveCartRecompute(d time.Duration) {
	if CartRecomputeLatency != nil {
		CartRecomputeLatency.Observe(float64(d.Microseconds()) / 1000)
	}
}

// register adds c to reg, returning the already registered collector of the
// same description instead when there is one.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	panic(fmt.Errorf("register metric: %w", err))
}
