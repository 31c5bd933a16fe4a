package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeOK      = "ok"
	outcomeRetry   = "retry"
	outcomeDropped = "dropped"
)

var tasksProcessed = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cart_tasks_processed_total",
		Help: "Cart tasks handled by the worker, by task type and outcome.",
	},
	[]string{"task", "outcome"},
)

func observe(task, outcome string) {
	tasksProcessed.WithLabelValues(task, outcome).Inc()
}
