package router

import (
	"github.com/prometheus/client_golang/prometheus"
)

// --- Metrics ---

// Metrics holds all the Prometheus metrics for the router.
type Metrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	poolsDeployed     *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics for the router.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_router_operations_total",
			Help: "Total number of router operations, labeled by operation and result.",
		}, []string{"op", "result"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amm_router_operation_duration_seconds",
			Help:    "Time taken to execute a single router operation.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		poolsDeployed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "amm_router_pools_deployed_total",
			Help: "Total number of pools deployed, labeled by pool type.",
		}, []string{"type"}),
	}
	reg.MustRegister(m.operationsTotal, m.operationDuration, m.poolsDeployed)
	return m
}

// observe records the outcome of op. Call it deferred with the start timer.
func (m *Metrics) observe(op string, timer *prometheus.Timer, err error) {
	timer.ObserveDuration()
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operationsTotal.WithLabelValues(op, result).Inc()
}
