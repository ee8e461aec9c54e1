package main

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics are the demo binary's Prometheus counters and histograms,
// registered against the default registry and exposed at /metrics.
type EngineMetrics struct {
	OrdersSubmitted   *prometheus.CounterVec
	OrdersRejected    *prometheus.CounterVec
	TradesExecuted    prometheus.Counter
	CascadeIterations prometheus.Counter
	RequestLatency    *prometheus.HistogramVec
}

// NewEngineMetrics builds and registers the demo binary's metrics.
func NewEngineMetrics() *EngineMetrics {
	m := &EngineMetrics{
		OrdersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_submitted_total",
			Help: "Orders accepted, by kind.",
		}, []string{"kind"}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_rejected_total",
			Help: "Requests rejected, by operation.",
		}, []string{"operation"}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_trades_executed_total",
			Help: "Total trades executed by the matcher.",
		}),
		CascadeIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_stop_cascade_iterations_total",
			Help: "Stop-cascade scan iterations that activated at least one order.",
		}),
		RequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "engine_request_duration_seconds",
			Help:    "HTTP request latency for the demo server.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	prometheus.MustRegister(m.OrdersSubmitted, m.OrdersRejected, m.TradesExecuted, m.CascadeIterations, m.RequestLatency)
	return m
}
