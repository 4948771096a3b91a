// Package telemetry provides observability primitives for the llamaxing
// gateway: request-level Prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors for the gateway's HTTP edge.
// Cache-hit, rate-limit, and circuit-breaker gauges from the teacher's
// set are dropped along with those packages -- this gateway caches,
// rate-limits, and breaks nothing (spec Non-goals).
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	ActiveRequests  prometheus.Gauge
	UpstreamErrors  *prometheus.CounterVec // labels: endpoint, status
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llamaxing",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:                       "llamaxing",
			Name:                            "request_duration_seconds",
			Help:                            "HTTP request duration in seconds.",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}, []string{"method", "path"}),

		ActiveRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "llamaxing",
			Name:      "active_requests",
			Help:      "Number of currently active requests.",
		}),

		UpstreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "llamaxing",
			Name:      "upstream_errors_total",
			Help:      "Total upstream relay failures by endpoint and status.",
		}, []string{"endpoint", "status"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.ActiveRequests,
		m.UpstreamErrors,
	)

	return m
}
