// Package metrics holds the prometheus collectors shared across the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	EngineOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txengine",
			Name:      "engine_operations_total",
			Help:      "Transaction engine lifecycle operations by outcome",
		},
		[]string{"engine", "operation", "outcome"},
	)

	ValidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txengine",
			Name:      "validation_failures_total",
			Help:      "Validation failures by engine and state",
		},
		[]string{"engine", "state"},
	)

	CacheFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txengine",
			Name:      "cache_fetches_total",
			Help:      "Cached value lookups by result (hit, miss, shared, error)",
		},
		[]string{"cache", "result"},
	)

	AuthRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "txengine",
			Name:      "auth_session_refreshes_total",
			Help:      "Session token refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	ClientRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txengine",
			Name:      "client_request_duration_seconds",
			Help:      "Outbound HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"client", "status"},
	)

	HTTPRequests = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "txengine",
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Register adds every collector to reg. Registering twice returns the prometheus error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		EngineOperations,
		ValidationFailures,
		CacheFetches,
		AuthRefreshes,
		ClientRequestDuration,
		HTTPRequests,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveEngine records one engine operation outcome
func ObserveEngine(engine, operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	EngineOperations.WithLabelValues(engine, operation, outcome).Inc()
}

// ObserveClient records an outbound call duration
func ObserveClient(client, status string, started time.Time) {
	ClientRequestDuration.WithLabelValues(client, status).Observe(time.Since(started).Seconds())
}
