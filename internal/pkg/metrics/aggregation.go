// Package metrics provides Prometheus metrics recording for internal packages.
// This package exists to avoid import cycles between database, lock, and
// service packages.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// aggregationDuration tracks aggregation pass duration in seconds
	aggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptloop_aggregation_duration_seconds",
			Help:    "Iteration aggregation pass duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// aggregationTotal tracks total aggregation passes by result
	aggregationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptloop_aggregations_total",
			Help: "Total number of iteration aggregation passes",
		},
		[]string{"result"},
	)

	// lockWaitDuration tracks time spent waiting on the iteration lock
	lockWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "promptloop_lock_wait_duration_seconds",
			Help:    "Time spent polling for the iteration lock in seconds",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 15, 30},
		},
	)

	// lockTimeouts tracks lock acquisition timeouts
	lockTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptloop_lock_timeouts_total",
			Help: "Total number of lock acquisition timeouts",
		},
	)

	// eventsPublished tracks events published to the iteration event bus
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptloop_events_published_total",
			Help: "Total number of iteration events published",
		},
		[]string{"type"},
	)

	// dbQueryDuration tracks database query duration in seconds
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptloop_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"database", "operation"},
	)

	// dbQueryTotal tracks total database queries
	dbQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptloop_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"database", "operation"},
	)
)

// RecordAggregation records an aggregation pass outcome and duration
func RecordAggregation(result string, duration time.Duration) {
	aggregationTotal.WithLabelValues(result).Inc()
	aggregationDuration.Observe(duration.Seconds())
}

// RecordLockWait records time spent waiting for the iteration lock
func RecordLockWait(duration time.Duration) {
	lockWaitDuration.Observe(duration.Seconds())
}

// RecordLockTimeout records a lock acquisition timeout
func RecordLockTimeout() {
	lockTimeouts.Inc()
}

// RecordEventPublished records a published iteration event
func RecordEventPublished(eventType string) {
	eventsPublished.WithLabelValues(eventType).Inc()
}

// RecordDBQuery records database query metrics
func RecordDBQuery(database, operation string, duration time.Duration) {
	dbQueryTotal.WithLabelValues(database, operation).Inc()
	dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
