// Package metrics provides Prometheus metrics for the ERP sync service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BatchesTotal tracks diff and execute batches by entity type
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erp_sync",
			Subsystem: "engine",
			Name:      "batches_total",
			Help:      "Total number of sync batches by operation and entity type",
		},
		[]string{"operation", "entity_type"},
	)

	// RecordsTotal tracks per-record outcomes
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erp_sync",
			Subsystem: "engine",
			Name:      "records_total",
			Help:      "Total number of candidate records by operation, entity type and outcome",
		},
		[]string{"operation", "entity_type", "status"},
	)

	// BatchDuration tracks batch duration in seconds
	BatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "erp_sync",
			Subsystem: "engine",
			Name:      "batch_duration_seconds",
			Help:      "Duration of sync batches in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation", "entity_type"},
	)

	// FeedEventsTotal tracks staging feed events handed to the worker pool
	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erp_sync",
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Total number of staging feed events by entity type",
		},
		[]string{"entity_type"},
	)

	// SnapshotsTotal tracks staging snapshot imports by result
	SnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "erp_sync",
			Subsystem: "staging",
			Name:      "snapshots_total",
			Help:      "Total number of staging snapshot imports by result",
		},
		[]string{"result"},
	)
)

// ObserveBatch records one finished batch. statuses maps outcome to record count; zero counts are skipped.
func ObserveBatch(operation, entityType string, statuses map[string]int, elapsed time.Duration) {
	BatchesTotal.WithLabelValues(operation, entityType).Inc()
	BatchDuration.WithLabelValues(operation, entityType).Observe(elapsed.Seconds())
	for status, n := range statuses {
		if n > 0 {
			RecordsTotal.WithLabelValues(operation, entityType, status).Add(float64(n))
		}
	}
}
