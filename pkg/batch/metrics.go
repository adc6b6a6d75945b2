package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for batch runs.
var (
	passesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_passes_total",
		Help: "Total dispatch passes across all runs",
	})

	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_pass_duration_seconds",
		Help:    "Duration of a dispatch pass in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})

	slotsResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_slots_resolved_total",
		Help: "Total finalized slots by status",
	}, []string{"status"})

	passBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_pass_backoff_seconds",
		Help:    "Delay before retry passes in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
