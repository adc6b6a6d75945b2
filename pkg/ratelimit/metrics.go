package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for admission control.
var (
	bucketTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "batchfetch_bucket_tokens",
		Help: "Tokens currently available in the admission bucket",
	})

	admissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_admissions_total",
		Help: "Total number of requests admitted by the token bucket",
	})

	admissionWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_admission_waits_total",
		Help: "Total number of acquisitions that had to wait for a token",
	})

	admissionWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "batchfetch_admission_wait_seconds",
		Help:    "Time spent waiting for a token, for acquisitions that waited",
		Buckets: []float64{0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10},
	})

	admissionFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_admission_failures_total",
		Help: "Acquisitions that gave up without a token, by reason",
	}, []string{"reason"}) // "starved", "timeout", "cancelled"
)
