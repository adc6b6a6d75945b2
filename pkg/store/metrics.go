package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// storeWrites tracks saved documents by backend
	storeWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_store_writes_total",
			Help: "Total number of raw documents written",
		},
		[]string{"backend"}, // "fs", "redis"
	)

	// storeErrors tracks failed store operations
	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchfetch_store_errors_total",
			Help: "Total number of store operation errors",
		},
		[]string{"backend", "operation"}, // "save", "load", "delete"
	)
)
