package proxy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	proxySamplesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "batchfetch_proxy_samples_total",
		Help: "Total number of proxy endpoints handed out by the pool",
	})

	proxyVerifyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "batchfetch_proxy_verify_total",
		Help: "Proxy self-test calls by result",
	}, []string{"result"}) // "ok", "error"
)
