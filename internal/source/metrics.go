package source

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafuse_source_fetch_failures_total",
		Help: "Upstream fetches that failed after all retries, by source and operation.",
	}, []string{"source", "operation"})

	fetchRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafuse_source_fetch_retries_total",
		Help: "Individual upstream fetch attempts that failed and were retried.",
	}, []string{"source"})
)
