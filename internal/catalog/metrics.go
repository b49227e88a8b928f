package catalog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediafuse",
		Subsystem: "catalog",
		Name:      "pages_fetched_total",
		Help:      "Upstream page rounds fetched during accumulation, per view.",
	}, []string{"view"})

	droppedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediafuse",
		Subsystem: "catalog",
		Name:      "dropped_records_total",
		Help:      "Source records dropped for failing validation, per source.",
	}, []string{"source"})

	merges = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mediafuse",
		Subsystem: "catalog",
		Name:      "merges_total",
		Help:      "Cross-source record merges performed during reconciliation.",
	})

	refreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediafuse",
		Subsystem: "catalog",
		Name:      "refresh_runs_total",
		Help:      "Incremental refresh runs, by result.",
	}, []string{"result"})
)
