package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	lookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafuse_cache_lookups_total",
		Help: "Cache lookups by outcome tier (memory, disk, miss).",
	}, []string{"tier"})

	staleServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mediafuse_cache_stale_served_total",
		Help: "Stale values served while a background refresh revalidated them.",
	})

	refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafuse_cache_refreshes_total",
		Help: "Background stale-while-revalidate refreshes by result.",
	}, []string{"result"})

	diskErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediafuse_cache_disk_errors_total",
		Help: "Disk tier IO failures by operation, all degraded to misses.",
	}, []string{"operation"})
)
