package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueriesTotal counts executed requests by kind (tabular, map) and status.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigaview_queries_total",
			Help: "Total number of executed view requests",
		},
		[]string{"kind", "status"},
	)
	// QueryDuration is the time spent inside the permit, queries and conversion included.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gigaview_query_duration_seconds",
			Help:    "Engine time per request in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"kind"},
	)
	// OverloadTotal counts requests rejected before reaching the engine.
	OverloadTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigaview_overload_total",
			Help: "Requests rejected because the engine was busy",
		},
		[]string{"reason"},
	)
	PermitsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gigaview_permits_in_use",
		Help: "Engine permits currently held",
	})
	QueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gigaview_queue_length",
		Help: "Tasks waiting for an engine worker",
	})

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigaview_cache_requests_total",
			Help: "Remote dataset resolutions by result (hit, restored, miss, error)",
		},
		[]string{"result"},
	)
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigaview_cache_evictions_total",
			Help: "Cached files removed by reason (ttl, space)",
		},
		[]string{"reason"},
	)
	CacheDownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigaview_cache_downloaded_bytes_total",
		Help: "Bytes fetched from remote sources",
	})
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gigaview_cache_entries",
		Help: "Tracked cache entries",
	})
)
