package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	IngestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_ingestions_total",
		Help: "The total number of per-player ingestions, labelled by outcome",
	}, []string{"outcome"})
	DropsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_drops_recorded_total",
		Help: "The total number of newly recorded item drops",
	})
	VersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_version_conflicts_total",
		Help: "The total number of optimistic-concurrency conflicts on record saves",
	})

	// Batch metrics
	BatchRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_batch_runs_total",
		Help: "The total number of scheduled batch update runs",
	})
	BatchPlayerFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_batch_player_failures_total",
		Help: "The total number of per-player failures inside batch runs",
	})
	BatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_batch_duration_seconds",
		Help:    "Duration of full batch update runs",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})

	// Upstream metrics
	UpstreamRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracker_upstream_request_seconds",
		Help:    "Latency of requests to upstream RuneScape services",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	// Proxy cache metrics
	ProxyCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_proxy_cache_hits_total",
		Help: "The total number of proxy responses served from cache",
	})
	ProxyCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_proxy_cache_misses_total",
		Help: "The total number of proxy requests that went to upstream",
	})
)
