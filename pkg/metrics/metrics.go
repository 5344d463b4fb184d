package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ManifestRewrites counts manifest fetches by outcome (rewritten|passthrough|error).
	ManifestRewrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsgate_manifest_rewrites_total",
			Help: "Total number of manifest fetch requests",
		},
		[]string{"outcome"},
	)

	// SegmentResolutions counts signed segment resolutions by outcome
	// (ok|invalid_token|not_found|upstream_error).
	SegmentResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsgate_segment_resolutions_total",
			Help: "Total number of signed segment resolution requests",
		},
		[]string{"outcome"},
	)

	// StoreEntries tracks live resource store entries.
	StoreEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hlsgate_store_entries",
			Help: "Number of resource entries currently held in the store",
		},
	)

	// UpstreamLatency measures remote fetch latencies by resource class.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlsgate_upstream_latency_seconds",
			Help:    "Upstream fetch latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"resource"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlsgate_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
