package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// stageDuration tracks per-stage latency. Labels: stage (dense, lexical, rerank).
	stageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forgetful",
			Subsystem: "retrieval",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each retrieval pipeline stage in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// rerankFallbackTotal counts rerank failures that fell back to the
	// fused ranking instead of failing the request.
	rerankFallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "forgetful",
			Subsystem: "retrieval",
			Name:      "rerank_fallback_total",
			Help:      "Total number of retrievals that fell back to fused ranking after a rerank failure",
		},
	)
)
