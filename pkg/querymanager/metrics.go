package querymanager

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

type metrics struct {
	parses        *prometheus.CounterVec
	builds        *prometheus.CounterVec
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	parseDuration prometheus.Histogram
}

func newMetrics(r prometheus.Registerer) *metrics {
	return &metrics{
		parses: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "ppl_query_manager_parses_total",
			Help: "Total number of parsed queries by status.",
		}, []string{"status"}),
		builds: promauto.With(r).NewCounterVec(prometheus.CounterOpts{
			Name: "ppl_query_manager_builds_total",
			Help: "Total number of nodes built from parameters by node type and status.",
		}, []string{"node", "status"}),
		cacheHits: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "ppl_query_manager_cache_hits_total",
			Help: "Total number of parses answered by the cache.",
		}),
		cacheMisses: promauto.With(r).NewCounter(prometheus.CounterOpts{
			Name: "ppl_query_manager_cache_misses_total",
			Help: "Total number of parses not found in the cache.",
		}),
		parseDuration: promauto.With(r).NewHistogram(prometheus.HistogramOpts{
			Name: "ppl_query_manager_parse_duration_seconds",
			Help: "Time taken to parse a query.",

			Buckets:                         prometheus.ExponentialBuckets(0.00001, 4, 8),
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 0,
		}),
	}
}
