// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "folio"

var (
	// CacheLookups counts cache reads. Labels: family (notes, note, starred,
	// recent, search, folder, folders), result (hit, miss, shared).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Query cache lookups by key family and result",
	}, []string{"family", "result"})

	// CacheInvalidations counts entries marked stale by the invalidation policy.
	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "invalidations_total",
		Help:      "Query cache entries marked stale",
	}, []string{"family"})

	// CacheDiscardedResponses counts fetch results dropped because a newer
	// fetch for the same key was started.
	CacheDiscardedResponses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "discarded_responses_total",
		Help:      "Fetch results discarded in favour of a newer fetch",
	})

	// CacheUsers is the number of per-user caches held after the last sweep.
	CacheUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "users",
		Help:      "Per-user query caches currently held",
	})

	// Mutations counts coordinator mutations. Labels: op, status (ok, error).
	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "mutations_total",
		Help:      "Mutations run through the coordinator",
	}, []string{"op", "status"})

	// SummarizeDuration measures summarization gateway calls. Labels: status.
	SummarizeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "summarize",
		Name:      "request_duration_seconds",
		Help:      "Summarization request latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"status"})
)
