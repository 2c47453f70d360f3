package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by layer (redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypage_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheMisses tracks cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keypage_cache_misses_total",
			Help: "Total number of page cache misses",
		},
	)

	// CacheStoredBytes tracks compressed bytes written by layer
	CacheStoredBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypage_cache_stored_bytes_total",
			Help: "Total compressed bytes written to the page cache",
		},
		[]string{"layer"}, // "redis"
	)

	// CacheInvalidations tracks generation bumps
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keypage_cache_invalidations_total",
			Help: "Total number of page cache invalidations",
		},
	)

	// NotModifiedResponses tracks 304 Not Modified responses
	NotModifiedResponses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keypage_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keypage_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", "generation", "invalidate", "decode"
	)
)
