// Package metrics provides the Prometheus registry and HTTP handler for keypage.
// All metrics are defined in their respective packages (paging, cache, pager)
// to maintain modularity and avoid circular dependencies.
//
// This package provides exposition and reference for all available metrics.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by keypage.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects the metrics registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Names returns the names of registered keypage metric families that have
// been observed at least once.
func Names() ([]string, error) {
	families, err := Gatherer.Gather()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "keypage_") {
			names = append(names, f.GetName())
		}
	}
	return names, nil
}

// Metrics Documentation
//
// Load Metrics (pkg/paging):
//   - keypage_loads_total{load_type, outcome} (Counter): Loads by type and outcome (page, empty, error, invalid, cancelled)
//   - keypage_load_duration_seconds{load_type} (Histogram): Load duration by type
//   - keypage_items_loaded_total{load_type} (Counter): Items returned in pages by type
//
// Cache Metrics (pkg/cache):
//   - keypage_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - keypage_cache_misses_total (Counter): Cache misses
//   - keypage_cache_stored_bytes_total{layer="redis"} (Counter): Compressed bytes written
//   - keypage_cache_invalidations_total (Counter): Generation bumps
//   - keypage_304_responses_total (Counter): 304 Not Modified responses
//   - keypage_cache_errors_total{operation} (Counter): Cache operation errors
//
// Retry Metrics (pkg/pager):
//   - keypage_pager_retries_total{error_class} (Counter): Retry attempts by error class
//   - keypage_pager_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - keypage_pager_retry_exhausted_total{error_class} (Counter): Loads that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(keypage_cache_hits_total[5m])) /
//   (sum(rate(keypage_cache_hits_total[5m])) + sum(rate(keypage_cache_misses_total[5m])))
//
//   # Load Error Rate
//   sum(rate(keypage_loads_total{outcome="error"}[5m])) / sum(rate(keypage_loads_total[5m]))
//
//   # P95 Load Latency
//   histogram_quantile(0.95, rate(keypage_load_duration_seconds_bucket[5m]))
