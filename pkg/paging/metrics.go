package paging

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for load dispatch.
var (
	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keypage_loads_total",
		Help: "Total loads by load type and outcome",
	}, []string{"load_type", "outcome"}) // outcome: "page", "empty", "error", "invalid", "cancelled"

	loadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "keypage_load_duration_seconds",
		Help:    "Load duration in seconds by load type",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"load_type"})

	itemsLoadedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "keypage_items_loaded_total",
		Help: "Total items returned in pages by load type",
	}, []string{"load_type"})
)
