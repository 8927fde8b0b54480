// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OptimizationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_requests_total",
			Help: "Total number of optimization requests by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	OptimizationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "optimizer_request_duration_seconds",
			Help: "Duration of optimization request processing in seconds",
		},
		[]string{"strategy"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_cache_lookups_total",
			Help: "Distributed and quick cache lookups by tier and result",
		},
		[]string{"tier", "result"},
	)

	BackgroundJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "optimizer_background_jobs_active",
			Help: "Number of background scoring jobs queued or running",
		},
	)

	AssetFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optimizer_asset_fetches_total",
			Help: "Static asset fetches by source (cdn or local)",
		},
		[]string{"source"},
	)
)
