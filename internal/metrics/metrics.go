package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CycleDuration tracks how long aggregation cycles take.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "faststreams_cycle_duration_seconds",
		Help:    "Duration of aggregation cycles",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	// ProviderChannels tracks channels contributed per provider in the last cycle.
	ProviderChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "faststreams_provider_channels",
		Help: "Channels contributed by each provider in the last cycle",
	}, []string{"provider"})

	// ProviderFailures counts provider fetch failures by kind.
	ProviderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faststreams_provider_failures_total",
		Help: "Total provider fetch failures",
	}, []string{"provider", "kind"})

	// ProviderDuration tracks per-provider fetch durations.
	ProviderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "faststreams_provider_fetch_seconds",
		Help:    "Duration of per-provider channel fetches",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	}, []string{"provider"})

	// EPGCoverage is the fraction of channels with resolved guide data.
	EPGCoverage = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faststreams_epg_coverage_ratio",
		Help: "Fraction of channels with resolved guide data",
	})

	// CacheAge is the age of the served aggregation result.
	CacheAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "faststreams_cache_age_seconds",
		Help: "Age of the cached aggregation result",
	})

	// Refreshes counts cache refreshes by trigger.
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "faststreams_refreshes_total",
		Help: "Total cache refreshes",
	}, []string{"trigger"})
)

// ObserveCycle records one completed aggregation cycle.
func ObserveCycle(elapsed time.Duration) {
	CycleDuration.Observe(elapsed.Seconds())
}

// RecordProvider records one provider's outcome for the last cycle.
func RecordProvider(provider string, channels int, elapsed time.Duration, failKind string) {
	ProviderChannels.WithLabelValues(provider).Set(float64(channels))
	ProviderDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
	if failKind != "" {
		ProviderFailures.WithLabelValues(provider, failKind).Inc()
	}
}

// SetCoverage records the guide coverage of the last cycle.
func SetCoverage(matched, total int) {
	if total == 0 {
		EPGCoverage.Set(0)
		return
	}
	EPGCoverage.Set(float64(matched) / float64(total))
}
