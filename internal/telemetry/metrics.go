package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RefreshRequests counts refresh triggers by decision (accepted, rejected)
	RefreshRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnfleet",
			Name:      "refresh_requests_total",
			Help:      "Total number of feed refresh requests",
		},
		[]string{"decision"},
	)

	// RefreshJobs counts completed refresh jobs by outcome
	RefreshJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnfleet",
			Name:      "refresh_jobs_total",
			Help:      "Total number of completed feed refresh jobs",
		},
		[]string{"outcome"},
	)

	// RefreshDuration observes how long refresh jobs take
	RefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "vulnfleet",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of feed refresh jobs",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	// StoreGeneration tracks the current vulnerability store generation
	StoreGeneration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vulnfleet",
			Name:      "store_generation",
			Help:      "Current generation of the vulnerability store",
		},
	)

	// StoreRecords tracks how many records the store holds
	StoreRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vulnfleet",
			Name:      "store_records",
			Help:      "Number of vulnerability records in the store",
		},
	)

	// CacheLookups counts correlation cache lookups by result (hit, miss, stale)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnfleet",
			Name:      "correlation_cache_lookups_total",
			Help:      "Total number of correlation cache lookups",
		},
		[]string{"result"},
	)

	// UpstreamRequests counts upstream feed requests by status class
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vulnfleet",
			Name:      "upstream_requests_total",
			Help:      "Total number of requests sent to the upstream vulnerability feed",
		},
		[]string{"status"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// It is idempotent.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(RefreshRequests)
		prometheus.DefaultRegisterer.Register(RefreshJobs)
		prometheus.DefaultRegisterer.Register(RefreshDuration)
		prometheus.DefaultRegisterer.Register(StoreGeneration)
		prometheus.DefaultRegisterer.Register(StoreRecords)
		prometheus.DefaultRegisterer.Register(CacheLookups)
		prometheus.DefaultRegisterer.Register(UpstreamRequests)
	})
}
