package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// poller and the record store.
type Metrics struct {
	PollsTotal    *prometheus.CounterVec // labels: outcome={success,fetch_error,store_error}
	RecordsStored prometheus.Counter
	PollerRunning prometheus.Gauge

	// Storage backend metrics.
	StoreRetries   prometheus.Counter
	FallbackActive prometheus.Gauge
	FallbackWrites prometheus.Counter
	Promotions     prometheus.Counter
	QueryDuration  *prometheus.HistogramVec // labels: op={latest,range}

	// Snapshot publishing metrics.
	SnapshotsPublished prometheus.Counter
	PublishErrors      prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "floodcounts",
			Name:      "polls_total",
			Help:      "Feed polls by outcome.",
		}, []string{"outcome"}),
		RecordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodcounts",
			Name:      "records_stored_total",
			Help:      "Count records written through the store.",
		}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodcounts",
			Name:      "poller_running",
			Help:      "1 while the poll loop is active, 0 after shutdown.",
		}),
		StoreRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodcounts",
			Name:      "store_retries_total",
			Help:      "Backend operations retried after a transient failure.",
		}),
		FallbackActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "floodcounts",
			Name:      "fallback_active",
			Help:      "1 while the local fallback backend is serving, 0 on the primary.",
		}),
		FallbackWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodcounts",
			Name:      "fallback_writes_total",
			Help:      "Partition writes that landed on the fallback backend.",
		}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodcounts",
			Name:      "promotions_total",
			Help:      "Recoveries that promoted the primary backend back into service.",
		}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "floodcounts",
			Name:      "query_duration_seconds",
			Help:      "Duration of store read operations.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodcounts",
			Name:      "snapshots_published_total",
			Help:      "Count records mirrored to the snapshot topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "floodcounts",
			Name:      "publish_errors_total",
			Help:      "Failed snapshot publishes.",
		}),
	}

	prometheus.MustRegister(
		m.PollsTotal,
		m.RecordsStored,
		m.PollerRunning,
		m.StoreRetries,
		m.FallbackActive,
		m.FallbackWrites,
		m.Promotions,
		m.QueryDuration,
		m.SnapshotsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PollsTotal:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "floodcounts", Name: "polls_total"}, []string{"outcome"}),
		RecordsStored:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "floodcounts", Name: "records_stored_total"}),
		PollerRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "floodcounts", Name: "poller_running"}),
		StoreRetries:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "floodcounts", Name: "store_retries_total"}),
		FallbackActive:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "floodcounts", Name: "fallback_active"}),
		FallbackWrites:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "floodcounts", Name: "fallback_writes_total"}),
		Promotions:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "floodcounts", Name: "promotions_total"}),
		QueryDuration:      prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "floodcounts", Name: "query_duration_seconds"}, []string{"op"}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "floodcounts", Name: "snapshots_published_total"}),
		PublishErrors:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "floodcounts", Name: "publish_errors_total"}),
	}
}
