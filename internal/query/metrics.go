package query

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Eviction reasons used as metric labels.
const (
	evictReasonExpired  = "expired"
	evictReasonExplicit = "explicit"
	evictReasonCleared  = "cleared"
)

// Fetch results used as metric labels.
const (
	fetchResultSuccess = "success"
	fetchResultError   = "error"
	fetchResultDiscard = "discarded"
)

// Metrics holds Prometheus metrics for the query client.
type Metrics struct {
	hitsTotal          *prometheus.CounterVec
	staleHitsTotal     *prometheus.CounterVec
	missesTotal        *prometheus.CounterVec
	fetchesTotal       *prometheus.CounterVec
	sharedFetchesTotal *prometheus.CounterVec
	invalidationsTotal *prometheus.CounterVec
	evictionsTotal     *prometheus.CounterVec
	entries            prometheus.Gauge
	fetchDuration      *prometheus.HistogramVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton query metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

// MustRegister registers the query collectors with registry. promauto
// places them on the default registry; the service serves /metrics from
// its own one.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(
		m.hitsTotal,
		m.staleHitsTotal,
		m.missesTotal,
		m.fetchesTotal,
		m.sharedFetchesTotal,
		m.invalidationsTotal,
		m.evictionsTotal,
		m.entries,
		m.fetchDuration,
	)
}

// Init pre-initializes label combinations for the given tags so that the
// series appear before the first read.
func (m *Metrics) Init(tags ...string) {
	for _, tag := range tags {
		m.hitsTotal.WithLabelValues(tag)
		m.staleHitsTotal.WithLabelValues(tag)
		m.missesTotal.WithLabelValues(tag)
		m.sharedFetchesTotal.WithLabelValues(tag)
		m.invalidationsTotal.WithLabelValues(tag)
		m.fetchDuration.WithLabelValues(tag)
		for _, result := range []string{fetchResultSuccess, fetchResultError, fetchResultDiscard} {
			m.fetchesTotal.WithLabelValues(tag, result)
		}
	}
	for _, reason := range []string{evictReasonExpired, evictReasonExplicit, evictReasonCleared} {
		m.evictionsTotal.WithLabelValues(reason)
	}
}

func newMetrics() *Metrics {
	return &Metrics{
		hitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "hits_total",
				Help:      "Total number of reads served from a fresh entry",
			},
			[]string{"tag"},
		),
		staleHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "stale_hits_total",
				Help:      "Total number of reads served from a stale entry while revalidating",
			},
			[]string{"tag"},
		),
		missesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "misses_total",
				Help:      "Total number of reads that waited on a fetch",
			},
			[]string{"tag"},
		),
		fetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "fetches_total",
				Help:      "Total number of fetch transport calls by result",
			},
			[]string{"tag", "result"},
		),
		sharedFetchesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "shared_fetches_total",
				Help:      "Total number of reads that joined a fetch already in flight",
			},
			[]string{"tag"},
		),
		invalidationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "invalidations_total",
				Help:      "Total number of tag invalidations",
			},
			[]string{"tag"},
		),
		evictionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "evictions_total",
				Help:      "Total number of evicted entries by reason",
			},
			[]string{"reason"},
		),
		entries: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "entries",
				Help:      "Current number of cached entries",
			},
		),
		fetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "resourcesync",
				Subsystem: "query",
				Name:      "fetch_duration_seconds",
				Help:      "Duration of fetch transport calls including retries",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"tag"},
		),
	}
}
