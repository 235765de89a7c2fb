// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	CyclesTotal      *prometheus.CounterVec
	SnapshotsWritten prometheus.Counter
	BattlesDetected  prometheus.Counter
	CycleDuration    prometheus.Histogram

	// Feed metrics
	FeedErrors  *prometheus.CounterVec
	FeedLatency *prometheus.HistogramVec

	// Query metrics
	RankingRequests  *prometheus.CounterVec
	StoreQueryErrors *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "clanwatch"
	}

	return &Metrics{
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cycles_total",
			Help:      "Total number of ingestion cycles by decision reason",
		}, []string{"reason"}),
		SnapshotsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "snapshots_written_total",
			Help:      "Total number of clan snapshots written to the store",
		}),
		BattlesDetected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "battles_detected_total",
			Help:      "Total number of battle transitions detected",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "cycle_duration_seconds",
			Help:      "Duration of ingestion cycles in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		FeedErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "errors_total",
			Help:      "Total number of upstream feed errors by feed",
		}, []string{"feed"}),
		FeedLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "request_duration_seconds",
			Help:      "Upstream feed request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"feed"}),
		RankingRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "ranking_requests_total",
			Help:      "Total number of ranking requests by outcome",
		}, []string{"status"}),
		StoreQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "query",
			Name:      "store_errors_total",
			Help:      "Total number of snapshot store errors by operation",
		}, []string{"operation"}),
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last accepted ingestion cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCycle records one ingestion cycle with its decision reason.
func RecordCycle(reason string, durationSeconds float64) {
	DefaultMetrics.CyclesTotal.WithLabelValues(reason).Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
}

// RecordSnapshotsWritten adds to the written snapshot counter and stamps the
// health gauge.
func RecordSnapshotsWritten(n int, unixNow int64) {
	DefaultMetrics.SnapshotsWritten.Add(float64(n))
	DefaultMetrics.LastSuccessfulCycle.Set(float64(unixNow))
}

// RecordBattleDetected increments the battle transition counter.
func RecordBattleDetected() {
	DefaultMetrics.BattlesDetected.Inc()
}

// RecordFeedError records an upstream feed failure.
func RecordFeedError(feed string) {
	DefaultMetrics.FeedErrors.WithLabelValues(feed).Inc()
}

// RecordFeedLatency records upstream feed request latency.
func RecordFeedLatency(feed string, seconds float64) {
	DefaultMetrics.FeedLatency.WithLabelValues(feed).Observe(seconds)
}

// RecordRankingRequest records a ranking request outcome.
func RecordRankingRequest(status string) {
	DefaultMetrics.RankingRequests.WithLabelValues(status).Inc()
}

// RecordStoreError records a snapshot store failure.
func RecordStoreError(operation string) {
	DefaultMetrics.StoreQueryErrors.WithLabelValues(operation).Inc()
}
