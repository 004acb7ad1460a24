package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OpsAppliedTotal counts successfully applied operations by kind
	// ("move", "set_property", "modify_property").
	OpsAppliedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reptree_ops_applied_total",
			Help: "Total number of operations applied, by kind",
		},
		[]string{"kind"},
	)

	// OpsRejectedTotal counts operations that failed to apply, by error kind.
	OpsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reptree_ops_rejected_total",
			Help: "Total number of operations rejected, by error kind",
		},
		[]string{"error_kind"},
	)

	// OpsSkippedDuringSyncTotal counts log records skipped during
	// GetMissingOps because they failed to deserialize.
	OpsSkippedDuringSyncTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reptree_ops_skipped_during_sync_total",
			Help: "Total number of log records skipped during a sync scan due to deserialization errors",
		},
	)

	// LamportClock reports the replica's current logical clock value.
	LamportClock = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reptree_lamport_clock",
			Help: "Current value of the replica's Lamport clock",
		},
	)

	// VertexCacheSize reports the number of vertices currently cached.
	VertexCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reptree_vertex_cache_size",
			Help: "Number of vertices currently held in the in-memory cache",
		},
	)

	// VertexCacheHitsTotal and VertexCacheMissesTotal track cache
	// effectiveness for GetVertex lookups.
	VertexCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reptree_vertex_cache_hits_total",
			Help: "Total number of vertex cache hits",
		},
	)
	VertexCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reptree_vertex_cache_misses_total",
			Help: "Total number of vertex cache misses",
		},
	)

	// ApplyOpDuration times a single ApplyOp call, by kind.
	ApplyOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reptree_apply_op_duration_seconds",
			Help:    "Time taken to apply a single operation, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// SyncDuration times a GetMissingOps call.
	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reptree_sync_duration_seconds",
			Help:    "Time taken to compute a sync delta in GetMissingOps",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		OpsAppliedTotal,
		OpsRejectedTotal,
		OpsSkippedDuringSyncTotal,
		LamportClock,
		VertexCacheSize,
		VertexCacheHitsTotal,
		VertexCacheMissesTotal,
		ApplyOpDuration,
		SyncDuration,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
