package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "snapshotter"

	// Status label values for creator run outcomes
	StatusSuccess = "success"
	StatusError   = "error"
	StatusNoop    = "noop"
)

// Labels holds constant labels applied to all metrics.
// Useful for distinguishing metrics from multiple snapshotter instances.
type Labels struct {
	ChainID     uint64 // rollup chain ID
	Environment string // deployment environment (e.g., "production", "staging")
	Region      string // cloud region (e.g., "us-east-1")
}

// toPrometheusLabels converts Labels to prometheus.Labels map.
// Only non-empty labels are included to avoid empty label values.
func (l Labels) toPrometheusLabels() prometheus.Labels {
	labels := prometheus.Labels{}
	if l.ChainID != 0 {
		labels["chain_id"] = strconv.FormatUint(l.ChainID, 10)
	}
	if l.Environment != "" {
		labels["environment"] = l.Environment
	}
	if l.Region != "" {
		labels["region"] = l.Region
	}
	return labels
}

type Metrics struct {
	// Creator run outcomes
	runs        *prometheus.CounterVec
	runDuration prometheus.Histogram

	// Chunk production
	chunksWritten      prometheus.Counter
	chunkWriteRetries  prometheus.Counter
	chunkWriteDuration prometheus.Histogram
	entriesSnapshotted prometheus.Counter

	// Latest committed snapshot
	lastSnapshotL1Batch prometheus.Gauge

	// Retrieval API
	apiRequests        *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec
}

// New creates a new Metrics instance and registers all metrics with the provided registerer.
// Returns an error if any metric registration fails.
// For metrics with constant labels (e.g., chain_id), use NewWithLabels instead.
func New(reg prometheus.Registerer) (*Metrics, error) {
	return NewWithLabels(reg, Labels{})
}

// NewWithLabels creates a new Metrics instance with constant labels applied to all metrics.
func NewWithLabels(reg prometheus.Registerer, labels Labels) (*Metrics, error) {
	promLabels := labels.toPrometheusLabels()
	if len(promLabels) > 0 {
		reg = prometheus.WrapRegistererWith(promLabels, reg)
	}
	return newMetrics(reg)
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "creator_runs_total",
			Help:      "Snapshot creator runs by outcome (success, error, noop)",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "creator_run_duration_seconds",
			Help:      "Wall-clock duration of snapshot creator runs",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_written_total",
			Help:      "Chunk files durably written to the object store",
		}),
		chunkWriteRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunk_write_retries_total",
			Help:      "Chunk write attempts that failed and were retried",
		}),
		chunkWriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "chunk_write_duration_seconds",
			Help:      "Duration of individual chunk read-encode-write cycles",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		entriesSnapshotted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "entries_snapshotted_total",
			Help:      "Storage log entries written into chunk files",
		}),
		lastSnapshotL1Batch: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_snapshot_l1_batch",
			Help:      "L1 batch number of the most recently committed snapshot",
		}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "api_requests_total",
			Help:      "Retrieval API requests by route and status code",
		}, []string{"route", "status"}),
		apiRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Retrieval API request duration by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	collectors := []prometheus.Collector{
		m.runs,
		m.runDuration,
		m.chunksWritten,
		m.chunkWriteRetries,
		m.chunkWriteDuration,
		m.entriesSnapshotted,
		m.lastSnapshotL1Batch,
		m.apiRequests,
		m.apiRequestDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}
	return m, nil
}

// RecordRun records one creator run outcome and its duration.
func (m *Metrics) RecordRun(status string, seconds float64) {
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(seconds)
}

// RecordChunkWrite records one durably written chunk and its production time.
func (m *Metrics) RecordChunkWrite(seconds float64) {
	m.chunksWritten.Inc()
	m.chunkWriteDuration.Observe(seconds)
}

// IncChunkWriteRetry counts a failed chunk write attempt that will be retried.
func (m *Metrics) IncChunkWriteRetry() {
	m.chunkWriteRetries.Inc()
}

// AddEntriesSnapshotted counts entries written into chunk files.
func (m *Metrics) AddEntriesSnapshotted(n uint64) {
	m.entriesSnapshotted.Add(float64(n))
}

// SetLastSnapshotL1Batch records the newest committed snapshot's batch number.
func (m *Metrics) SetLastSnapshotL1Batch(n uint64) {
	m.lastSnapshotL1Batch.Set(float64(n))
}

// RecordAPIRequest records one retrieval API request.
func (m *Metrics) RecordAPIRequest(route string, statusCode int, seconds float64) {
	m.apiRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	m.apiRequestDuration.WithLabelValues(route).Observe(seconds)
}
