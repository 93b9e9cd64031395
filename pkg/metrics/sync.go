package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records sync run outcomes along with source and destination traffic.
type SyncMetrics struct {
	runs          *prometheus.CounterVec
	runDuration   prometheus.Histogram
	rows          *prometheus.GaugeVec
	skipped       *prometheus.CounterVec
	preserved     prometheus.Gauge
	sourceCalls   *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec
	writerStates  *prometheus.CounterVec
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	m := &SyncMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Sync runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sync_run_duration_seconds",
			Help:    "Duration of sync runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		rows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sync_rows_written",
			Help: "Rows written to each view by the last sync run.",
		}, []string{"view"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_rows_skipped_total",
			Help: "Source line items skipped during sync, by reason.",
		}, []string{"reason"}),
		preserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sync_overrides_preserved",
			Help: "Orders whose override survived the last merge.",
		}),
		sourceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "source_requests_total",
			Help: "HTTP attempts against the commerce platform.",
		}, []string{"kind", "status"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "source_request_duration_seconds",
			Help:    "Latency of commerce platform requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		writerStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "destination_writer_transitions_total",
			Help: "Destination writer state transitions.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.runs, m.runDuration, m.rows, m.skipped, m.preserved, m.sourceCalls, m.sourceLatency, m.writerStates)
	return m
}

// ObserveRun records one finished run.
func (m *SyncMetrics) ObserveRun(outcome string, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.runDuration.Observe(duration.Seconds())
}

// SetRowsWritten records how many rows the last run wrote to view.
func (m *SyncMetrics) SetRowsWritten(view string, rows int) {
	if m == nil || m.rows == nil {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(view)).Set(float64(rows))
}

// AddSkipped counts skipped line items for reason.
func (m *SyncMetrics) AddSkipped(reason string, n int) {
	if m == nil || m.skipped == nil || n <= 0 {
		return
	}
	m.skipped.WithLabelValues(normalizeLabel(reason)).Add(float64(n))
}

// SetPreserved records the preserved override count of the last run.
func (m *SyncMetrics) SetPreserved(n int) {
	if m == nil || m.preserved == nil {
		return
	}
	m.preserved.Set(float64(n))
}

// ObserveSourceRequest records one HTTP attempt against the source.
func (m *SyncMetrics) ObserveSourceRequest(kind string, status int, duration time.Duration) {
	if m == nil || m.sourceCalls == nil {
		return
	}
	code := "error"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.sourceCalls.WithLabelValues(normalizeLabel(kind), code).Inc()
	m.sourceLatency.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

// ObserveWriterState counts a destination writer transition.
func (m *SyncMetrics) ObserveWriterState(state string) {
	if m == nil || m.writerStates == nil {
		return
	}
	m.writerStates.WithLabelValues(normalizeLabel(state)).Inc()
}
