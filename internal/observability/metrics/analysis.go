// Package metrics provides custom Prometheus metrics for wsynth.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalysisMetrics contains Prometheus metrics for the waveform analysis pool.
// A nil *AnalysisMetrics is valid and records nothing.
type AnalysisMetrics struct {
	JobsTotal     *prometheus.CounterVec
	JobDuration   prometheus.Histogram
	InFlight      prometheus.Gauge
	BatchesTotal  *prometheus.CounterVec
	BatchDuration prometheus.Histogram
	PoolSize      prometheus.Gauge
}

// NewAnalysisMetrics creates and registers the analysis metrics.
func NewAnalysisMetrics(registry prometheus.Registerer) (*AnalysisMetrics, error) {
	m := &AnalysisMetrics{
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsynth_analysis_jobs_total",
				Help: "Total number of analysis jobs partitioned by outcome.",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wsynth_analysis_job_duration_seconds",
				Help:    "Time taken to analyze one waveform file.",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
		),
		InFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wsynth_analysis_jobs_in_flight",
				Help: "Number of analysis jobs currently running.",
			},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsynth_analysis_batches_total",
				Help: "Total number of analysis batches partitioned by outcome.",
			},
			[]string{"status"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wsynth_analysis_batch_duration_seconds",
				Help:    "Time taken to analyze a whole voicebank.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		PoolSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wsynth_analysis_pool_size",
				Help: "Worker count of the most recent analysis batch.",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register analysis metrics: %w", err)
	}
	return m, nil
}

// JobStarted marks one job as in flight.
func (m *AnalysisMetrics) JobStarted() {
	if m == nil {
		return
	}
	m.InFlight.Inc()
}

// JobFinished records the outcome of one job.
func (m *AnalysisMetrics) JobFinished(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.InFlight.Dec()
	m.JobsTotal.WithLabelValues(statusLabel(err)).Inc()
	m.JobDuration.Observe(d.Seconds())
}

// BatchFinished records a completed or aborted batch.
func (m *AnalysisMetrics) BatchFinished(workers int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.PoolSize.Set(float64(workers))
	m.BatchesTotal.WithLabelValues(statusLabel(err)).Inc()
	m.BatchDuration.Observe(d.Seconds())
}

// Describe implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.JobsTotal.Describe(ch)
	ch <- m.JobDuration.Desc()
	ch <- m.InFlight.Desc()
	m.BatchesTotal.Describe(ch)
	ch <- m.BatchDuration.Desc()
	ch <- m.PoolSize.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *AnalysisMetrics) Collect(ch chan<- prometheus.Metric) {
	m.JobsTotal.Collect(ch)
	ch <- m.JobDuration
	ch <- m.InFlight
	m.BatchesTotal.Collect(ch)
	ch <- m.BatchDuration
	ch <- m.PoolSize
}
