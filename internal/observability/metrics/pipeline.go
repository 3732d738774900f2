package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics contains metrics for the engine call queue.
// A nil *PipelineMetrics is valid and records nothing.
type PipelineMetrics struct {
	CallsTotal   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	QueueDepth   prometheus.Gauge
	LibraryReady prometheus.Gauge
}

// NewPipelineMetrics creates and registers the pipeline metrics.
func NewPipelineMetrics(registry prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		CallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsynth_engine_calls_total",
				Help: "Total number of engine calls partitioned by operation and outcome.",
			},
			[]string{"operation", "status"},
		),
		CallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wsynth_engine_call_duration_seconds",
				Help:    "Time taken by engine calls.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
			},
			[]string{"operation"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wsynth_engine_queue_depth",
				Help: "Engine calls waiting for the handle.",
			},
		),
		LibraryReady: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wsynth_library_loaded",
				Help: "Whether reference data is loaded into the engine (1) or not (0).",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

// Enqueued increments the queue depth.
func (m *PipelineMetrics) Enqueued() {
	if m == nil {
		return
	}
	m.QueueDepth.Inc()
}

// RecordCall records one engine call taken off the queue.
func (m *PipelineMetrics) RecordCall(operation string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.QueueDepth.Dec()
	m.CallsTotal.WithLabelValues(operation, statusLabel(err)).Inc()
	m.CallDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetLibraryLoaded records whether a library is loaded.
func (m *PipelineMetrics) SetLibraryLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.LibraryReady.Set(1)
	} else {
		m.LibraryReady.Set(0)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.CallsTotal.Describe(ch)
	m.CallDuration.Describe(ch)
	ch <- m.QueueDepth.Desc()
	ch <- m.LibraryReady.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	m.CallsTotal.Collect(ch)
	m.CallDuration.Collect(ch)
	ch <- m.QueueDepth
	ch <- m.LibraryReady
}
