// Package observability provides Prometheus metrics for wsynth.
package observability

import (
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tphakala/wsynth-go/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Analysis *metrics.AnalysisMetrics
	Pipeline *metrics.PipelineMetrics
	Playback *metrics.PlaybackMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	analysisMetrics, err := metrics.NewAnalysisMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis metrics: %w", err)
	}

	pipelineMetrics, err := metrics.NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	playbackMetrics, err := metrics.NewPlaybackMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create playback metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Analysis: analysisMetrics,
		Pipeline: pipelineMetrics,
		Playback: playbackMetrics,
	}, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterHandlers registers the metrics endpoint with the provided http.ServeMux.
func (m *Metrics) RegisterHandlers(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      log.New(os.Stderr, "metrics handler: ", log.LstdFlags),
		ErrorHandling: promhttp.HTTPErrorOnError,
	}))
}
