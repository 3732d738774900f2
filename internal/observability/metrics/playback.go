package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// PlaybackMetrics contains transport metrics.
// A nil *PlaybackMetrics is valid and records nothing.
type PlaybackMetrics struct {
	TransitionsTotal *prometheus.CounterVec
	Playing          prometheus.Gauge
	StaleEndedEvents prometheus.Counter
}

// NewPlaybackMetrics creates and registers the playback metrics.
func NewPlaybackMetrics(registry prometheus.Registerer) (*PlaybackMetrics, error) {
	m := &PlaybackMetrics{
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wsynth_playback_transitions_total",
				Help: "Transport operations partitioned by kind (play, seek, stop, ended).",
			},
			[]string{"kind"},
		),
		Playing: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wsynth_playback_playing",
				Help: "Whether the transport is playing (1) or stopped (0).",
			},
		),
		StaleEndedEvents: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "wsynth_playback_stale_ended_events_total",
				Help: "End-of-buffer events ignored because their output node was already replaced.",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register playback metrics: %w", err)
	}
	return m, nil
}

// RecordTransition counts a transport operation and updates the playing gauge.
func (m *PlaybackMetrics) RecordTransition(kind string, playing bool) {
	if m == nil {
		return
	}
	m.TransitionsTotal.WithLabelValues(kind).Inc()
	if playing {
		m.Playing.Set(1)
	} else {
		m.Playing.Set(0)
	}
}

// RecordStaleEnded counts an ignored end-of-buffer event.
func (m *PlaybackMetrics) RecordStaleEnded() {
	if m == nil {
		return
	}
	m.StaleEndedEvents.Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *PlaybackMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.TransitionsTotal.Describe(ch)
	ch <- m.Playing.Desc()
	ch <- m.StaleEndedEvents.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *PlaybackMetrics) Collect(ch chan<- prometheus.Metric) {
	m.TransitionsTotal.Collect(ch)
	ch <- m.Playing
	ch <- m.StaleEndedEvents
}
