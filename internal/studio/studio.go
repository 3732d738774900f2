// Package studio ties the engine pipeline, the analysis scheduler and the
// playback clock to the application state. Every user operation goes
// through a Studio, and every error it meets ends up in the status message.
package studio

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/cpuspec"
	"github.com/tphakala/wsynth-go/internal/engine"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/observability"
	"github.com/tphakala/wsynth-go/internal/observability/metrics"
	"github.com/tphakala/wsynth-go/internal/pipeline"
	"github.com/tphakala/wsynth-go/internal/playback"
	"github.com/tphakala/wsynth-go/internal/state"
	"github.com/tphakala/wsynth-go/internal/voicebank"
)

var (
	// ErrNotInitialized is returned by operations that need the engine
	// before Initialize has succeeded.
	ErrNotInitialized = errors.NewStd("engine was not initialized")
	// ErrNoOutput is returned by transport operations when no audio output
	// was configured.
	ErrNoOutput = errors.NewStd("no audio output configured")
)

// Studio is the application core.
type Studio struct {
	settings *conf.Settings
	store    *state.Store
	caps     engine.Capabilities
	clock    *playback.Clock
	metrics  *observability.Metrics
	features *featureCache
	cores    int

	initMu sync.Mutex
	// loadMu serializes LoadVoicebank calls.
	loadMu sync.Mutex

	mu        sync.Mutex
	pipe      *pipeline.Pipeline
	vb        *voicebank.Voicebank
	startMode playback.StartMode
	closed    bool
}

type options struct {
	caps    engine.Capabilities
	out     playback.Output
	metrics *observability.Metrics
	cores   int
}

// Option configures a Studio.
type Option func(*options)

// WithCapabilities uses caps instead of the linked engine library.
func WithCapabilities(caps engine.Capabilities) Option {
	return func(o *options) { o.caps = caps }
}

// WithOutput plays audio through out. Without an output the transport
// operations return ErrNoOutput.
func WithOutput(out playback.Output) Option {
	return func(o *options) { o.out = out }
}

// WithMetrics records metrics for every component.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithAvailableCores overrides the detected core count used to size the
// analysis pool.
func WithAvailableCores(n int) Option {
	return func(o *options) { o.cores = n }
}

// New creates a studio. The engine is not touched until Initialize.
func New(settings *conf.Settings, opts ...Option) (*Studio, error) {
	if settings == nil {
		settings = conf.GetSettings()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	mode, err := playback.ParseStartMode(settings.PianoRoll.PlaybackStartMode)
	if err != nil {
		return nil, err
	}
	if o.cores <= 0 {
		o.cores = cpuspec.AvailableCores()
	}

	initial := state.Initial()
	if settings.Project.Tempo > 0 {
		initial.Tempo = settings.Project.Tempo
	}
	if settings.Project.GridDivision > 0 {
		initial.GridDivision = settings.Project.GridDivision
	}

	s := &Studio{
		settings:  settings,
		store:     state.NewStore(initial),
		caps:      o.caps,
		metrics:   o.metrics,
		cores:     o.cores,
		startMode: mode,
	}
	if settings.Analysis.FeatureCache.Enabled {
		s.features = newFeatureCache(settings.Analysis.FeatureCache.TTL)
	}
	if o.out != nil {
		s.clock = playback.NewClock(o.out,
			playback.WithPositionInterval(settings.Playback.PositionInterval),
			playback.WithUpdates(s.onPlayback),
			playback.WithMetrics(s.playbackMetrics()),
			playback.WithRestartOnEnd(mode.RestartOnEnd()))
	}
	return s, nil
}

// Initialize creates the engine instance and starts the pipeline. It can be
// retried after a failure and does nothing once it has succeeded.
func (s *Studio) Initialize() error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	closed, running := s.closed, s.pipe != nil
	s.mu.Unlock()
	if closed {
		return errClosed()
	}
	if running {
		return nil
	}
	s.setStatus("Initializing engine...")

	caps := s.caps
	if caps == nil {
		var err error
		caps, err = engine.NativeCapabilities()
		if err != nil {
			s.fail("engine initialization failed", err)
			return err
		}
	}

	handle, err := engine.Create(caps)
	if err != nil {
		s.fail("engine initialization failed", err)
		return err
	}
	pipe := pipeline.New(handle,
		pipeline.WithProgress(s.onProgress),
		pipeline.WithMetrics(s.pipelineMetrics()))

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = pipe.Close()
		return errClosed()
	}
	s.caps = caps
	s.pipe = pipe
	s.mu.Unlock()

	GetLogger().Info("engine initialized", logger.Int("available_cores", s.cores))
	s.setStatus("Engine ready. Please select a voicebank.")
	return nil
}

func errClosed() error {
	return errors.New(errors.NewStd("studio is closed")).
		Component("studio").
		Category(errors.CategoryState).
		Build()
}

// Close stops playback and releases the engine instance.
func (s *Studio) Close() error {
	s.mu.Lock()
	pipe := s.pipe
	s.pipe = nil
	s.closed = true
	s.mu.Unlock()

	if s.clock != nil {
		s.clock.Close()
	}
	if s.features != nil {
		s.features.flush()
	}
	if pipe == nil {
		return nil
	}
	return pipe.Close()
}

// Store returns the application state store.
func (s *Studio) Store() *state.Store {
	return s.store
}

// Snapshot returns the current application state.
func (s *Studio) Snapshot() *state.Snapshot {
	return s.store.Snapshot()
}

// Update applies editor transitions, such as note edits, to the state.
func (s *Studio) Update(transitions ...state.Transition) *state.Snapshot {
	return s.store.Update(transitions...)
}

// NewNote returns a note carrying the configured default lyric.
func (s *Studio) NewNote(midiPitch int, startBeat, durationBeat float64) state.Note {
	return state.NewNote(s.settings.PianoRoll.DefaultLyric, midiPitch, startBeat, durationBeat)
}

// Voicebank returns the current voicebank, or nil.
func (s *Studio) Voicebank() *voicebank.Voicebank {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vb
}

// StartMode returns the playback start mode.
func (s *Studio) StartMode() playback.StartMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startMode
}

// SetStartMode changes the playback start mode and the restart-on-end
// policy that goes with it.
func (s *Studio) SetStartMode(mode playback.StartMode) error {
	if _, err := playback.ParseStartMode(string(mode)); err != nil {
		return err
	}
	s.mu.Lock()
	s.startMode = mode
	s.mu.Unlock()
	GetLogger().Debug("playback start mode changed", logger.String("mode", string(mode)))
	if s.clock != nil {
		s.clock.SetRestartOnEnd(mode.RestartOnEnd())
	}
	return nil
}

// pipeline returns the running pipeline or a status-reported error.
func (s *Studio) pipeline() (*pipeline.Pipeline, error) {
	s.mu.Lock()
	pipe := s.pipe
	s.mu.Unlock()
	if pipe == nil {
		s.setStatus("Error: Engine was not initialized.")
		return nil, errors.New(ErrNotInitialized).
			Component("studio").
			Category(errors.CategoryState).
			Build()
	}
	return pipe, nil
}

// onProgress mirrors pipeline milestones into the state. It runs on the
// pipeline goroutine.
func (s *Studio) onProgress(pr pipeline.Progress) {
	switch pr.Milestone {
	case state.MilestoneLoadStarted, state.MilestoneSynthesisStarted:
		s.store.Update(state.SetSynthesis(true, pr.Milestone, pr.Message))
	case state.MilestoneFileCached, state.MilestoneLoadComplete:
		s.store.Update(state.SetSynthesis(false, pr.Milestone, pr.Message))
	case state.MilestoneSynthesisComplete:
		s.store.Update(
			state.SetRenderedBuffer(pr.Buffer),
			state.SetSynthesis(false, pr.Milestone, pr.Message),
			state.SetStatus("Composition is ready for playback."))
	case state.MilestoneLoadFailed, state.MilestoneSynthesisFailed:
		msg := "Error: " + pr.Message
		s.store.Update(state.SetSynthesis(false, pr.Milestone, msg), state.SetStatus(msg))
	}
}

// onPlayback mirrors clock updates into the state. It runs with the clock
// locked.
func (s *Studio) onPlayback(st playback.Status) {
	s.store.Update(state.SetPlayback(st.State == playback.Playing, st.PositionMs))
}

func (s *Studio) setStatus(msg string) {
	s.store.Update(state.SetStatus(msg))
}

// fail logs err and makes it the status message.
func (s *Studio) fail(action string, err error) {
	s.failContext(context.Background(), action, err)
}

// failContext is fail for operations running under a traced context.
func (s *Studio) failContext(ctx context.Context, action string, err error) {
	GetLogger().WithContext(ctx).Error(action,
		logger.String("category", string(errors.CategoryOf(err))),
		logger.Error(err))
	s.setStatus(fmt.Sprintf("Error: %s: %v", action, err))
}

func (s *Studio) analysisMetrics() *metrics.AnalysisMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Analysis
}

func (s *Studio) pipelineMetrics() *metrics.PipelineMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Pipeline
}

func (s *Studio) playbackMetrics() *metrics.PlaybackMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.Playback
}

// traced tags ctx with a fresh trace ID, so the log lines one operation
// produces across the studio, pipeline and scheduler share it.
func traced(ctx context.Context) (context.Context, logger.Logger) {
	ctx = logger.WithTraceID(ctx, uuid.NewString())
	return ctx, GetLogger().WithContext(ctx)
}

// GetLogger returns the studio package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("studio")
}
