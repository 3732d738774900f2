package engine

import (
	"fmt"
	"time"

	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
)

// Handle owns one engine instance. The raw instance pointer never leaves
// this package.
type Handle struct {
	caps   Capabilities
	inst   Ptr
	closed bool
}

// Create creates the engine instance. Failures are engine-init errors.
func Create(caps Capabilities) (*Handle, error) {
	if caps == nil {
		return nil, engineError(errors.NewStd("no engine capabilities available"), errors.CategoryEngineInit, "create_instance")
	}
	inst := caps.CreateInstance()
	if inst == 0 {
		return nil, engineError(errors.NewStd("failed to create engine instance"), errors.CategoryEngineInit, "create_instance")
	}
	GetLogger().Debug("engine instance created")
	return &Handle{caps: caps, inst: inst}, nil
}

// Capabilities returns the capability set the handle was created from.
func (h *Handle) Capabilities() Capabilities {
	return h.caps
}

// Close destroys the engine instance. Only the first call reaches the engine.
func (h *Handle) Close() error {
	if h == nil || h.closed {
		return nil
	}
	h.closed = true
	h.caps.DestroyInstance(h.inst)
	h.inst = 0
	GetLogger().Debug("engine instance destroyed")
	return nil
}

func (h *Handle) check(category errors.ErrorCategory, operation string) error {
	if h == nil || h.closed {
		return engineError(ErrClosed, category, operation)
	}
	return nil
}

// LoadReferenceData loads the voicebank's reference data (oto.ini).
func (h *Handle) LoadReferenceData(data []byte) error {
	const op = "load_reference_data"
	if err := h.check(errors.CategoryLibraryLoad, op); err != nil {
		return err
	}
	arg, err := allocBytes(h.caps, data, false)
	if err != nil {
		return engineError(err, errors.CategoryLibraryLoad, op)
	}
	defer arg.release()

	if !h.caps.LoadReferenceData(h.inst, arg.region) {
		return engineError(errors.NewStd("engine rejected reference data"), errors.CategoryLibraryLoad, op)
	}
	return nil
}

// LoadPrefixMap loads the voicebank's pitch prefix map.
func (h *Handle) LoadPrefixMap(data []byte) error {
	const op = "load_prefix_map"
	if err := h.check(errors.CategoryLibraryLoad, op); err != nil {
		return err
	}
	arg, err := allocBytes(h.caps, data, false)
	if err != nil {
		return engineError(err, errors.CategoryLibraryLoad, op)
	}
	defer arg.release()

	if !h.caps.LoadPrefixMap(h.inst, arg.region) {
		return engineError(errors.NewStd("engine rejected prefix map"), errors.CategoryLibraryLoad, op)
	}
	return nil
}

// CacheFeatures stores analyzed features for filename in the instance.
func (h *Handle) CacheFeatures(filename string, features []byte) error {
	const op = "cache_features"
	if err := h.check(errors.CategoryLibraryLoad, op); err != nil {
		return err
	}
	if filename == "" {
		return engineError(errors.NewStd("empty filename"), errors.CategoryLibraryLoad, op)
	}

	name, err := allocBytes(h.caps, []byte(filename), true)
	if err != nil {
		return engineError(err, errors.CategoryLibraryLoad, op)
	}
	defer name.release()

	data, err := allocBytes(h.caps, features, false)
	if err != nil {
		return engineError(err, errors.CategoryLibraryLoad, op)
	}
	defer data.release()

	if !h.caps.CacheFeatures(h.inst, name.region, data.region) {
		return errors.New(fmt.Errorf("engine rejected features for %s", filename)).
			Component("engine").
			Category(errors.CategoryLibraryLoad).
			Context("operation", op).
			Context("file", filename).
			Build()
	}
	return nil
}

// Synthesize renders req and returns the engine's WAV output.
func (h *Handle) Synthesize(req *Request) ([]byte, error) {
	const op = "synthesize_project"
	if err := h.check(errors.CategorySynthesis, op); err != nil {
		return nil, err
	}

	payload, err := MarshalRequest(req)
	if err != nil {
		return nil, engineError(fmt.Errorf("failed to serialize render request: %w", err), errors.CategorySynthesis, op)
	}

	arg, err := allocBytes(h.caps, payload, true)
	if err != nil {
		return nil, engineError(err, errors.CategorySynthesis, op)
	}
	defer arg.release()

	start := time.Now()
	wav, ok := takeResult(h.caps, h.caps.SynthesizeProject(h.inst, arg.region))
	if !ok || len(wav) == 0 {
		return nil, errors.New(errors.NewStd("synthesis did not return data")).
			Component("engine").
			Category(errors.CategorySynthesis).
			Timing(op, time.Since(start)).
			Context("notes", len(req.Notes)).
			Build()
	}

	GetLogger().Debug("synthesis returned",
		logger.Int("notes", len(req.Notes)),
		logger.Int("bytes", len(wav)),
		logger.Duration("elapsed", time.Since(start)))
	return wav, nil
}

// Analyze extracts features from WAV bytes. It needs no instance and is
// safe to call from any goroutine.
func Analyze(caps Capabilities, wav []byte) ([]byte, error) {
	const op = "analyze_waveform"
	if caps == nil {
		return nil, engineError(errors.NewStd("no engine capabilities available"), errors.CategoryEngineInit, op)
	}

	arg, err := allocBytes(caps, wav, false)
	if err != nil {
		return nil, engineError(err, errors.CategoryAnalysis, op)
	}
	defer arg.release()

	features, ok := takeResult(caps, caps.AnalyzeWaveform(arg.region))
	if !ok {
		return nil, engineError(errors.NewStd("analysis failed"), errors.CategoryAnalysis, op)
	}
	return features, nil
}
