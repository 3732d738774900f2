package studio

import (
	"context"
	"fmt"
	"io"

	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/pipeline"
	"github.com/tphakala/wsynth-go/internal/playback"
	"github.com/tphakala/wsynth-go/internal/project"
	"github.com/tphakala/wsynth-go/internal/state"
)

// StartSynthesis renders the current notes with the current voicebank. It
// stops playback first and stores the rendered buffer in the state.
func (s *Studio) StartSynthesis(ctx context.Context) (*audiofile.Buffer, error) {
	pipe, err := s.pipeline()
	if err != nil {
		return nil, err
	}

	snap := s.store.Snapshot()
	if snap.Voicebank == nil || len(snap.Notes) == 0 {
		s.setStatus("No data to synthesize: load a voicebank and add notes.")
		return nil, errors.New(errors.NewStd("nothing to synthesize")).
			Component("studio").
			Category(errors.CategoryValidation).
			Context("voicebank_loaded", snap.Voicebank != nil).
			Context("notes", len(snap.Notes)).
			Build()
	}

	if s.clock != nil {
		s.clock.Stop()
	}
	s.store.Update(state.SetSynthesis(true, state.MilestoneIdle, "Sending data for synthesis..."))

	ctx, log := traced(ctx)
	log.Debug("synthesis requested",
		logger.Int("notes", len(snap.Notes)),
		logger.Float64("tempo", snap.Tempo))
	buf, err := pipe.RunSynthesis(ctx, pipeline.BuildRequest(snap.Notes, snap.Tempo))
	if err != nil {
		s.store.Update(state.SetSynthesis(false, state.MilestoneSynthesisFailed, "Error: "+err.Error()))
		s.failContext(ctx, "synthesis failed", err)
		return nil, err
	}
	return buf, nil
}

// TogglePlayback stops playback when playing. Otherwise it plays the
// rendered buffer from the position chosen by the start mode, rendering
// first when re-render-on-play is enabled.
func (s *Studio) TogglePlayback(ctx context.Context) error {
	if s.clock == nil {
		return s.noOutput("toggle")
	}
	if s.clock.State() == playback.Playing {
		s.clock.Stop()
		return nil
	}

	if s.settings.PianoRoll.ReRenderOnPlay {
		if len(s.store.Snapshot().Notes) == 0 {
			s.setStatus("No notes to synthesize.")
			return errors.New(errors.NewStd("no notes to synthesize")).
				Component("studio").
				Category(errors.CategoryValidation).
				Build()
		}
		if _, err := s.StartSynthesis(ctx); err != nil {
			return err
		}
	}
	return s.Play()
}

// Play plays the rendered buffer from the position chosen by the start mode.
func (s *Studio) Play() error {
	if s.clock == nil {
		return s.noOutput("play")
	}
	snap := s.store.Snapshot()
	if !snap.HasBuffer() {
		s.setStatus("No audio to play. Please synthesize first.")
		return errors.New(playback.ErrNoBuffer).
			Component("studio").
			Category(errors.CategoryPlayback).
			Context("operation", "play").
			Build()
	}

	offset := s.StartMode().StartOffset(snap.Playback.PositionMs, snap.MarkerMs)
	if err := s.clock.Play(snap.Buffer, offset); err != nil {
		s.fail("playback failed", err)
		return err
	}
	return nil
}

// Stop stops playback.
func (s *Studio) Stop() {
	if s.clock != nil {
		s.clock.Stop()
	}
}

// SetPlaybackTime moves the playback position, clamped to the rendered
// buffer. In from_marker mode it also moves the marker. While playing the
// output restarts at the new position. Without a rendered buffer it does
// nothing.
func (s *Studio) SetPlaybackTime(ms float64) error {
	snap := s.store.Snapshot()
	if !snap.HasBuffer() {
		return nil
	}
	ms = min(max(ms, 0), snap.DurationMs())

	transitions := []state.Transition{state.SetPosition(ms)}
	if s.StartMode() == playback.StartFromMarker {
		transitions = append(transitions, state.SetMarker(ms))
	}
	s.store.Update(transitions...)

	if s.clock == nil || s.clock.State() != playback.Playing {
		return nil
	}
	if err := s.clock.Seek(ms); err != nil {
		s.fail("seek failed", err)
		return err
	}
	return nil
}

// ExportName returns the suggested export file name.
func (s *Studio) ExportName() string {
	if vb := s.store.Snapshot().Voicebank; vb != nil && vb.Name != "" {
		return vb.Name + "-export.wav"
	}
	return "wsynth-export.wav"
}

// ExportWAV writes the rendered buffer to w as a 16-bit mono WAV file.
func (s *Studio) ExportWAV(w io.Writer) error {
	buf, err := s.exportBuffer()
	if err != nil {
		return err
	}
	data, err := audiofile.Encode(buf)
	if err != nil {
		s.fail("export failed", err)
		return err
	}
	if _, err := w.Write(data); err != nil {
		err = errors.New(err).
			Component("studio").
			Category(errors.CategoryFileIO).
			Context("operation", "export").
			Build()
		s.fail("export failed", err)
		return err
	}
	s.setStatus(fmt.Sprintf("Exported %d bytes of audio.", len(data)))
	return nil
}

// ExportFile writes the rendered buffer to path.
func (s *Studio) ExportFile(path string) error {
	buf, err := s.exportBuffer()
	if err != nil {
		return err
	}
	if err := audiofile.WriteFile(path, buf); err != nil {
		s.fail("export failed", err)
		return err
	}
	GetLogger().Info("audio exported",
		logger.String("path", path),
		logger.Float64("duration_ms", buf.DurationMs()))
	s.setStatus(fmt.Sprintf("File %s written.", path))
	return nil
}

func (s *Studio) exportBuffer() (*audiofile.Buffer, error) {
	snap := s.store.Snapshot()
	if !snap.HasBuffer() {
		s.setStatus("No audio to export. Please synthesize first.")
		return nil, errors.New(playback.ErrNoBuffer).
			Component("studio").
			Category(errors.CategoryPlayback).
			Context("operation", "export").
			Build()
	}
	return snap.Buffer, nil
}

// OpenProject replaces tempo, grid and notes with those of p.
func (s *Studio) OpenProject(p *project.Project) {
	s.store.Update(append(p.Transitions(),
		state.SetStatus(fmt.Sprintf("Project opened with %d notes.", len(p.Notes))))...)
}

// SaveProject writes the current tempo, grid and notes to path.
func (s *Studio) SaveProject(path string) error {
	if err := project.Save(path, project.FromSnapshot(s.store.Snapshot())); err != nil {
		s.fail("saving project failed", err)
		return err
	}
	s.setStatus(fmt.Sprintf("Project saved to %s.", path))
	return nil
}

func (s *Studio) noOutput(operation string) error {
	err := errors.New(ErrNoOutput).
		Component("studio").
		Category(errors.CategoryPlayback).
		Context("operation", operation).
		Build()
	s.fail("playback unavailable", err)
	return err
}
