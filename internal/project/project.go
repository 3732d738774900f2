// Package project reads and writes project files: the tempo, grid and the
// user-authored notes of a piano roll session, stored as YAML.
package project

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/state"
)

// MIDI pitch range accepted for notes.
const (
	MinPitch = 0
	MaxPitch = 127
)

// Project is the on-disk form of a session.
type Project struct {
	Tempo        float64 `yaml:"tempo"`
	GridDivision int     `yaml:"grid_division,omitempty"`
	Notes        []Note  `yaml:"notes"`
}

// Note is the on-disk form of a note. Expression values left out of the file
// take the editor defaults.
type Note struct {
	Alias        string           `yaml:"alias"`
	Pitch        int              `yaml:"pitch"`
	StartBeat    float64          `yaml:"start_beat"`
	DurationBeat float64          `yaml:"duration_beat"`
	Pitchbend    []PitchbendPoint `yaml:"pitchbend,omitempty"`
	Flags        string           `yaml:"flags,omitempty"`
	Velocity     *float64         `yaml:"velocity,omitempty"`
	Volume       *float64         `yaml:"volume,omitempty"`
	Modulation   *float64         `yaml:"modulation,omitempty"`
}

// PitchbendPoint is one point of a note's pitch curve: offset in ms from the
// note start, value in cents.
type PitchbendPoint struct {
	Offset float64 `yaml:"offset"`
	Value  float64 `yaml:"value"`
}

// Parse decodes and validates a project document. A missing tempo takes
// state.DefaultTempo.
func Parse(data []byte) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.New(fmt.Errorf("invalid project file: %w", err)).
			Component("project").
			Category(errors.CategoryFileParsing).
			Build()
	}
	if p.Tempo == 0 {
		p.Tempo = state.DefaultTempo
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks tempo, grid and note values.
func (p *Project) Validate() error {
	if !(p.Tempo > 0) || math.IsInf(p.Tempo, 0) {
		return errors.Newf("tempo must be positive, got %v", p.Tempo).
			Component("project").
			Category(errors.CategoryValidation).
			Build()
	}
	if p.GridDivision < 0 {
		return errors.Newf("grid division must not be negative, got %d", p.GridDivision).
			Component("project").
			Category(errors.CategoryValidation).
			Build()
	}
	for i := range p.Notes {
		if err := p.Notes[i].validate(); err != nil {
			return errors.New(err).
				Component("project").
				Category(errors.CategoryValidation).
				Context("note_index", i).
				Context("alias", p.Notes[i].Alias).
				Build()
		}
	}
	return nil
}

func (n *Note) validate() error {
	switch {
	case n.Pitch < MinPitch || n.Pitch > MaxPitch:
		return fmt.Errorf("pitch %d outside MIDI range %d-%d", n.Pitch, MinPitch, MaxPitch)
	case n.StartBeat < 0:
		return fmt.Errorf("start beat %v is negative", n.StartBeat)
	case !(n.DurationBeat > 0):
		return fmt.Errorf("duration %v must be positive", n.DurationBeat)
	}
	return nil
}

// Load reads and parses a project file.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("project").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	GetLogger().Debug("project loaded",
		logger.String("path", path),
		logger.Int("notes", len(p.Notes)),
		logger.Float64("tempo", p.Tempo))
	return p, nil
}

// Save writes the project to path through a temporary file in the same
// directory, replacing any existing file.
func Save(path string, p *Project) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return errors.New(fmt.Errorf("error marshaling project to YAML: %w", err)).
			Component("project").
			Category(errors.CategoryFileParsing).
			Build()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "project-*.yaml")
	if err != nil {
		return saveError(err, path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return saveError(err, path)
	}
	if err := tmp.Close(); err != nil {
		return saveError(err, path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return saveError(err, path)
	}
	return nil
}

func saveError(err error, path string) error {
	return errors.New(err).
		Component("project").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Context("operation", "save").
		Build()
}

// StateNotes converts the project notes to editor notes with fresh IDs.
func (p *Project) StateNotes() []state.Note {
	notes := make([]state.Note, 0, len(p.Notes))
	for _, pn := range p.Notes {
		n := state.NewNote(pn.Alias, pn.Pitch, pn.StartBeat, pn.DurationBeat)
		n.Flags = pn.Flags
		if pn.Velocity != nil {
			n.Velocity = *pn.Velocity
		}
		if pn.Volume != nil {
			n.Volume = *pn.Volume
		}
		if pn.Modulation != nil {
			n.Modulation = *pn.Modulation
		}
		for _, b := range pn.Pitchbend {
			n.Pitchbend = append(n.Pitchbend, state.NewPitchbendPoint(b.Offset, b.Value))
		}
		notes = append(notes, n)
	}
	return notes
}

// Transitions returns the state changes that open the project in the editor.
func (p *Project) Transitions() []state.Transition {
	return []state.Transition{
		state.SetTempo(p.Tempo),
		state.SetGridDivision(p.GridDivision),
		state.ReplaceNotes(p.StateNotes()),
	}
}

// FromSnapshot captures the notes, tempo and grid of an editor state.
func FromSnapshot(s *state.Snapshot) *Project {
	p := &Project{Tempo: s.Tempo, GridDivision: s.GridDivision, Notes: make([]Note, 0, len(s.Notes))}
	for _, n := range s.Notes {
		pn := Note{
			Alias:        n.Alias,
			Pitch:        n.MidiPitch,
			StartBeat:    n.StartBeat,
			DurationBeat: n.DurationBeat,
			Flags:        n.Flags,
			Velocity:     ptr(n.Velocity),
			Volume:       ptr(n.Volume),
			Modulation:   ptr(n.Modulation),
		}
		for _, b := range n.Pitchbend {
			pn.Pitchbend = append(pn.Pitchbend, PitchbendPoint{Offset: b.Offset, Value: b.Value})
		}
		p.Notes = append(p.Notes, pn)
	}
	return p
}

func ptr(v float64) *float64 { return &v }

// BeatsToMs converts a beat position to milliseconds at the given tempo.
func BeatsToMs(beats, tempo float64) float64 {
	return beats * 60000 / tempo
}

// MsToBeats converts milliseconds to beats at the given tempo.
func MsToBeats(ms, tempo float64) float64 {
	return ms * tempo / 60000
}

// SnapToGrid rounds a beat position to the nearest grid line. division is
// the number of grid cells per 4/4 bar.
func SnapToGrid(beat float64, division int) float64 {
	if division <= 0 {
		return beat
	}
	step := 4 / float64(division)
	return math.Round(beat/step) * step
}

// GetLogger returns the project package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("project")
}
