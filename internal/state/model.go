// Package state holds the observable application state. The current value
// is an immutable Snapshot; every change goes through a named transition and
// produces a new Snapshot for subscribers.
package state

import (
	"slices"

	"github.com/google/uuid"

	"github.com/tphakala/wsynth-go/internal/audiofile"
)

// Defaults applied to notes and projects when a value is not given.
const (
	DefaultVelocity     = 100.0
	DefaultVolume       = 100.0
	DefaultModulation   = 0.0
	DefaultTempo        = 120.0
	DefaultGridDivision = 8
)

// PitchbendPoint is one editable point of a note's pitch curve.
type PitchbendPoint struct {
	ID     string
	Offset float64 // ms from note start
	Value  float64 // cents
}

// Note is a user-authored note with beat-relative timing.
type Note struct {
	ID           string
	Alias        string
	MidiPitch    int
	StartBeat    float64
	DurationBeat float64
	Pitchbend    []PitchbendPoint // ascending by Offset
	Velocity     float64
	Flags        string
	Volume       float64
	Modulation   float64
}

// NewNote returns a note with a fresh ID and default expression values.
func NewNote(alias string, midiPitch int, startBeat, durationBeat float64) Note {
	return Note{
		ID:           uuid.NewString(),
		Alias:        alias,
		MidiPitch:    midiPitch,
		StartBeat:    startBeat,
		DurationBeat: durationBeat,
		Velocity:     DefaultVelocity,
		Volume:       DefaultVolume,
		Modulation:   DefaultModulation,
	}
}

// NewPitchbendPoint returns a point with a fresh ID.
func NewPitchbendPoint(offset, value float64) PitchbendPoint {
	return PitchbendPoint{ID: uuid.NewString(), Offset: offset, Value: value}
}

// Clone returns a deep copy of the note.
func (n Note) Clone() Note {
	n.Pitchbend = slices.Clone(n.Pitchbend)
	return n
}

// EndBeat returns the beat at which the note ends.
func (n Note) EndBeat() float64 {
	return n.StartBeat + n.DurationBeat
}

// VoicebankInfo describes the loaded voicebank.
type VoicebankInfo struct {
	ID            string
	Name          string
	Image         string            // path of the character image inside the voicebank, if any
	CharacterInfo map[string]string // key=value pairs from character.txt
	Files         int               // waveform files offered for analysis
	Analyzed      int               // files whose features were cached in the engine
}

// Milestone is a discrete synthesis progress step.
type Milestone string

// Synthesis progress milestones.
const (
	MilestoneIdle              Milestone = ""
	MilestoneLoadStarted       Milestone = "load-started"
	MilestoneFileCached        Milestone = "file-cached"
	MilestoneLoadComplete      Milestone = "load-complete"
	MilestoneLoadFailed        Milestone = "load-failed"
	MilestoneSynthesisStarted  Milestone = "synthesis-started"
	MilestoneSynthesisComplete Milestone = "synthesis-complete"
	MilestoneSynthesisFailed   Milestone = "synthesis-failed"
)

// Synthesis is the observable progress of the load and synthesize phases.
type Synthesis struct {
	InProgress bool
	Milestone  Milestone
	Message    string
}

// Playback is the observable transport state. PositionMs is kept within
// [0, duration of the rendered buffer].
type Playback struct {
	IsPlaying  bool
	PositionMs float64
}

// GridSettings are values derived from tempo and grid division.
type GridSettings struct {
	MsPerBeat         float64
	GridMinorMs       float64
	GridMajorMs       float64
	BeatsPerGridMinor float64
}

// Snapshot is one immutable version of the application state. Callers must
// not modify a snapshot or anything reachable from it.
type Snapshot struct {
	Version      uint64
	Status       string
	Voicebank    *VoicebankInfo
	Notes        []Note
	Selected     []string // selected note IDs in selection order
	Synthesis    Synthesis
	Playback     Playback
	Buffer       *audiofile.Buffer // last rendered buffer
	MarkerMs     float64
	Tempo        float64
	GridDivision int
}

// Initial returns the state of a freshly started application.
func Initial() Snapshot {
	return Snapshot{
		Status:       "App is not initialized.",
		Tempo:        DefaultTempo,
		GridDivision: DefaultGridDivision,
	}
}

// HasBuffer reports whether a rendered buffer is available.
func (s *Snapshot) HasBuffer() bool {
	return s.Buffer != nil && s.Buffer.Frames() > 0
}

// DurationMs returns the duration of the rendered buffer, or 0.
func (s *Snapshot) DurationMs() float64 {
	if s.Buffer == nil {
		return 0
	}
	return s.Buffer.DurationMs()
}

// Note returns the note with the given ID.
func (s *Snapshot) Note(id string) (Note, bool) {
	i := s.noteIndex(id)
	if i < 0 {
		return Note{}, false
	}
	return s.Notes[i].Clone(), true
}

// IsSelected reports whether the note is selected.
func (s *Snapshot) IsSelected(id string) bool {
	return slices.Contains(s.Selected, id)
}

// Grid returns the grid settings derived from tempo and grid division.
func (s *Snapshot) Grid() GridSettings {
	msPerBeat := 60000 / s.Tempo
	return GridSettings{
		MsPerBeat:         msPerBeat,
		GridMinorMs:       msPerBeat * (4 / float64(s.GridDivision)),
		GridMajorMs:       msPerBeat,
		BeatsPerGridMinor: 4 / float64(s.GridDivision),
	}
}

func (s *Snapshot) noteIndex(id string) int {
	return slices.IndexFunc(s.Notes, func(n Note) bool { return n.ID == id })
}
