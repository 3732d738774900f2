package state

import (
	"cmp"
	"slices"

	"github.com/tphakala/wsynth-go/internal/audiofile"
)

// Transition changes a working copy of the snapshot. The copy is shallow:
// a transition that changes a slice or map must replace it, never write
// through it.
type Transition func(s *Snapshot)

// SetStatus sets the status message.
func SetStatus(msg string) Transition {
	return func(s *Snapshot) { s.Status = msg }
}

// SetSynthesis sets the synthesis progress.
func SetSynthesis(inProgress bool, milestone Milestone, msg string) Transition {
	return func(s *Snapshot) {
		s.Synthesis = Synthesis{InProgress: inProgress, Milestone: milestone, Message: msg}
	}
}

// SetRenderedBuffer replaces the rendered buffer and clamps the position to it.
func SetRenderedBuffer(buf *audiofile.Buffer) Transition {
	return func(s *Snapshot) {
		s.Buffer = buf
		s.Playback.PositionMs = clampPosition(s, s.Playback.PositionMs)
	}
}

// SetPlayback sets the transport state.
func SetPlayback(isPlaying bool, positionMs float64) Transition {
	return func(s *Snapshot) {
		s.Playback = Playback{IsPlaying: isPlaying, PositionMs: clampPosition(s, positionMs)}
	}
}

// SetPosition sets the transport position without changing the play state.
func SetPosition(positionMs float64) Transition {
	return func(s *Snapshot) { s.Playback.PositionMs = clampPosition(s, positionMs) }
}

// ResetPlayback stops the transport and drops the rendered buffer.
func ResetPlayback() Transition {
	return func(s *Snapshot) {
		s.Playback = Playback{}
		s.Buffer = nil
	}
}

// SetVoicebank sets the current voicebank; nil clears it.
func SetVoicebank(vb *VoicebankInfo) Transition {
	return func(s *Snapshot) { s.Voicebank = vb }
}

// AddNote appends a note and makes it the only selected note.
func AddNote(n Note) Transition {
	n = n.Clone()
	sortPitchbend(n.Pitchbend)
	return func(s *Snapshot) {
		s.Notes = append(slices.Clip(s.Notes), n)
		s.Selected = []string{n.ID}
	}
}

// UpdateNote applies fn to a copy of the note with the given ID. Pitch-bend
// points are re-sorted afterwards.
func UpdateNote(id string, fn func(n *Note)) Transition {
	return func(s *Snapshot) {
		replaceNote(s, id, func(n *Note) {
			fn(n)
			n.ID = id
			sortPitchbend(n.Pitchbend)
		})
	}
}

// DeleteNote removes a note and drops it from the selection.
func DeleteNote(id string) Transition {
	return func(s *Snapshot) {
		s.Notes = slices.DeleteFunc(slices.Clone(s.Notes), func(n Note) bool { return n.ID == id })
		s.Selected = slices.DeleteFunc(slices.Clone(s.Selected), func(sel string) bool { return sel == id })
	}
}

// DeleteSelected removes every selected note and clears the selection.
func DeleteSelected() Transition {
	return func(s *Snapshot) {
		selected := s.Selected
		s.Notes = slices.DeleteFunc(slices.Clone(s.Notes), func(n Note) bool {
			return slices.Contains(selected, n.ID)
		})
		s.Selected = nil
	}
}

// SelectNote selects a note. With multiple set the note's selection is
// toggled and the rest of the selection kept; otherwise it becomes the only
// selected note.
func SelectNote(id string, multiple bool) Transition {
	return func(s *Snapshot) {
		if !multiple {
			s.Selected = []string{id}
			return
		}
		if slices.Contains(s.Selected, id) {
			s.Selected = slices.DeleteFunc(slices.Clone(s.Selected), func(sel string) bool { return sel == id })
			return
		}
		s.Selected = append(slices.Clip(s.Selected), id)
	}
}

// ClearSelection deselects every note.
func ClearSelection() Transition {
	return func(s *Snapshot) { s.Selected = nil }
}

// AddPitchbendPoint adds a point to a note, keeping points sorted by offset.
func AddPitchbendPoint(noteID string, p PitchbendPoint) Transition {
	return func(s *Snapshot) {
		replaceNote(s, noteID, func(n *Note) {
			n.Pitchbend = append(n.Pitchbend, p)
			sortPitchbend(n.Pitchbend)
		})
	}
}

// UpdatePitchbendPoint moves a point, keeping points sorted by offset.
func UpdatePitchbendPoint(noteID, pointID string, offset, value float64) Transition {
	return func(s *Snapshot) {
		replaceNote(s, noteID, func(n *Note) {
			for i := range n.Pitchbend {
				if n.Pitchbend[i].ID == pointID {
					n.Pitchbend[i].Offset = offset
					n.Pitchbend[i].Value = value
				}
			}
			sortPitchbend(n.Pitchbend)
		})
	}
}

// DeletePitchbendPoint removes a point from a note.
func DeletePitchbendPoint(noteID, pointID string) Transition {
	return func(s *Snapshot) {
		replaceNote(s, noteID, func(n *Note) {
			n.Pitchbend = slices.DeleteFunc(n.Pitchbend, func(p PitchbendPoint) bool { return p.ID == pointID })
		})
	}
}

// ReplaceNotes replaces every note, e.g. when a project file is opened.
func ReplaceNotes(notes []Note) Transition {
	cloned := make([]Note, len(notes))
	for i, n := range notes {
		cloned[i] = n.Clone()
		sortPitchbend(cloned[i].Pitchbend)
	}
	return func(s *Snapshot) {
		s.Notes = cloned
		s.Selected = nil
	}
}

// SetTempo sets the tempo. Non-positive values are ignored.
func SetTempo(bpm float64) Transition {
	return func(s *Snapshot) {
		if bpm > 0 {
			s.Tempo = bpm
		}
	}
}

// SetGridDivision sets the grid division. Non-positive values are ignored.
func SetGridDivision(division int) Transition {
	return func(s *Snapshot) {
		if division > 0 {
			s.GridDivision = division
		}
	}
}

// SetMarker sets the playback marker.
func SetMarker(ms float64) Transition {
	return func(s *Snapshot) { s.MarkerMs = max(ms, 0) }
}

// replaceNote swaps the note with the given ID for an edited deep copy.
func replaceNote(s *Snapshot, id string, edit func(n *Note)) {
	i := s.noteIndex(id)
	if i < 0 {
		return
	}
	notes := slices.Clone(s.Notes)
	n := notes[i].Clone()
	edit(&n)
	notes[i] = n
	s.Notes = notes
}

func sortPitchbend(points []PitchbendPoint) {
	slices.SortStableFunc(points, func(a, b PitchbendPoint) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
}

func clampPosition(s *Snapshot, ms float64) float64 {
	return min(max(ms, 0), s.DurationMs())
}
