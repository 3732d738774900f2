package pipeline

import (
	"cmp"
	"slices"

	"github.com/tphakala/wsynth-go/internal/engine"
	"github.com/tphakala/wsynth-go/internal/state"
)

// BuildRequest converts beat-relative notes into a render request with
// absolute millisecond timing. Notes come out sorted by start time.
func BuildRequest(notes []state.Note, tempo float64) *engine.Request {
	msPerBeat := 60000 / tempo
	req := &engine.Request{Tempo: tempo, Notes: make([]engine.NoteInfo, 0, len(notes))}
	for _, n := range notes {
		bends := make([]engine.PitchbendPoint, len(n.Pitchbend))
		for i, p := range n.Pitchbend {
			bends[i] = engine.PitchbendPoint{Offset: p.Offset, Value: p.Value}
		}
		req.Notes = append(req.Notes, engine.NoteInfo{
			Alias:      n.Alias,
			Pitch:      n.MidiPitch,
			StartTime:  n.StartBeat * msPerBeat,
			Duration:   n.DurationBeat * msPerBeat,
			Pitchbend:  bends,
			Flags:      n.Flags,
			Velocity:   n.Velocity,
			Volume:     n.Volume,
			Modulation: n.Modulation,
		})
	}
	return NormalizeRequest(req)
}

// NormalizeRequest returns a deep copy of req with notes stably sorted by
// start time and every pitch-bend list sorted by offset.
func NormalizeRequest(req *engine.Request) *engine.Request {
	out := &engine.Request{Tempo: req.Tempo, Notes: make([]engine.NoteInfo, len(req.Notes))}
	for i, n := range req.Notes {
		n.Pitchbend = slices.Clone(n.Pitchbend)
		slices.SortStableFunc(n.Pitchbend, func(a, b engine.PitchbendPoint) int {
			return cmp.Compare(a.Offset, b.Offset)
		})
		out.Notes[i] = n
	}
	slices.SortStableFunc(out.Notes, func(a, b engine.NoteInfo) int {
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	return out
}
