package engine

import (
	"encoding/json"
)

// PitchbendPoint is one point of a note's pitch curve.
type PitchbendPoint struct {
	Offset float64 `json:"offset"` // ms from note start
	Value  float64 `json:"value"`  // cents
}

// NoteInfo is a note with absolute timing, as the engine expects it.
type NoteInfo struct {
	Alias      string           `json:"alias"`
	Pitch      int              `json:"pitch"`
	StartTime  float64          `json:"start_time"` // ms
	Duration   float64          `json:"duration"`   // ms
	Pitchbend  []PitchbendPoint `json:"pitchbend"`
	Flags      string           `json:"flags"`
	Velocity   float64          `json:"velocity"`
	Volume     float64          `json:"volume"`
	Modulation float64          `json:"modulation"`
}

// Request is an immutable render request.
type Request struct {
	Notes []NoteInfo `json:"notes"`
	Tempo float64    `json:"tempo"`
}

// MarshalRequest serializes req for the engine. Empty pitchbend lists are
// encoded as [] rather than null.
func MarshalRequest(req *Request) ([]byte, error) {
	wire := Request{Tempo: req.Tempo, Notes: make([]NoteInfo, len(req.Notes))}
	for i, n := range req.Notes {
		if n.Pitchbend == nil {
			n.Pitchbend = []PitchbendPoint{}
		}
		wire.Notes[i] = n
	}
	return json.Marshal(&wire)
}
