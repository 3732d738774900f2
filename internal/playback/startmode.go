package playback

import (
	"fmt"

	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/errors"
)

// StartMode selects where playback starts when the user presses play.
type StartMode string

// Start modes, matching the pianoroll.playbackstartmode setting.
const (
	StartFromStart  StartMode = conf.StartModeFromStart
	StartResume     StartMode = conf.StartModeResume
	StartFromMarker StartMode = conf.StartModeFromMarker
)

// ParseStartMode validates a configured start mode.
func ParseStartMode(s string) (StartMode, error) {
	switch m := StartMode(s); m {
	case StartFromStart, StartResume, StartFromMarker:
		return m, nil
	default:
		return "", errors.New(fmt.Errorf("unknown playback start mode %q", s)).
			Component("playback").
			Category(errors.CategoryValidation).
			Build()
	}
}

// StartOffset returns the requested play offset for this mode. The clock
// still applies clamping and the near-end rule.
func (m StartMode) StartOffset(lastPositionMs, markerMs float64) float64 {
	switch m {
	case StartFromStart:
		return 0
	case StartFromMarker:
		return markerMs
	default:
		return lastPositionMs
	}
}

// RestartOnEnd reports whether the position resets to zero after playback
// reaches the end of the buffer.
func (m StartMode) RestartOnEnd() bool {
	return m == StartFromStart
}
