// Package audiofile holds rendered audio buffers and the 16-bit PCM WAV codec
// used for playback decode and export.
package audiofile

import (
	"time"

	"github.com/tphakala/wsynth-go/internal/logger"
)

// Buffer is a single-channel sample buffer. Samples are nominally in [-1, 1].
type Buffer struct {
	Samples    []float32
	SampleRate int
}

// Frames returns the number of samples in the buffer.
func (b *Buffer) Frames() int {
	if b == nil {
		return 0
	}
	return len(b.Samples)
}

// DurationMs returns the buffer length in milliseconds.
func (b *Buffer) DurationMs() float64 {
	if b == nil || b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) * 1000 / float64(b.SampleRate)
}

// Duration returns the buffer length as a time.Duration.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.DurationMs() * float64(time.Millisecond))
}

// GetLogger returns the audiofile package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("audiofile")
}
