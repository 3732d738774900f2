// Package playback implements the transport: a clock anchored to the audio
// subsystem's own time that plays a rendered buffer, seeks, stops and
// publishes its position.
package playback

import (
	"sync"
	"time"

	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/observability/metrics"
)

// NearEndMs is the distance from the end of the buffer within which a play
// or seek target restarts from zero.
const NearEndMs = 10.0

// DefaultPositionInterval is how often the position is published while playing.
const DefaultPositionInterval = 16 * time.Millisecond

// ErrNoBuffer is returned when there is nothing to play.
var ErrNoBuffer = errors.NewStd("no audio to play, synthesize first")

// State is the transport state.
type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// Status is a published transport update.
type Status struct {
	State      State
	PositionMs float64
	DurationMs float64
	Ended      bool // playback reached the end of the buffer
}

// UpdateFunc receives transport updates in order. It runs with the clock
// locked and must not call back into the Clock.
type UpdateFunc func(Status)

// Clock plays buffers through an Output and tracks the position as
// (now - epoch) * 1000, where epoch is re-anchored on every play and seek.
type Clock struct {
	out      Output
	interval time.Duration
	onUpdate UpdateFunc
	metrics  *metrics.PlaybackMetrics

	mu           sync.Mutex
	state        State
	buf          *audiofile.Buffer
	node         Node
	epoch        float64 // audio clock seconds at which position 0 would have played
	stoppedPos   float64 // position while stopped, ms
	restartOnEnd bool
	gen          uint64 // bumped whenever the node or ticker is replaced
	tickStop     chan struct{}
	tickDone     chan struct{}
}

// Option configures a Clock.
type Option func(*Clock)

// WithPositionInterval sets the position publishing interval.
func WithPositionInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithUpdates sets the update callback.
func WithUpdates(fn UpdateFunc) Option {
	return func(c *Clock) { c.onUpdate = fn }
}

// WithMetrics records transport metrics.
func WithMetrics(m *metrics.PlaybackMetrics) Option {
	return func(c *Clock) { c.metrics = m }
}

// WithRestartOnEnd resets the position to zero after natural end.
func WithRestartOnEnd(restart bool) Option {
	return func(c *Clock) { c.restartOnEnd = restart }
}

// NewClock creates a stopped clock playing through out.
// Panics if out is nil.
func NewClock(out Output, opts ...Option) *Clock {
	if out == nil {
		panic("playback: NewClock called with nil output")
	}
	c := &Clock{out: out, interval: DefaultPositionInterval}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Play starts buf at offsetMs, replacing anything already playing. The
// offset is clamped to the buffer and restarts from zero within NearEndMs
// of the end.
func (c *Clock) Play(buf *audiofile.Buffer, offsetMs float64) error {
	if buf == nil || buf.Frames() == 0 || buf.SampleRate <= 0 {
		return playbackError(ErrNoBuffer, "play")
	}

	c.mu.Lock()
	wait := c.haltLocked()
	err := c.startLocked(buf, offsetMs)
	c.metrics.RecordTransition("play", c.state == Playing)
	c.publishLocked(false)
	c.mu.Unlock()

	wait()
	return err
}

// Seek moves the position to ms. While playing the output node is restarted
// at the new offset and the clock stays Playing.
func (c *Clock) Seek(ms float64) error {
	c.mu.Lock()
	if c.buf == nil {
		c.mu.Unlock()
		return playbackError(ErrNoBuffer, "seek")
	}

	wait := func() {}
	var err error
	if c.state == Playing {
		wait = c.haltLocked()
		err = c.startLocked(c.buf, ms)
	} else {
		c.stoppedPos = normalizeOffset(ms, c.buf.DurationMs())
	}
	c.metrics.RecordTransition("seek", c.state == Playing)
	c.publishLocked(false)
	c.mu.Unlock()

	wait()
	return err
}

// Stop detaches the output node and cancels position publishing before it
// returns. Stopping a stopped clock does nothing.
func (c *Clock) Stop() {
	c.mu.Lock()
	if c.state != Playing {
		c.mu.Unlock()
		return
	}
	pos := c.positionLocked()
	wait := c.haltLocked()
	c.state = Stopped
	c.stoppedPos = pos
	c.metrics.RecordTransition("stop", false)
	c.publishLocked(false)
	c.mu.Unlock()

	wait()
}

// Close stops playback.
func (c *Clock) Close() {
	c.Stop()
}

// Position returns the current position in ms, within [0, duration].
func (c *Clock) Position() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

// State returns the transport state.
func (c *Clock) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Buffer returns the buffer last played, or nil.
func (c *Clock) Buffer() *audiofile.Buffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf
}

// SetRestartOnEnd changes the restart policy.
func (c *Clock) SetRestartOnEnd(restart bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restartOnEnd = restart
}

// startLocked creates a node for buf and anchors the epoch.
func (c *Clock) startLocked(buf *audiofile.Buffer, offsetMs float64) error {
	offsetMs = normalizeOffset(offsetMs, buf.DurationMs())
	c.buf = buf
	c.gen++
	gen := c.gen

	node, err := c.out.Start(buf, offsetMs/1000, func() { c.handleEnded(gen) })
	if err != nil {
		c.state = Stopped
		c.stoppedPos = offsetMs
		GetLogger().Error("failed to start audio output", logger.Error(err))
		return playbackError(err, "start_output")
	}

	c.node = node
	c.epoch = c.out.Now() - offsetMs/1000
	c.state = Playing
	c.startTickerLocked(gen)
	GetLogger().Debug("playback started",
		logger.Float64("offset_ms", offsetMs),
		logger.Float64("duration_ms", buf.DurationMs()))
	return nil
}

// haltLocked stops the node and ticker and invalidates pending callbacks.
// The returned func waits for the ticker goroutine and must be called after
// the lock is released.
func (c *Clock) haltLocked() (wait func()) {
	c.gen++
	if c.node != nil {
		c.node.Stop()
		c.node = nil
	}
	if c.tickStop == nil {
		return func() {}
	}
	close(c.tickStop)
	done := c.tickDone
	c.tickStop, c.tickDone = nil, nil
	return func() { <-done }
}

// handleEnded runs when a node reaches the end of its buffer.
func (c *Clock) handleEnded(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.state != Playing {
		c.mu.Unlock()
		c.metrics.RecordStaleEnded()
		GetLogger().Debug("ignoring end event from replaced output node")
		return
	}

	wait := c.haltLocked()
	c.state = Stopped
	c.stoppedPos = c.buf.DurationMs()
	c.metrics.RecordTransition("ended", false)
	c.publishLocked(true)
	if c.restartOnEnd {
		c.stoppedPos = 0
		c.publishLocked(false)
	}
	c.mu.Unlock()

	wait()
}

func (c *Clock) startTickerLocked(gen uint64) {
	stop := make(chan struct{})
	done := make(chan struct{})
	c.tickStop, c.tickDone = stop, done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !c.tick(gen) {
					return
				}
			}
		}
	}()
}

// tick publishes the position. It returns false once gen is stale.
func (c *Clock) tick(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state != Playing {
		return false
	}
	c.publishLocked(false)
	return true
}

func (c *Clock) positionLocked() float64 {
	if c.state != Playing || c.buf == nil {
		return c.stoppedPos
	}
	pos := (c.out.Now() - c.epoch) * 1000
	return min(max(pos, 0), c.buf.DurationMs())
}

func (c *Clock) publishLocked(ended bool) {
	if c.onUpdate == nil {
		return
	}
	st := Status{
		State:      c.state,
		PositionMs: c.positionLocked(),
		DurationMs: c.buf.DurationMs(),
		Ended:      ended,
	}
	defer func() {
		if r := recover(); r != nil {
			GetLogger().Error("playback update callback panic", logger.Any("panic", r))
		}
	}()
	c.onUpdate(st)
}

// normalizeOffset clamps ms to [0, durationMs] and maps targets within
// NearEndMs of the end to zero.
func normalizeOffset(ms, durationMs float64) float64 {
	ms = min(max(ms, 0), durationMs)
	if ms >= durationMs-NearEndMs {
		return 0
	}
	return ms
}

func playbackError(err error, operation string) error {
	return errors.New(err).
		Component("playback").
		Category(errors.CategoryPlayback).
		Context("operation", operation).
		Build()
}

// GetLogger returns the playback package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("playback")
}
