// Package pipeline sequences every call against the engine handle.
//
// A single goroutine drains a FIFO queue of calls, so calls run one at a
// time in submission order and the handle is never touched from anywhere
// else. Library loading, per-file feature caching and synthesis all go
// through the queue.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/engine"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/observability/metrics"
	"github.com/tphakala/wsynth-go/internal/state"
)

// ErrClosed is returned for calls submitted after Close.
var ErrClosed = errors.NewStd("synthesis pipeline is closed")

// Progress is one milestone published by the pipeline.
type Progress struct {
	Milestone   state.Milestone
	Message     string
	SourceID    string            // file-cached only
	Cached      int               // files cached since the last library load
	CacheFailed int               // files the engine rejected since the last library load
	Buffer      *audiofile.Buffer // synthesis-complete only
	Err         error             // load-failed and synthesis-failed only
}

// ProgressFunc receives milestones on the pipeline goroutine, in order.
type ProgressFunc func(Progress)

// call is one queued unit of work bound to the handle.
type call struct {
	op   string
	run  func() error
	done chan error // nil for fire-and-forget calls
}

// Pipeline owns the engine handle and its call queue.
type Pipeline struct {
	handle   *engine.Handle
	progress ProgressFunc
	metrics  *metrics.PipelineMetrics

	mu      sync.Mutex
	cond    *sync.Cond
	pending []call
	stopped bool
	wg      sync.WaitGroup

	// Owned by the pipeline goroutine.
	libraryLoaded bool

	loaded      atomic.Bool
	cached      atomic.Int64
	cacheFailed atomic.Int64
	lastBuffer  atomic.Pointer[audiofile.Buffer]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress sets the milestone callback.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithMetrics records call metrics.
func WithMetrics(m *metrics.PipelineMetrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New starts a pipeline that owns handle. Close releases it.
// Panics if handle is nil.
func New(handle *engine.Handle, opts ...Option) *Pipeline {
	if handle == nil {
		panic("pipeline: New called with nil engine handle")
	}
	p := &Pipeline{handle: handle}
	for _, opt := range opts {
		opt(p)
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(1)
	go p.processLoop()
	return p
}

// submit appends a call to the queue.
func (p *Pipeline) submit(c call) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return errors.New(ErrClosed).
			Component("pipeline").
			Category(errors.CategoryState).
			Context("operation", c.op).
			Build()
	}
	p.pending = append(p.pending, c)
	p.metrics.Enqueued()
	p.cond.Signal()
	return nil
}

// ticket decides between a queued call starting and its caller giving up.
// Whichever side moves first wins: a started call is always waited for, an
// abandoned call never runs.
type ticket struct {
	state atomic.Int32
}

const (
	ticketPending int32 = iota
	ticketStarted
	ticketAbandoned
)

func (t *ticket) start() bool {
	return t.state.CompareAndSwap(ticketPending, ticketStarted)
}

func (t *ticket) abandon() bool {
	return t.state.CompareAndSwap(ticketPending, ticketAbandoned)
}

// do queues run and waits for it. When ctx ends first the call still runs
// in its turn; only the wait is abandoned.
func (p *Pipeline) do(ctx context.Context, op string, run func() error) error {
	return p.doTicket(ctx, op, nil, run)
}

// doTicket is do for calls guarded by t. When ctx ends while the call is
// still queued the call is skipped; once it has started the wait continues
// until it finishes, since engine calls cannot be interrupted.
func (p *Pipeline) doTicket(ctx context.Context, op string, t *ticket, run func() error) error {
	if t != nil {
		guarded := run
		run = func() error {
			if !t.start() {
				GetLogger().Debug("skipping abandoned engine call", logger.String("operation", op))
				return cancelledError(context.Canceled, op)
			}
			return guarded()
		}
	}

	done := make(chan error, 1)
	if err := p.submit(call{op: op, run: run, done: done}); err != nil {
		return err
	}
	return p.await(ctx, op, done, t)
}

// await waits for a submitted call's result.
func (p *Pipeline) await(ctx context.Context, op string, done <-chan error, t *ticket) error {
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if t != nil && !t.abandon() {
			return <-done
		}
		return cancelledError(ctx.Err(), op)
	}
}

func cancelledError(err error, op string) error {
	return errors.New(err).
		Component("pipeline").
		Category(errors.CategoryCancellation).
		Context("operation", op).
		Build()
}

// Flush waits until every call submitted before it has run.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.do(ctx, "flush", func() error { return nil })
}

// Close stops accepting calls, runs the ones already queued, then destroys
// the engine instance. Safe to call more than once.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		p.wg.Wait()
		return nil
	}
	p.stopped = true
	p.cond.Signal()
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}

// processLoop runs queued calls until the pipeline is closed and drained.
func (p *Pipeline) processLoop() {
	defer p.wg.Done()
	defer func() {
		if err := p.handle.Close(); err != nil {
			GetLogger().Error("failed to release engine handle", logger.Error(err))
		}
		p.loaded.Store(false)
		p.metrics.SetLibraryLoaded(false)
	}()

	for {
		c, ok := p.next()
		if !ok {
			return
		}
		err := p.execute(c)
		if c.done != nil {
			c.done <- err
		}
	}
}

// next blocks for the next call. It returns false once stopped and drained.
func (p *Pipeline) next() (call, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if len(p.pending) > 0 {
			c := p.pending[0]
			p.pending[0] = call{}
			p.pending = p.pending[1:]
			return c, true
		}
		if p.stopped {
			return call{}, false
		}
		p.cond.Wait()
	}
}

// execute runs one call, converting a panic into an error so the queue
// keeps draining.
func (p *Pipeline) execute(c call) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			GetLogger().Error("panic during engine call",
				logger.String("operation", c.op),
				logger.Any("panic", r),
				logger.String("stack", string(debug.Stack())))
			err = errors.New(fmt.Errorf("panic during %s: %v", c.op, r)).
				Component("pipeline").
				Category(errors.CategoryGeneric).
				Context("operation", c.op).
				Build()
		}
		p.metrics.RecordCall(c.op, time.Since(start), err)
	}()
	return c.run()
}

func (p *Pipeline) publish(pr Progress) {
	if p.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			GetLogger().Error("progress callback panic",
				logger.String("milestone", string(pr.Milestone)),
				logger.Any("panic", r))
		}
	}()
	p.progress(pr)
}

// LibraryLoaded reports whether reference data is currently loaded.
func (p *Pipeline) LibraryLoaded() bool {
	return p.loaded.Load()
}

// CacheStats returns the number of files cached and rejected since the last
// library load.
func (p *Pipeline) CacheStats() (cached, failed int) {
	return int(p.cached.Load()), int(p.cacheFailed.Load())
}

// LastBuffer returns the most recent successfully rendered buffer, or nil.
func (p *Pipeline) LastBuffer() *audiofile.Buffer {
	return p.lastBuffer.Load()
}

// GetLogger returns the pipeline package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("pipeline")
}
