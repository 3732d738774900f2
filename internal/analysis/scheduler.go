// Package analysis runs waveform feature extraction for a batch of files on a
// bounded pool of workers.
//
// Workers pull jobs from the tail of the batch as they free up, so no worker
// idles while work remains and at most W jobs run at once. Every job yields
// exactly one Result unless the batch is aborted.
package analysis

import (
	"context"
	"fmt"
	"math"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/wsynth-go/internal/engine"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/observability/metrics"
)

// Job is one file to analyze. Immutable once created.
type Job struct {
	SourceID string // file identifier, e.g. "ka.wav"
	Samples  []byte // raw WAV bytes
}

// ResultKind tags a Result as success or failure.
type ResultKind int

const (
	ResultSuccess ResultKind = iota
	ResultFailure
)

func (k ResultKind) String() string {
	if k == ResultSuccess {
		return "success"
	}
	return "failure"
}

// Result is the outcome of one Job. On success the receiver owns Features.
type Result struct {
	SourceID string
	Kind     ResultKind
	Features []byte
	Err      error
}

// AnalyzeFunc extracts features from one job. A returned error is a per-job
// failure; a panic is a worker crash and aborts the batch.
type AnalyzeFunc func(ctx context.Context, job Job) ([]byte, error)

// Sink receives results in arrival order. Calls are never concurrent.
type Sink func(Result)

// ErrBatchAborted is returned when a batch stops before every job resolved.
var ErrBatchAborted = errors.NewStd("analysis batch aborted")

// errWorkerCrashed marks a recovered worker panic.
var errWorkerCrashed = errors.NewStd("analysis worker crashed")

// Report summarizes a batch.
type Report struct {
	Total     int
	Succeeded int
	Failed    int
	Workers   int
	Complete  bool // every job produced exactly one result
	Elapsed   time.Duration
}

// PoolSize returns the worker count for a batch: the configured count when
// positive, otherwise round(2 + cores*0.1), clamped to [1, cores-1].
func PoolSize(configured, availableCores int) int {
	w := configured
	if w <= 0 {
		w = int(math.Round(2 + float64(availableCores)*0.1))
	}
	w = min(w, availableCores-1)
	return max(w, 1)
}

// EngineAnalyzer adapts the engine's stateless analyze capability.
func EngineAnalyzer(caps engine.Capabilities) AnalyzeFunc {
	return func(_ context.Context, job Job) ([]byte, error) {
		return engine.Analyze(caps, job.Samples)
	}
}

// Scheduler runs analysis batches.
type Scheduler struct {
	analyze AnalyzeFunc
	workers int
	metrics *metrics.AnalysisMetrics
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records job and batch metrics.
func WithMetrics(m *metrics.AnalysisMetrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler running at most workers jobs at a time.
func NewScheduler(analyze AnalyzeFunc, workers int, opts ...Option) *Scheduler {
	if analyze == nil {
		panic("analysis: NewScheduler called with nil analyze func")
	}
	s := &Scheduler{analyze: analyze, workers: max(workers, 1)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Workers returns the pool size.
func (s *Scheduler) Workers() int {
	return s.workers
}

// jobStack hands out jobs from the tail of the batch.
type jobStack struct {
	mu   sync.Mutex
	jobs []Job
	next int
}

func (q *jobStack) pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.next == 0 {
		return Job{}, false
	}
	q.next--
	return q.jobs[q.next], true
}

// Run analyzes jobs and delivers each result to sink as it arrives. It
// returns when every job resolved, or early with ErrBatchAborted when a
// worker crashes or ctx is cancelled. Workers are gone when Run returns.
func (s *Scheduler) Run(ctx context.Context, jobs []Job, sink Sink) (Report, error) {
	start := time.Now()
	workers := min(s.workers, len(jobs))
	report := Report{Total: len(jobs), Workers: workers}
	log := GetLogger().WithContext(ctx)

	if len(jobs) == 0 {
		report.Complete = true
		return report, nil
	}

	log.Info("analysis batch started",
		logger.Int("jobs", len(jobs)),
		logger.Int("workers", workers))

	queue := &jobStack{jobs: jobs, next: len(jobs)}
	results := make(chan Result, workers)

	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			return s.worker(gctx, queue, results)
		})
	}

	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(results)
	}()

	for r := range results {
		if r.Kind == ResultSuccess {
			report.Succeeded++
		} else {
			report.Failed++
			log.Warn("file analysis failed",
				logger.String("file", r.SourceID),
				logger.Error(r.Err))
		}
		if sink != nil {
			sink(r)
		}
	}

	report.Elapsed = time.Since(start)
	err := s.batchError(ctx, waitErr)
	report.Complete = err == nil && report.Succeeded+report.Failed == report.Total
	s.metrics.BatchFinished(workers, report.Elapsed, err)

	if err != nil {
		log.Error("analysis batch aborted",
			logger.Int("resolved", report.Succeeded+report.Failed),
			logger.Int("jobs", report.Total),
			logger.Error(err))
		return report, err
	}

	log.Info("analysis batch finished",
		logger.Int("succeeded", report.Succeeded),
		logger.Int("failed", report.Failed),
		logger.Duration("elapsed", report.Elapsed))
	return report, nil
}

// worker pulls jobs until the batch is drained or aborted.
func (s *Scheduler) worker(ctx context.Context, queue *jobStack, results chan<- Result) error {
	for {
		// An empty queue ends the worker even after cancellation, so a
		// batch whose every result was delivered still completes.
		job, ok := queue.pop()
		if !ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		r, err := s.runJob(ctx, job)
		if err != nil {
			return err
		}

		select {
		case results <- r:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// runJob analyzes one job. Only a panic returns an error.
func (s *Scheduler) runJob(ctx context.Context, job Job) (r Result, err error) {
	start := time.Now()
	s.metrics.JobStarted()
	defer func() {
		if rec := recover(); rec != nil {
			GetLogger().Error("analysis worker panic",
				logger.String("file", job.SourceID),
				logger.Any("panic", rec),
				logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("%w while analyzing %s: %v", errWorkerCrashed, job.SourceID, rec)
			s.metrics.JobFinished(time.Since(start), err)
			return
		}
		s.metrics.JobFinished(time.Since(start), r.Err)
	}()

	features, aerr := s.analyze(ctx, job)
	if aerr != nil {
		return Result{SourceID: job.SourceID, Kind: ResultFailure, Err: aerr}, nil
	}
	return Result{SourceID: job.SourceID, Kind: ResultSuccess, Features: features}, nil
}

// batchError maps the errgroup outcome to the batch error taxonomy.
func (s *Scheduler) batchError(ctx context.Context, waitErr error) error {
	switch {
	case waitErr == nil:
		return nil
	case ctx.Err() != nil:
		return errors.New(fmt.Errorf("%w: %w", ErrBatchAborted, ctx.Err())).
			Component("analysis").
			Category(errors.CategoryCancellation).
			Build()
	default:
		return errors.New(fmt.Errorf("%w: %w", ErrBatchAborted, waitErr)).
			Component("analysis").
			Category(errors.CategoryWorker).
			Build()
	}
}

// GetLogger returns the analysis package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("analysis")
}
