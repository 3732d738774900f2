package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/wsynth-go/internal/analysis"
	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/engine"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/state"
)

// QueueLoadLibrary queues a load of reference data and, when prefixMap is
// non-nil, the prefix map. It returns without waiting, so feature caching
// queued afterwards runs behind the load while analysis proceeds. The
// returned function waits for the load result. ctx only tags the
// load's log lines; the load runs whatever happens to ctx.
func (p *Pipeline) QueueLoadLibrary(ctx context.Context, referenceData, prefixMap []byte) (wait func(context.Context) error, err error) {
	const op = "load_library"
	log := GetLogger().WithContext(ctx)
	done := make(chan error, 1)
	err = p.submit(call{op: op, done: done, run: func() error {
		return p.loadLibrary(log, referenceData, prefixMap)
	}})
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		return p.await(ctx, op, done, nil)
	}, nil
}

func (p *Pipeline) loadLibrary(log logger.Logger, referenceData, prefixMap []byte) error {
	p.libraryLoaded = false
	p.loaded.Store(false)
	p.metrics.SetLibraryLoaded(false)
	p.cached.Store(0)
	p.cacheFailed.Store(0)

	p.publish(Progress{Milestone: state.MilestoneLoadStarted, Message: "Loading reference data..."})

	fail := func(err error) error {
		log.Error("library load failed", logger.Error(err))
		p.publish(Progress{Milestone: state.MilestoneLoadFailed, Message: err.Error(), Err: err})
		return err
	}

	if err := p.handle.LoadReferenceData(referenceData); err != nil {
		return fail(err)
	}
	if prefixMap != nil {
		if err := p.handle.LoadPrefixMap(prefixMap); err != nil {
			return fail(err)
		}
	}

	p.libraryLoaded = true
	p.loaded.Store(true)
	p.metrics.SetLibraryLoaded(true)
	log.Info("reference data loaded",
		logger.Int("reference_bytes", len(referenceData)),
		logger.Bool("prefix_map", prefixMap != nil))
	p.publish(Progress{Milestone: state.MilestoneLoadComplete, Message: "Reference data loaded."})
	return nil
}

// CacheFeatures stores the features of one file and waits for the result.
// A rejected file is counted and returned but leaves the library usable.
func (p *Pipeline) CacheFeatures(ctx context.Context, sourceID string, features []byte) error {
	return p.do(ctx, "cache_features", func() error {
		return p.cacheFeatures(sourceID, features)
	})
}

// SubmitCache queues feature caching for one file without waiting.
// Failures are logged and counted in CacheStats.
func (p *Pipeline) SubmitCache(sourceID string, features []byte) error {
	return p.submit(call{op: "cache_features", run: func() error {
		return p.cacheFeatures(sourceID, features)
	}})
}

// CacheSink returns an analysis sink that queues every successful result
// for caching. Failed results are ignored here; the scheduler reports them.
func (p *Pipeline) CacheSink() analysis.Sink {
	return func(r analysis.Result) {
		if r.Kind != analysis.ResultSuccess {
			return
		}
		if err := p.SubmitCache(r.SourceID, r.Features); err != nil {
			GetLogger().Warn("could not queue features for caching",
				logger.String("file", r.SourceID),
				logger.Error(err))
		}
	}
}

func (p *Pipeline) cacheFeatures(sourceID string, features []byte) error {
	if err := p.handle.CacheFeatures(sourceID, features); err != nil {
		p.cacheFailed.Add(1)
		GetLogger().Warn("failed to cache features",
			logger.String("file", sourceID),
			logger.Error(err))
		return err
	}
	n := p.cached.Add(1)
	p.publish(Progress{
		Milestone:   state.MilestoneFileCached,
		Message:     fmt.Sprintf("Cached %s", sourceID),
		SourceID:    sourceID,
		Cached:      int(n),
		CacheFailed: int(p.cacheFailed.Load()),
	})
	return nil
}

// RunSynthesis renders req. It fails fast, without an engine call, when no
// library is loaded or the request has no notes. The request is not
// modified; notes are sorted by start time on a copy.
//
// When ctx ends while the render is still queued, the render is dropped and
// a cancellation error returned, so no milestone follows. A render that has
// already started is waited for and its result returned.
func (p *Pipeline) RunSynthesis(ctx context.Context, req *engine.Request) (*audiofile.Buffer, error) {
	if req == nil || len(req.Notes) == 0 {
		return nil, synthesisError(errors.NewStd("no notes to synthesize"), "empty_request")
	}
	if req.Tempo <= 0 {
		return nil, synthesisError(fmt.Errorf("invalid tempo %v", req.Tempo), "invalid_tempo")
	}

	normalized := NormalizeRequest(req)
	log := GetLogger().WithContext(ctx)
	var buf *audiofile.Buffer
	err := p.doTicket(ctx, "synthesize", new(ticket), func() error {
		var err error
		buf, err = p.synthesize(log, normalized)
		return err
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (p *Pipeline) synthesize(log logger.Logger, req *engine.Request) (*audiofile.Buffer, error) {
	if !p.libraryLoaded {
		return nil, synthesisError(errors.NewStd("no voicebank library is loaded"), "library_not_loaded")
	}

	start := time.Now()
	p.publish(Progress{Milestone: state.MilestoneSynthesisStarted, Message: "Synthesizing..."})

	fail := func(err error) (*audiofile.Buffer, error) {
		log.Error("synthesis failed",
			logger.Int("notes", len(req.Notes)),
			logger.Error(err))
		p.publish(Progress{Milestone: state.MilestoneSynthesisFailed, Message: err.Error(), Err: err})
		return nil, err
	}

	wav, err := p.handle.Synthesize(req)
	if err != nil {
		return fail(err)
	}
	buf, err := audiofile.Decode(wav)
	if err != nil {
		return fail(err)
	}

	p.lastBuffer.Store(buf)
	log.Info("synthesis complete",
		logger.Int("notes", len(req.Notes)),
		logger.Float64("duration_ms", buf.DurationMs()),
		logger.Duration("elapsed", time.Since(start)))
	p.publish(Progress{Milestone: state.MilestoneSynthesisComplete, Message: "Synthesis complete!", Buffer: buf})
	return buf, nil
}

func synthesisError(err error, reason string) error {
	return errors.New(err).
		Component("pipeline").
		Category(errors.CategorySynthesis).
		Context("reason", reason).
		Build()
}
