package studio

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/wsynth-go/internal/analysis"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/state"
	"github.com/tphakala/wsynth-go/internal/voicebank"
)

// LoadVoicebank makes vb the current voicebank: it resets playback, queues
// the reference data load, analyzes every waveform in parallel while the
// load runs, queues the features for caching behind the load, and waits
// for the cache queue to drain. Files that fail analysis or caching are
// counted in the status message. A failed load stops the analysis. When
// the load fails or the analysis batch is aborted the voicebank is not
// made current.
func (s *Studio) LoadVoicebank(ctx context.Context, vb *voicebank.Voicebank) error {
	if vb == nil {
		return errors.New(errors.NewStd("no voicebank given")).
			Component("studio").
			Category(errors.CategoryValidation).
			Build()
	}

	s.loadMu.Lock()
	defer s.loadMu.Unlock()

	pipe, err := s.pipeline()
	if err != nil {
		return err
	}
	start := time.Now()
	ctx, log := traced(ctx)

	if s.clock != nil {
		s.clock.Stop()
	}
	s.mu.Lock()
	s.vb = nil
	caps := s.caps
	s.mu.Unlock()
	s.store.Update(
		state.SetVoicebank(nil),
		state.ResetPlayback(),
		state.SetStatus(fmt.Sprintf("Loading voicebank %q...", vb.Name)))

	action := fmt.Sprintf("loading voicebank %q", vb.Name)
	waitLoad, err := pipe.QueueLoadLibrary(ctx, vb.ReferenceData, vb.PrefixMap)
	if err != nil {
		s.failContext(ctx, action, err)
		return err
	}
	s.setStatus("Loading oto.ini and starting parallel analysis of WAV files...")

	// Analysis needs no library, so it overlaps the load. Cache calls are
	// queued behind the load; a failed load cancels the batch. Queued calls
	// always run, so the load is awaited even after ctx ends.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loadDone := make(chan error, 1)
	go func() {
		err := waitLoad(context.WithoutCancel(ctx))
		if err != nil {
			cancel()
		}
		loadDone <- err
	}()

	jobs := vb.Jobs()
	total := len(jobs)
	processed := 0

	// Files with cached features skip analysis; the rest are keyed by
	// content so their results can be cached.
	pending := jobs
	keys := make(map[string]string)
	if s.features != nil {
		s.features.prune()
		pending = make([]analysis.Job, 0, len(jobs))
		for _, job := range jobs {
			key := contentKey(job.Samples)
			if features, ok := s.features.get(key); ok {
				if err := pipe.SubmitCache(job.SourceID, features); err != nil {
					cancel()
					<-loadDone
					s.failContext(ctx, action, err)
					return err
				}
				processed++
				continue
			}
			keys[job.SourceID] = key
			pending = append(pending, job)
		}
	}
	reused := total - len(pending)

	workers := analysis.PoolSize(s.settings.Analysis.CoreCount, s.cores)
	scheduler := analysis.NewScheduler(analysis.EngineAnalyzer(caps), workers,
		analysis.WithMetrics(s.analysisMetrics()))
	cacheSink := pipe.CacheSink()

	report, runErr := scheduler.Run(runCtx, pending, func(r analysis.Result) {
		processed++
		if r.Kind == analysis.ResultSuccess && s.features != nil {
			s.features.put(keys[r.SourceID], r.Features)
		}
		cacheSink(r)
		s.setStatus(fmt.Sprintf("WAV analysis: %d / %d", processed, total))
	})
	if err := <-loadDone; err != nil {
		s.failContext(ctx, action, err)
		return err
	}
	if runErr != nil {
		log.Error("voicebank load incomplete",
			logger.String("voicebank", vb.Name),
			logger.Int("resolved", processed),
			logger.Int("files", total),
			logger.Error(runErr))
		s.setStatus(fmt.Sprintf("Error: voicebank %q is incomplete, analysis stopped after %d of %d files: %v",
			vb.Name, processed, total, runErr))
		return runErr
	}

	if err := pipe.Flush(ctx); err != nil {
		s.failContext(ctx, action, err)
		return err
	}

	cached, rejected := pipe.CacheStats()
	failed := report.Failed + rejected
	info := vb.Info()
	info.Analyzed = cached

	msg := fmt.Sprintf("Voicebank %q loaded successfully!", vb.Name)
	if failed > 0 {
		msg = fmt.Sprintf("Voicebank %q loaded: %d of %d files ready, %d failed.", vb.Name, cached, total, failed)
	}

	s.mu.Lock()
	s.vb = vb
	s.mu.Unlock()
	s.store.Update(state.SetVoicebank(info), state.SetStatus(msg))

	log.Info("voicebank loaded",
		logger.String("voicebank", vb.Name),
		logger.Int("files", total),
		logger.Int("cached", cached),
		logger.Int("reused", reused),
		logger.Int("failed", failed),
		logger.Int("workers", report.Workers),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

// FeatureCacheStats returns feature cache hits and misses. Both are zero
// when the cache is disabled.
func (s *Studio) FeatureCacheStats() (hits, misses int64) {
	if s.features == nil {
		return 0, 0
	}
	return s.features.stats()
}
