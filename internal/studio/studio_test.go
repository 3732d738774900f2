package studio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/wsynth-go/internal/analysis"
	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/engine/enginetest"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/playback"
	"github.com/tphakala/wsynth-go/internal/playback/playbacktest"
	"github.com/tphakala/wsynth-go/internal/project"
	"github.com/tphakala/wsynth-go/internal/state"
	"github.com/tphakala/wsynth-go/internal/studio"
	"github.com/tphakala/wsynth-go/internal/voicebank"
)

type fixture struct {
	st  *studio.Studio
	eng *enginetest.Fake
	out *playbacktest.Output
}

func testSettings(mode string) *conf.Settings {
	s := conf.Defaults()
	s.PianoRoll.PlaybackStartMode = mode
	s.Playback.PositionInterval = time.Hour
	return s
}

func newFixture(t *testing.T, settings *conf.Settings) fixture {
	t.Helper()
	eng := enginetest.New()
	out := playbacktest.New()
	st, err := studio.New(settings,
		studio.WithCapabilities(eng),
		studio.WithOutput(out),
		studio.WithAvailableCores(4))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return fixture{st: st, eng: eng, out: out}
}

// ready returns an initialized studio with a loaded voicebank.
func ready(t *testing.T, settings *conf.Settings, files int) fixture {
	t.Helper()
	f := newFixture(t, settings)
	require.NoError(t, f.st.Initialize())
	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(files)))
	return f
}

func testVoicebank(files int) *voicebank.Voicebank {
	vb := &voicebank.Voicebank{
		ID:            "vb-1",
		Name:          "Teto",
		ReferenceData: []byte("a.wav=a,0,0,0,0,0"),
	}
	for i := range files {
		vb.Waveforms = append(vb.Waveforms, voicebank.File{
			Name: fmt.Sprintf("%02d.wav", i),
			Data: fmt.Appendf(nil, "wav-%d", i),
		})
	}
	return vb
}

func status(f fixture) string {
	return f.st.Snapshot().Status
}

func TestNew_RejectsUnknownStartMode(t *testing.T) {
	t.Parallel()

	_, err := studio.New(testSettings("sideways"), studio.WithCapabilities(enginetest.New()))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestNew_UsesProjectDefaults(t *testing.T) {
	t.Parallel()

	settings := testSettings(conf.StartModeResume)
	settings.Project.Tempo = 90
	settings.Project.GridDivision = 16
	f := newFixture(t, settings)

	snap := f.st.Snapshot()
	assert.InDelta(t, 90.0, snap.Tempo, 1e-9)
	assert.Equal(t, 16, snap.GridDivision)
	assert.Equal(t, "App is not initialized.", snap.Status)
}

func TestInitialize_RetryAfterFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testSettings(conf.StartModeResume))
	f.eng.FailCreate = true

	err := f.st.Initialize()
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryEngineInit))
	assert.True(t, strings.HasPrefix(status(f), "Error:"), status(f))

	f.eng.FailCreate = false
	require.NoError(t, f.st.Initialize())
	assert.Contains(t, status(f), "Engine ready")
	assert.Equal(t, 1, f.eng.LiveInstances())

	require.NoError(t, f.st.Initialize(), "second initialize is a no-op")
	assert.Equal(t, 1, f.eng.LiveInstances())
}

func TestOperationsBeforeInitialize(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testSettings(conf.StartModeResume))

	err := f.st.LoadVoicebank(context.Background(), testVoicebank(1))
	require.ErrorIs(t, err, studio.ErrNotInitialized)
	assert.Equal(t, "Error: Engine was not initialized.", status(f))

	_, err = f.st.StartSynthesis(context.Background())
	require.ErrorIs(t, err, studio.ErrNotInitialized)
}

func TestLoadVoicebank(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 6)
	snap := f.st.Snapshot()

	require.NotNil(t, snap.Voicebank)
	assert.Equal(t, "Teto", snap.Voicebank.Name)
	assert.Equal(t, 6, snap.Voicebank.Files)
	assert.Equal(t, 6, snap.Voicebank.Analyzed)
	assert.Equal(t, `Voicebank "Teto" loaded successfully!`, snap.Status)
	assert.Equal(t, state.MilestoneFileCached, snap.Synthesis.Milestone)
	assert.False(t, snap.Synthesis.InProgress)

	assert.Len(t, f.eng.Cached(), 6)
	assert.Equal(t, 6, f.eng.AnalyzeCalls())
	assert.LessOrEqual(t, f.eng.MaxConcurrentAnalyze(), 2, "pool sized from 4 cores")
	assert.Zero(t, f.eng.Overlaps())
	assert.NotNil(t, f.st.Voicebank())
}

func TestLoadVoicebank_CountsFailures(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testSettings(conf.StartModeResume))
	f.eng.AnalyzeFunc = func(wav []byte) ([]byte, bool) {
		if string(wav) == "wav-1" {
			return nil, false
		}
		return append([]byte("f:"), wav...), true
	}
	f.eng.RejectCache["03.wav"] = true
	require.NoError(t, f.st.Initialize())

	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(5)))

	snap := f.st.Snapshot()
	require.NotNil(t, snap.Voicebank, "per-file failures keep the voicebank usable")
	assert.Equal(t, 3, snap.Voicebank.Analyzed)
	assert.Equal(t, `Voicebank "Teto" loaded: 3 of 5 files ready, 2 failed.`, snap.Status)
}

func TestLoadVoicebank_ReferenceDataRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testSettings(conf.StartModeResume))
	f.eng.RejectReferenceData = true
	require.NoError(t, f.st.Initialize())

	err := f.st.LoadVoicebank(context.Background(), testVoicebank(2))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLibraryLoad))
	assert.Nil(t, f.st.Snapshot().Voicebank)
	assert.True(t, strings.HasPrefix(status(f), "Error:"), status(f))
	assert.Contains(t, status(f), "loading voicebank")

	f.eng.RejectReferenceData = false
	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(2)))
	assert.NotNil(t, f.st.Snapshot().Voicebank)
}

func TestLoadVoicebank_AnalysisOverlapsLoad(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testSettings(conf.StartModeResume))
	var (
		mu    sync.Mutex
		first time.Time
	)
	f.eng.AnalyzeFunc = func(wav []byte) ([]byte, bool) {
		mu.Lock()
		if first.IsZero() {
			first = time.Now()
		}
		mu.Unlock()
		return wav, true
	}
	f.eng.CallDelay = 100 * time.Millisecond
	require.NoError(t, f.st.Initialize())
	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(3)))

	var load enginetest.Call
	var caches []enginetest.Call
	for _, c := range f.eng.Calls() {
		switch c.Op {
		case "load_reference_data":
			load = c
		case "cache_features":
			caches = append(caches, c)
		}
	}
	require.False(t, load.End.IsZero())
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, first.Before(load.End), "analysis starts while reference data is loading")
	require.Len(t, caches, 3)
	for _, c := range caches {
		assert.False(t, c.Start.Before(load.End), "%s cached before the load finished", c.Name)
	}
	assert.Equal(t, 3, f.st.Snapshot().Voicebank.Analyzed)
}

func TestLoadVoicebank_LogsShareTraceID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsynth.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "info"},
	})
	require.NoError(t, err)
	prev := logger.Global()
	logger.SetGlobal(cl)
	t.Cleanup(func() {
		logger.SetGlobal(prev)
		_ = cl.Close()
	})

	f := newFixture(t, testSettings(conf.StartModeResume))
	require.NoError(t, f.st.Initialize())
	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(2)))
	require.NoError(t, cl.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	traces := make(map[string]string)
	for line := range bytes.Lines(data) {
		var record map[string]any
		require.NoError(t, json.Unmarshal(bytes.TrimSpace(line), &record))
		if id, ok := record["trace_id"].(string); ok {
			traces[record["msg"].(string)] = id
		}
	}
	id := traces["voicebank loaded"]
	require.NotEmpty(t, id)
	assert.Equal(t, id, traces["reference data loaded"], "pipeline")
	assert.Equal(t, id, traces["analysis batch started"], "scheduler")
}

func TestLoadVoicebank_AbortedBatchIsIncomplete(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testSettings(conf.StartModeResume))
	f.eng.AnalyzeFunc = func(wav []byte) ([]byte, bool) {
		if string(wav) == "wav-2" {
			panic("analyzer crashed")
		}
		return wav, true
	}
	require.NoError(t, f.st.Initialize())

	err := f.st.LoadVoicebank(context.Background(), testVoicebank(4))
	require.ErrorIs(t, err, analysis.ErrBatchAborted)
	assert.True(t, errors.IsCategory(err, errors.CategoryWorker))
	assert.Nil(t, f.st.Snapshot().Voicebank)
	assert.Nil(t, f.st.Voicebank())
	assert.Contains(t, status(f), "incomplete")
}

func TestLoadVoicebank_ReusesCachedFeatures(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 4)
	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(4)))

	assert.Equal(t, 4, f.eng.AnalyzeCalls(), "unchanged files are not analyzed again")
	assert.Len(t, f.eng.Cached(), 8, "features are still cached into the engine")
	hits, misses := f.st.FeatureCacheStats()
	assert.Equal(t, int64(4), hits)
	assert.Equal(t, int64(4), misses)
	assert.Equal(t, 4, f.st.Snapshot().Voicebank.Analyzed)
}

func TestLoadVoicebank_FeatureCacheDisabled(t *testing.T) {
	t.Parallel()

	settings := testSettings(conf.StartModeResume)
	settings.Analysis.FeatureCache.Enabled = false
	f := ready(t, settings, 3)
	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(3)))

	assert.Equal(t, 6, f.eng.AnalyzeCalls())
	hits, misses := f.st.FeatureCacheStats()
	assert.Zero(t, hits)
	assert.Zero(t, misses)
}

func TestStartSynthesis_NothingToSynthesize(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 1)

	_, err := f.st.StartSynthesis(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Equal(t, "No data to synthesize: load a voicebank and add notes.", status(f))
	assert.Empty(t, f.eng.Requests())
}

func TestStartSynthesis(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 1)
	f.st.Update(
		state.AddNote(f.st.NewNote(62, 2, 1)),
		state.AddNote(f.st.NewNote(60, 1, 1)))

	buf, err := f.st.StartSynthesis(context.Background())
	require.NoError(t, err)
	require.NotNil(t, buf)

	snap := f.st.Snapshot()
	assert.True(t, snap.HasBuffer())
	assert.Same(t, buf, snap.Buffer)
	assert.Equal(t, "Composition is ready for playback.", snap.Status)
	assert.Equal(t, state.MilestoneSynthesisComplete, snap.Synthesis.Milestone)
	assert.False(t, snap.Synthesis.InProgress)

	reqs := f.eng.Requests()
	require.Len(t, reqs, 1)
	require.Len(t, reqs[0].Notes, 2)
	assert.InDelta(t, 500.0, reqs[0].Notes[0].StartTime, 1e-9, "sorted by start, 120 bpm")
	assert.InDelta(t, 1000.0, reqs[0].Notes[1].StartTime, 1e-9)
	assert.Equal(t, "あ", reqs[0].Notes[0].Alias, "default lyric")
	assert.InDelta(t, 3500.0, buf.DurationMs(), 1)
}

func TestStartSynthesis_EngineFailure(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 1)
	f.eng.FailSynthesis = true
	f.st.Update(state.AddNote(f.st.NewNote(60, 0, 1)))

	_, err := f.st.StartSynthesis(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySynthesis))

	snap := f.st.Snapshot()
	assert.Equal(t, state.MilestoneSynthesisFailed, snap.Synthesis.Milestone)
	assert.True(t, strings.HasPrefix(snap.Status, "Error:"), snap.Status)
	assert.False(t, snap.HasBuffer())

	f.eng.FailSynthesis = false
	_, err = f.st.StartSynthesis(context.Background())
	require.NoError(t, err, "synthesis can be retried")
}

func TestStartSynthesis_DeadlineDuringRender(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 1)
	f.st.Update(state.AddNote(f.st.NewNote(60, 0, 1)))
	f.eng.CallDelay = 100 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	buf, err := f.st.StartSynthesis(ctx)

	// The render had started, so its outcome is the one reported; the state
	// must agree with it and not change afterwards.
	require.NoError(t, err)
	require.NotNil(t, buf)
	before := f.st.Snapshot()
	assert.Same(t, buf, before.Buffer)
	assert.Equal(t, "Composition is ready for playback.", before.Status)
	assert.Equal(t, state.MilestoneSynthesisComplete, before.Synthesis.Milestone)

	time.Sleep(150 * time.Millisecond)
	after := f.st.Snapshot()
	assert.Same(t, buf, after.Buffer)
	assert.Equal(t, before.Status, after.Status)
	assert.Len(t, f.eng.Requests(), 1)
}

// rendered returns a studio holding a 4000 ms buffer (2 beats at 120 bpm
// plus the fake engine's 2 s tail).
func rendered(t *testing.T, settings *conf.Settings) fixture {
	t.Helper()
	f := ready(t, settings, 1)
	f.st.Update(state.AddNote(f.st.NewNote(60, 0, 4)))
	_, err := f.st.StartSynthesis(context.Background())
	require.NoError(t, err)
	return f
}

func TestTogglePlayback_FromStart(t *testing.T) {
	t.Parallel()

	f := rendered(t, testSettings(conf.StartModeFromStart))
	require.NoError(t, f.st.SetPlaybackTime(1500))

	require.NoError(t, f.st.TogglePlayback(context.Background()))
	node := f.out.Last()
	require.NotNil(t, node)
	assert.InDelta(t, 0.0, node.OffsetSec, 1e-9)
	assert.True(t, f.st.Snapshot().Playback.IsPlaying)

	f.out.Advance(1)
	node.End()

	snap := f.st.Snapshot()
	assert.False(t, snap.Playback.IsPlaying)
	assert.InDelta(t, 0.0, snap.Playback.PositionMs, 1e-9, "from_start rewinds after the end")
}

func TestTogglePlayback_Resume(t *testing.T) {
	t.Parallel()

	f := rendered(t, testSettings(conf.StartModeResume))
	require.NoError(t, f.st.SetPlaybackTime(1500))

	require.NoError(t, f.st.TogglePlayback(context.Background()))
	assert.InDelta(t, 1.5, f.out.Last().OffsetSec, 1e-9)
	snap := f.st.Snapshot()
	assert.True(t, snap.Playback.IsPlaying)
	assert.InDelta(t, 1500.0, snap.Playback.PositionMs, 1e-6)

	f.out.Advance(0.5)
	require.NoError(t, f.st.TogglePlayback(context.Background()))
	snap = f.st.Snapshot()
	assert.False(t, snap.Playback.IsPlaying)
	assert.InDelta(t, 2000.0, snap.Playback.PositionMs, 1e-6)
	assert.True(t, f.out.Last().Stopped())

	require.NoError(t, f.st.TogglePlayback(context.Background()))
	assert.InDelta(t, 2.0, f.out.Last().OffsetSec, 1e-9)
}

func TestTogglePlayback_ResumeBeyondShorterBuffer(t *testing.T) {
	t.Parallel()

	f := rendered(t, testSettings(conf.StartModeResume))
	require.NoError(t, f.st.SetPlaybackTime(3500))

	short := f.st.NewNote(60, 0, 1)
	f.st.Update(state.ReplaceNotes([]state.Note{short}))
	buf, err := f.st.StartSynthesis(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, buf.DurationMs(), f.st.Snapshot().Playback.PositionMs, 1e-6, "position clamped to new buffer")

	require.NoError(t, f.st.TogglePlayback(context.Background()))
	assert.InDelta(t, 0.0, f.out.Last().OffsetSec, 1e-9, "clamped position is at the end, so play restarts")
}

func TestSetPlaybackTime_FromMarker(t *testing.T) {
	t.Parallel()

	f := rendered(t, testSettings(conf.StartModeFromMarker))

	require.NoError(t, f.st.SetPlaybackTime(-50))
	assert.InDelta(t, 0.0, f.st.Snapshot().MarkerMs, 1e-9)

	require.NoError(t, f.st.SetPlaybackTime(800))
	assert.InDelta(t, 800.0, f.st.Snapshot().MarkerMs, 1e-9)

	require.NoError(t, f.st.TogglePlayback(context.Background()))
	assert.InDelta(t, 0.8, f.out.Last().OffsetSec, 1e-9)

	require.NoError(t, f.st.SetPlaybackTime(3000))
	nodes := f.out.Nodes()
	require.Len(t, nodes, 2, "seek while playing restarts the output")
	assert.True(t, nodes[0].Stopped())
	assert.InDelta(t, 3.0, nodes[1].OffsetSec, 1e-9)

	snap := f.st.Snapshot()
	assert.True(t, snap.Playback.IsPlaying)
	assert.InDelta(t, 3000.0, snap.MarkerMs, 1e-9)

	require.NoError(t, f.st.SetPlaybackTime(99999))
	assert.InDelta(t, 4000.0, f.st.Snapshot().MarkerMs, 1, "clamped to the buffer")
}

func TestSetPlaybackTime_WithoutBuffer(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeFromMarker), 1)
	require.NoError(t, f.st.SetPlaybackTime(500))
	assert.Zero(t, f.st.Snapshot().MarkerMs)
}

func TestTogglePlayback_ReRenderOnPlay(t *testing.T) {
	t.Parallel()

	settings := testSettings(conf.StartModeFromStart)
	settings.PianoRoll.ReRenderOnPlay = true
	f := ready(t, settings, 1)

	err := f.st.TogglePlayback(context.Background())
	require.Error(t, err)
	assert.Equal(t, "No notes to synthesize.", status(f))

	f.st.Update(state.AddNote(f.st.NewNote(60, 0, 1)))
	require.NoError(t, f.st.TogglePlayback(context.Background()))
	assert.Len(t, f.eng.Requests(), 1)
	assert.True(t, f.st.Snapshot().Playback.IsPlaying)

	require.NoError(t, f.st.TogglePlayback(context.Background()))
	require.NoError(t, f.st.TogglePlayback(context.Background()))
	assert.Len(t, f.eng.Requests(), 2, "every play renders again")
}

func TestPlay_WithoutBuffer(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 1)
	err := f.st.Play()
	require.ErrorIs(t, err, playback.ErrNoBuffer)
	assert.Equal(t, "No audio to play. Please synthesize first.", status(f))
}

func TestPlayback_NoOutput(t *testing.T) {
	t.Parallel()

	st, err := studio.New(testSettings(conf.StartModeResume), studio.WithCapabilities(enginetest.New()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.ErrorIs(t, st.TogglePlayback(context.Background()), studio.ErrNoOutput)
	assert.True(t, strings.HasPrefix(st.Snapshot().Status, "Error:"))
	st.Stop()
}

func TestPlay_OutputFailure(t *testing.T) {
	t.Parallel()

	f := rendered(t, testSettings(conf.StartModeResume))
	f.out.StartErr = errors.NewStd("device unplugged")

	err := f.st.TogglePlayback(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPlayback))
	assert.Contains(t, status(f), "device unplugged")
	assert.False(t, f.st.Snapshot().Playback.IsPlaying)
}

func TestLoadVoicebank_ResetsPlayback(t *testing.T) {
	t.Parallel()

	f := rendered(t, testSettings(conf.StartModeResume))
	require.NoError(t, f.st.TogglePlayback(context.Background()))
	node := f.out.Last()

	require.NoError(t, f.st.LoadVoicebank(context.Background(), testVoicebank(1)))
	snap := f.st.Snapshot()
	assert.True(t, node.Stopped())
	assert.False(t, snap.Playback.IsPlaying)
	assert.False(t, snap.HasBuffer())
	assert.Zero(t, snap.Playback.PositionMs)
}

func TestSetStartMode(t *testing.T) {
	t.Parallel()

	f := rendered(t, testSettings(conf.StartModeResume))
	require.Error(t, f.st.SetStartMode("backwards"))
	require.NoError(t, f.st.SetStartMode(playback.StartFromStart))
	assert.Equal(t, playback.StartFromStart, f.st.StartMode())

	require.NoError(t, f.st.TogglePlayback(context.Background()))
	f.out.Last().End()
	assert.Zero(t, f.st.Snapshot().Playback.PositionMs, "restart policy follows the mode")
}

func TestExport(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 1)
	var out bytes.Buffer
	err := f.st.ExportWAV(&out)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryPlayback))
	assert.Equal(t, "No audio to export. Please synthesize first.", status(f))

	f.st.Update(state.AddNote(f.st.NewNote(60, 0, 1)))
	_, err = f.st.StartSynthesis(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.st.ExportWAV(&out))
	decoded, err := audiofile.Decode(out.Bytes())
	require.NoError(t, err)
	assert.Equal(t, f.st.Snapshot().Buffer.Frames(), decoded.Frames())

	assert.Equal(t, "Teto-export.wav", f.st.ExportName())
	path := filepath.Join(t.TempDir(), f.st.ExportName())
	require.NoError(t, f.st.ExportFile(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), info.Size())
}

func TestProjectRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testSettings(conf.StartModeResume))
	p, err := project.Parse([]byte("tempo: 150\nnotes:\n  - {alias: ka, pitch: 64, start_beat: 0, duration_beat: 2}\n"))
	require.NoError(t, err)

	f.st.OpenProject(p)
	snap := f.st.Snapshot()
	assert.InDelta(t, 150.0, snap.Tempo, 1e-9)
	require.Len(t, snap.Notes, 1)
	assert.Equal(t, "ka", snap.Notes[0].Alias)

	path := filepath.Join(t.TempDir(), "song.yaml")
	require.NoError(t, f.st.SaveProject(path))
	loaded, err := project.Load(path)
	require.NoError(t, err)
	assert.InDelta(t, 150.0, loaded.Tempo, 1e-9)
	require.Len(t, loaded.Notes, 1)
	assert.Equal(t, 64, loaded.Notes[0].Pitch)
}

func TestClose_ReleasesEngine(t *testing.T) {
	t.Parallel()

	f := ready(t, testSettings(conf.StartModeResume), 2)
	require.NoError(t, f.st.Close())
	require.NoError(t, f.st.Close())
	assert.Zero(t, f.eng.LiveInstances())
	assert.Equal(t, 1, f.eng.Destroyed())

	require.Error(t, f.st.Initialize(), "a closed studio cannot be restarted")
}
