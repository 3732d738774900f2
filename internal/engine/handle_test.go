package engine_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/wsynth-go/internal/engine"
	"github.com/tphakala/wsynth-go/internal/engine/enginetest"
	"github.com/tphakala/wsynth-go/internal/errors"
)

// requireNoLeaks asserts every foreign allocation was released exactly once.
func requireNoLeaks(t *testing.T, fake *enginetest.Fake) {
	t.Helper()
	allocs, results := fake.Outstanding()
	assert.Zero(t, allocs, "argument allocations left")
	assert.Zero(t, results, "result buffers left")
	assert.Zero(t, fake.DoubleFrees(), "double frees")
}

func TestCreate(t *testing.T) {
	t.Run("success and single destroy", func(t *testing.T) {
		fake := enginetest.New()
		h, err := engine.Create(fake)
		require.NoError(t, err)
		assert.Equal(t, 1, fake.LiveInstances())

		require.NoError(t, h.Close())
		require.NoError(t, h.Close())
		assert.Equal(t, 0, fake.LiveInstances())
		assert.Equal(t, 1, fake.Destroyed())
	})

	t.Run("null instance is engine-init", func(t *testing.T) {
		fake := enginetest.New()
		fake.FailCreate = true
		_, err := engine.Create(fake)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryEngineInit))
	})

	t.Run("nil capabilities is engine-init", func(t *testing.T) {
		_, err := engine.Create(nil)
		require.Error(t, err)
		assert.True(t, errors.IsCategory(err, errors.CategoryEngineInit))
	})
}

func TestLoadReferenceDataAndPrefixMap(t *testing.T) {
	fake := enginetest.New()
	h, err := engine.Create(fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.LoadReferenceData([]byte("a.wav=a,0,0,0,0,0")))
	require.NoError(t, h.LoadPrefixMap([]byte("C4\t\t_H")))
	assert.Equal(t, [][]byte{[]byte("a.wav=a,0,0,0,0,0")}, fake.ReferenceData())
	assert.Equal(t, [][]byte{[]byte("C4\t\t_H")}, fake.PrefixMaps())
	requireNoLeaks(t, fake)

	fake.RejectReferenceData = true
	err = h.LoadReferenceData([]byte("broken"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLibraryLoad))

	fake.RejectPrefixMap = true
	err = h.LoadPrefixMap(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLibraryLoad))
	requireNoLeaks(t, fake)
}

func TestCacheFeatures(t *testing.T) {
	fake := enginetest.New()
	fake.RejectCache["bad.wav"] = true
	h, err := engine.Create(fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	require.NoError(t, h.CacheFeatures("ka.wav", []byte{1, 2, 3}))
	require.NoError(t, h.CacheFeatures("empty.wav", nil))

	err = h.CacheFeatures("bad.wav", []byte{9})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryLibraryLoad))
	assert.Contains(t, err.Error(), "bad.wav")

	err = h.CacheFeatures("", []byte{1})
	require.Error(t, err)

	assert.Equal(t, []string{"ka.wav", "empty.wav"}, fake.Cached())
	requireNoLeaks(t, fake)
}

func TestSynthesize(t *testing.T) {
	fake := enginetest.New()
	h, err := engine.Create(fake)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })

	req := &engine.Request{
		Tempo: 120,
		Notes: []engine.NoteInfo{{Alias: "a", Pitch: 60, StartTime: 0, Duration: 500, Velocity: 100, Volume: 100}},
	}
	wav, err := h.Synthesize(req)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(wav[0:4]))

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "a", reqs[0].Notes[0].Alias)
	assert.InDelta(t, 120.0, reqs[0].Tempo, 0)
	requireNoLeaks(t, fake)

	fake.FailSynthesis = true
	_, err = h.Synthesize(req)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategorySynthesis))
	requireNoLeaks(t, fake)
}

func TestClosedHandle(t *testing.T) {
	fake := enginetest.New()
	h, err := engine.Create(fake)
	require.NoError(t, err)
	require.NoError(t, h.Close())

	err = h.LoadReferenceData([]byte("x"))
	require.ErrorIs(t, err, engine.ErrClosed)
	_, err = h.Synthesize(&engine.Request{})
	require.ErrorIs(t, err, engine.ErrClosed)
	assert.Empty(t, fake.ReferenceData())
}

func TestAnalyze(t *testing.T) {
	fake := enginetest.New()

	features, err := engine.Analyze(fake, []byte("wav"))
	require.NoError(t, err)
	assert.Equal(t, []byte("features:wav"), features)
	requireNoLeaks(t, fake)

	fake.AnalyzeFunc = func([]byte) ([]byte, bool) { return nil, false }
	_, err = engine.Analyze(fake, []byte("wav"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryAnalysis))
	requireNoLeaks(t, fake)

	// a zero-length result is still freed
	fake.AnalyzeFunc = func([]byte) ([]byte, bool) { return []byte{}, true }
	features, err = engine.Analyze(fake, nil)
	require.NoError(t, err)
	assert.Empty(t, features)
	requireNoLeaks(t, fake)
}

func TestAnalyze_ReleasesOnPanic(t *testing.T) {
	fake := enginetest.New()
	fake.AnalyzeFunc = func([]byte) ([]byte, bool) { panic("engine fault") }

	assert.Panics(t, func() { _, _ = engine.Analyze(fake, []byte("wav")) })
	requireNoLeaks(t, fake)
}

func TestMarshalRequest(t *testing.T) {
	data, err := engine.MarshalRequest(&engine.Request{
		Tempo: 150,
		Notes: []engine.NoteInfo{{Alias: "ka", Pitch: 62, StartTime: 400, Duration: 200, Flags: "g-5"}},
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.InDelta(t, 150.0, decoded["tempo"], 0)

	notes := decoded["notes"].([]any)
	require.Len(t, notes, 1)
	note := notes[0].(map[string]any)
	assert.Equal(t, "ka", note["alias"])
	assert.InDelta(t, 400.0, note["start_time"], 0)
	assert.InDelta(t, 200.0, note["duration"], 0)
	assert.Equal(t, "g-5", note["flags"])
	assert.Equal(t, []any{}, note["pitchbend"])
}

func TestNativeCapabilitiesWithoutLibrary(t *testing.T) {
	if engine.Linked {
		t.Skip("engine library linked")
	}
	_, err := engine.NativeCapabilities()
	require.ErrorIs(t, err, engine.ErrNotLinked)
	assert.True(t, errors.IsCategory(err, errors.CategoryEngineInit))
}
