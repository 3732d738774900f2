package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/wsynth-go/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func loadFile(t *testing.T, path string) (*Settings, error) {
	t.Helper()
	v := viper.New()
	if err := initViper(v, path); err != nil {
		return nil, err
	}
	return unmarshalSettings(v)
}

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.Equal(t, 0, s.Analysis.CoreCount)
	assert.True(t, s.Analysis.FeatureCache.Enabled)
	assert.Equal(t, 30*time.Minute, s.Analysis.FeatureCache.TTL)
	assert.Equal(t, StartModeResume, s.PianoRoll.PlaybackStartMode)
	assert.False(t, s.PianoRoll.ReRenderOnPlay)
	assert.Equal(t, 16*time.Millisecond, s.Playback.PositionInterval)
	assert.InDelta(t, 120.0, s.Project.Tempo, 0)
	assert.Equal(t, 8, s.Project.GridDivision)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	assert.False(t, s.Metrics.Enabled)

	require.NoError(t, ValidateSettings(s))
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
analysis:
  corecount: 3
  featurecache:
    ttl: 5m
pianoroll:
  playbackstartmode: from_marker
  rerenderonplay: true
playback:
  positioninterval: 50ms
project:
  tempo: 140
logging:
  default_level: debug
  module_levels:
    analysis: trace
`)

	s, err := loadFile(t, path)
	require.NoError(t, err)

	assert.Equal(t, 3, s.Analysis.CoreCount)
	assert.Equal(t, 5*time.Minute, s.Analysis.FeatureCache.TTL)
	assert.Equal(t, StartModeFromMarker, s.PianoRoll.PlaybackStartMode)
	assert.True(t, s.PianoRoll.ReRenderOnPlay)
	assert.Equal(t, 50*time.Millisecond, s.Playback.PositionInterval)
	assert.InDelta(t, 140.0, s.Project.Tempo, 0)
	assert.Equal(t, 8, s.Project.GridDivision, "unset keys keep their defaults")
	assert.Equal(t, "debug", s.Logging.DefaultLevel)
	assert.Equal(t, "trace", s.Logging.ModuleLevels["analysis"])
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("WSYNTH_ANALYSIS_CORECOUNT", "6")
	t.Setenv("WSYNTH_PIANOROLL_PLAYBACKSTARTMODE", "from_start")

	s, err := loadFile(t, writeConfig(t, "analysis:\n  corecount: 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, s.Analysis.CoreCount)
	assert.Equal(t, StartModeFromStart, s.PianoRoll.PlaybackStartMode)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := loadFile(t, filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	_, err := loadFile(t, writeConfig(t, "pianoroll:\n  playbackstartmode: sideways\n"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, err.Error(), "sideways")
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"defaults", func(*Settings) {}, ""},
		{"negative cores", func(s *Settings) { s.Analysis.CoreCount = -1 }, "analysis.corecount"},
		{"negative ttl", func(s *Settings) { s.Analysis.FeatureCache.TTL = -time.Second }, "featurecache.ttl"},
		{"bad start mode", func(s *Settings) { s.PianoRoll.PlaybackStartMode = "loop" }, "playbackstartmode"},
		{"zero interval", func(s *Settings) { s.Playback.PositionInterval = 0 }, "positioninterval"},
		{"zero tempo", func(s *Settings) { s.Project.Tempo = 0 }, "project.tempo"},
		{"zero grid", func(s *Settings) { s.Project.GridDivision = 0 }, "griddivision"},
		{"bad metrics listen", func(s *Settings) { s.Metrics.Enabled = true; s.Metrics.Listen = "nope" }, "metrics.listen"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "sentry.dsn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(s)
			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ve ValidationError
			require.ErrorAs(t, err, &ve)
			require.Len(t, ve.Errors, 1)
			assert.Contains(t, ve.Errors[0], tt.wantErr)
		})
	}
}

func TestGetDefaultConfigPaths(t *testing.T) {
	paths, err := GetDefaultConfigPaths()
	require.NoError(t, err)
	require.NotEmpty(t, paths)
	assert.Equal(t, ".", paths[0])
}
