package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/wsynth-go/internal/logger"
)

func TestModuleLogger_Levels(t *testing.T) {
	testCases := []struct {
		name          string
		configLevel   logger.LogLevel
		logFunc       func(l logger.Logger, msg string)
		shouldContain bool
	}{
		{"debug at debug level", logger.LogLevelDebug, func(l logger.Logger, m string) { l.Debug(m) }, true},
		{"debug at info level", logger.LogLevelInfo, func(l logger.Logger, m string) { l.Debug(m) }, false},
		{"info at info level", logger.LogLevelInfo, func(l logger.Logger, m string) { l.Info(m) }, true},
		{"warn at error level", logger.LogLevelError, func(l logger.Logger, m string) { l.Warn(m) }, false},
		{"error at warn level", logger.LogLevelWarn, func(l logger.Logger, m string) { l.Error(m) }, true},
		{"trace at debug level", logger.LogLevelDebug, func(l logger.Logger, m string) { l.Trace(m) }, false},
		{"trace at trace level", logger.LogLevelTrace, func(l logger.Logger, m string) { l.Trace(m) }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log := logger.NewSlogLogger(buf, tc.configLevel)
			tc.logFunc(log, "level check message")
			assert.Equal(t, tc.shouldContain, strings.Contains(buf.String(), "level check message"))
		})
	}
}

func TestModuleLogger_FieldsAndModules(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelDebug).
		Module("studio").
		Module("loader").
		With(logger.String("voicebank", "tsuki"))

	log.Info("file analyzed",
		logger.Int("done", 3),
		logger.Bool("cached", true),
		logger.Float64("ratio", 0.123456),
		logger.Duration("elapsed", 1500*time.Millisecond),
		logger.Error(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "module=studio.loader")
	assert.Contains(t, out, "voicebank=tsuki")
	assert.Contains(t, out, "done=3")
	assert.Contains(t, out, "cached=true")
	assert.Contains(t, out, "ratio=0.123")
	assert.Contains(t, out, "elapsed=1.5s")
	assert.Contains(t, out, "error=boom")
}

func TestModuleLogger_WithContextTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo)

	ctx := logger.WithTraceID(context.Background(), "render-42")
	log.WithContext(ctx).Info("synthesis started")
	assert.Contains(t, buf.String(), "trace_id=render-42")

	buf.Reset()
	log.WithContext(context.Background()).Info("no trace")
	assert.NotContains(t, buf.String(), "trace_id")
}

func TestCentralLogger_FileOutputIsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "wsynth.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
	})
	require.NoError(t, err)

	cl.Module("pipeline").Debug("queue drained", logger.Int("calls", 7))
	require.NoError(t, cl.Flush())
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &record))
	assert.Equal(t, "queue drained", record["msg"])
	assert.Equal(t, "pipeline", record["module"])
	assert.InDelta(t, 7, record["calls"], 0)
}

func TestCentralLogger_ModuleLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wsynth.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "info",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "trace"},
		ModuleLevels: map[string]string{"analysis": "debug"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.Module("analysis").Debug("visible")
	cl.Module("playback").Debug("hidden")
	require.NoError(t, cl.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "visible")
	assert.NotContains(t, string(data), "hidden")
}

func TestNewCentralLogger_Errors(t *testing.T) {
	_, err := logger.NewCentralLogger(nil)
	require.Error(t, err)

	_, err = logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}
