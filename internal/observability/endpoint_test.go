package observability

import (
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/wsynth-go/internal/conf"
)

func TestNewEndpoint_Disabled(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)

	settings := conf.Defaults()
	settings.Metrics.Enabled = false
	_, err = NewEndpoint(settings, m)
	require.Error(t, err)
}

func TestEndpoint_ServesMetrics(t *testing.T) {
	m, err := NewMetrics()
	require.NoError(t, err)
	m.Analysis.JobStarted()
	m.Analysis.JobFinished(time.Millisecond, nil)

	settings := conf.Defaults()
	settings.Metrics.Enabled = true
	settings.Metrics.Listen = "127.0.0.1:0"

	e, err := NewEndpoint(settings, m)
	require.NoError(t, err)
	assert.Same(t, m, e.GetMetrics())

	var wg sync.WaitGroup
	quit := make(chan struct{})
	require.NoError(t, e.Start(&wg, quit))
	t.Cleanup(func() {
		close(quit)
		wg.Wait()
	})

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + e.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `wsynth_analysis_jobs_total{status="success"} 1`)
	assert.Contains(t, string(body), "wsynth_engine_queue_depth")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestServe_DisabledStillCreatesMetrics(t *testing.T) {
	settings := conf.Defaults()
	settings.Metrics.Enabled = false

	m, stop, err := Serve(settings)
	require.NoError(t, err)
	require.NotNil(t, m)
	require.NotNil(t, m.Playback)
	stop()
}

func TestServe_Enabled(t *testing.T) {
	settings := conf.Defaults()
	settings.Metrics.Enabled = true
	settings.Metrics.Listen = "127.0.0.1:0"

	m, stop, err := Serve(settings)
	require.NoError(t, err)
	require.NotNil(t, m)
	stop()
}
