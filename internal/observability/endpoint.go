package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/logger"
	metricspkg "github.com/tphakala/wsynth-go/internal/observability/metrics"
)

// Endpoint serves the Prometheus /metrics endpoint.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	listener      net.Listener
}

// NewEndpoint creates the metrics endpoint. It returns an error when metrics
// are disabled in settings.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Metrics.Enabled {
		return nil, fmt.Errorf("metrics not enabled in settings")
	}
	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		metrics:       metrics,
	}, nil
}

// Start binds the listen address and serves until quitChan is closed.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) error {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.listenAddress, err)
	}
	e.listener = ln
	e.server = &http.Server{Handler: mux}

	wg.Add(1)
	go func() {
		defer wg.Done()
		GetLogger().Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			GetLogger().Error("metrics HTTP server error", logger.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.gracefulShutdown(quitChan)
	}()
	return nil
}

// Addr returns the bound address, useful when listening on port 0.
func (e *Endpoint) Addr() string {
	if e.listener == nil {
		return e.listenAddress
	}
	return e.listener.Addr().String()
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	GetLogger().Info("stopping metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		GetLogger().Error("metrics server shutdown error", logger.Error(err))
	}
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}

// Serve creates the metrics and, when enabled in settings, starts the
// endpoint. The returned stop function shuts the endpoint down and waits
// for it. Metrics are created even when the endpoint is disabled.
func Serve(settings *conf.Settings) (*Metrics, func(), error) {
	m, err := NewMetrics()
	if err != nil {
		return nil, nil, err
	}
	if !settings.Metrics.Enabled {
		return m, func() {}, nil
	}

	endpoint, err := NewEndpoint(settings, m)
	if err != nil {
		return nil, nil, err
	}
	var wg sync.WaitGroup
	quit := make(chan struct{})
	if err := endpoint.Start(&wg, quit); err != nil {
		return nil, nil, err
	}
	return m, func() {
		close(quit)
		wg.Wait()
	}, nil
}
