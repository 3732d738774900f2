// Package telemetry sets up optional Sentry error reporting.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
)

// InitSentry initializes the Sentry SDK and routes enhanced errors to it.
// It does nothing when Sentry is disabled in settings.
func InitSentry(settings *conf.Settings, version string) error {
	if !settings.Sentry.Enabled {
		GetLogger().Debug("sentry telemetry disabled")
		return nil
	}
	if settings.Sentry.DSN == "" {
		return errors.Newf("sentry enabled without a DSN").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       1.0,
		Debug:            false,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          fmt.Sprintf("wsynth@%s", version),
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	GetLogger().Info("sentry telemetry initialized", logger.String("release", version))
	return nil
}

// applyPrivacyFilters strips host and user identifying data from event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

// Flush waits up to timeout for queued events to be sent.
func Flush(timeout time.Duration) {
	if sentry.CurrentHub().Client() == nil {
		return
	}
	sentry.Flush(timeout)
}

// GetLogger returns the telemetry package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("telemetry")
}
