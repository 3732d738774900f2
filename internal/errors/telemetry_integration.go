// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a new Sentry telemetry reporter
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError reports an enhanced error to Sentry with user paths scrubbed
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || ee.IsReported() {
		return
	}

	message := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := generateErrorTitle(ee)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_title", title)
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.GetContext() {
			if s, ok := value.(string); ok {
				value = scrubMessageForPrivacy(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		level := getErrorLevel(ee.Category)
		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.GetComponent(), string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})

	ee.MarkReported()
}

// generateErrorTitle builds "<Component> <Category title>" for Sentry grouping
func generateErrorTitle(ee *EnhancedError) string {
	var parts []string
	if component := ee.GetComponent(); component != "" && component != ComponentUnknown {
		parts = append(parts, strings.ToUpper(component[:1])+component[1:])
	}
	if title := formatCategoryForTitle(ee.Category); title != "" {
		parts = append(parts, title)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%T", ee.Err)
	}
	return strings.Join(parts, " ")
}

func formatCategoryForTitle(category ErrorCategory) string {
	switch category {
	case CategoryEngineInit:
		return "Engine Initialization Error"
	case CategoryLibraryLoad:
		return "Library Load Error"
	case CategoryAnalysis:
		return "Analysis Error"
	case CategorySynthesis:
		return "Synthesis Error"
	case CategoryPlayback:
		return "Playback Error"
	case CategoryWorker:
		return "Worker Failure"
	case CategoryValidation:
		return "Validation Error"
	case CategoryFileIO:
		return "File I/O Error"
	case CategoryConfiguration:
		return "Configuration Error"
	default:
		return string(category)
	}
}

func getErrorLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryEngineInit, CategoryWorker, CategoryConfiguration:
		return sentry.LevelFatal
	case CategoryAnalysis, CategoryLibraryLoad, CategoryFileIO:
		return sentry.LevelWarning
	case CategoryCancellation:
		return sentry.LevelInfo
	default:
		return sentry.LevelError
	}
}

var (
	telemetryMu             sync.RWMutex
	globalTelemetryReporter TelemetryReporter
)

// SetTelemetryReporter installs the global telemetry reporter; nil disables reporting
func SetTelemetryReporter(reporter TelemetryReporter) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()
	globalTelemetryReporter = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	telemetryMu.RLock()
	defer telemetryMu.RUnlock()
	return globalTelemetryReporter
}

func reportToTelemetry(ee *EnhancedError) {
	if reporter := GetTelemetryReporter(); reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

var (
	// home directories and voicebank paths tend to contain user names
	homePathRegex = regexp.MustCompile(`(/home/|/Users/|[A-Za-z]:\\Users\\)[^/\\\s]+`)
	urlQueryRegex = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
)

// scrubMessageForPrivacy removes user names from paths and query strings from URLs
func scrubMessageForPrivacy(message string) string {
	scrubbed := homePathRegex.ReplaceAllString(message, "${1}[USER]")
	return urlQueryRegex.ReplaceAllString(scrubbed, "$1?[REDACTED]")
}
