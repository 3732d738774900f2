// conf/validate.go

package conf

import (
	"fmt"
	"net"
	"time"

	"github.com/tphakala/wsynth-go/internal/errors"
)

const (
	maxTempo             = 1000.0
	minPositionInterval  = time.Millisecond
	maxReasonableWorkers = 256
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateAnalysisSettings(&settings.Analysis); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validatePianoRollSettings(&settings.PianoRoll); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validatePlaybackSettings(&settings.Playback); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateProjectSettings(&settings.Project); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateMetricsSettings(&settings.Metrics); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAnalysisSettings(s *AnalysisSettings) error {
	if s.CoreCount < 0 || s.CoreCount > maxReasonableWorkers {
		return errors.Newf("analysis.corecount must be between 0 and %d, got %d", maxReasonableWorkers, s.CoreCount).
			Category(errors.CategoryValidation).
			Build()
	}
	if s.FeatureCache.TTL < 0 {
		return errors.Newf("analysis.featurecache.ttl must not be negative").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validatePianoRollSettings(s *PianoRollSettings) error {
	switch s.PlaybackStartMode {
	case StartModeFromStart, StartModeResume, StartModeFromMarker:
		return nil
	default:
		return errors.Newf("pianoroll.playbackstartmode must be one of %s, %s, %s; got %q",
			StartModeFromStart, StartModeResume, StartModeFromMarker, s.PlaybackStartMode).
			Category(errors.CategoryValidation).
			Build()
	}
}

func validatePlaybackSettings(s *PlaybackSettings) error {
	if s.PositionInterval < minPositionInterval {
		return errors.Newf("playback.positioninterval must be at least %s, got %s", minPositionInterval, s.PositionInterval).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateProjectSettings(s *ProjectSettings) error {
	if s.Tempo <= 0 || s.Tempo > maxTempo {
		return errors.Newf("project.tempo must be in (0, %g], got %g", maxTempo, s.Tempo).
			Category(errors.CategoryValidation).
			Build()
	}
	if s.GridDivision <= 0 {
		return errors.Newf("project.griddivision must be positive, got %d", s.GridDivision).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

func validateMetricsSettings(s *MetricsSettings) error {
	if !s.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		return errors.New(fmt.Errorf("metrics.listen %q is not a host:port address: %w", s.Listen, err)).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}
