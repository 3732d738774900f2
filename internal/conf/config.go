// config.go: settings struct for wsynth and the functions that load it.
package conf

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
	"github.com/tphakala/wsynth-go/internal/errors"
	"github.com/tphakala/wsynth-go/internal/logger"
)

// Playback start modes for the transport.
const (
	StartModeFromStart  = "from_start"  // always play from zero
	StartModeResume     = "resume"      // continue from the last recorded position
	StartModeFromMarker = "from_marker" // play from the user-placed marker
)

// FeatureCacheSettings controls the in-memory cache of analyzed features.
type FeatureCacheSettings struct {
	Enabled bool          // reuse features of unchanged files across library reloads
	TTL     time.Duration // how long cached features are kept
}

// AnalysisSettings contains settings for the waveform analysis worker pool.
type AnalysisSettings struct {
	CoreCount    int                  // configured worker count, 0 for automatic sizing
	FeatureCache FeatureCacheSettings // feature cache settings
}

// PianoRollSettings mirrors the editor preferences that affect rendering and playback.
type PianoRollSettings struct {
	DefaultLyric      string // alias assigned to newly created notes
	PlaybackStartMode string // from_start, resume or from_marker
	ReRenderOnPlay    bool   // synthesize before every play
}

// PlaybackSettings contains transport settings.
type PlaybackSettings struct {
	PositionInterval time.Duration // how often the position is published while playing
	Device           string        // output device name, empty for the system default
}

// ProjectSettings holds defaults for new projects.
type ProjectSettings struct {
	Tempo        float64 // beats per minute
	GridDivision int     // grid cells per beat
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   // expose /metrics
	Listen  string // listen address, e.g. localhost:9090
}

// SentrySettings configures optional error telemetry.
type SentrySettings struct {
	Enabled bool   // report errors to Sentry
	DSN     string // Sentry DSN
}

// Settings contains all configuration options for wsynth.
type Settings struct {
	Debug bool // true to enable debug mode

	Analysis  AnalysisSettings
	PianoRoll PianoRollSettings
	Playback  PlaybackSettings
	Project   ProjectSettings
	Logging   logger.LoggingConfig
	Metrics   MetricsSettings
	Sentry    SentrySettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file and environment variables into the
// global settings instance. configFile may be empty, in which case the
// default search paths are used and a missing file means defaults only.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.GetViper()
	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings, err := unmarshalSettings(v)
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper sets defaults, environment overrides and reads the configuration file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)
	bindEnv(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults")
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read_config").
			Build()
	}

	GetLogger().Info("loaded config file", logger.String("path", v.ConfigFileUsed()))
	return nil
}

func unmarshalSettings(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}
	return settings, nil
}

// GetSettings returns the current settings instance, or defaults when
// Load has not been called.
func GetSettings() *Settings {
	settingsMutex.RLock()
	s := settingsInstance
	settingsMutex.RUnlock()
	if s != nil {
		return s
	}
	return Defaults()
}

// Defaults returns settings populated only from built-in defaults.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// defaults always decode
	_ = v.Unmarshal(settings)
	return settings
}
