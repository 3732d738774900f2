// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("analysis.corecount", 0)
	v.SetDefault("analysis.featurecache.enabled", true)
	v.SetDefault("analysis.featurecache.ttl", 30*time.Minute)

	v.SetDefault("pianoroll.defaultlyric", "あ")
	v.SetDefault("pianoroll.playbackstartmode", StartModeResume)
	v.SetDefault("pianoroll.rerenderonplay", false)

	v.SetDefault("playback.positioninterval", 16*time.Millisecond)
	v.SetDefault("playback.device", "")

	v.SetDefault("project.tempo", 120.0)
	v.SetDefault("project.griddivision", 8)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/wsynth.log")
	v.SetDefault("logging.file_output.level", "debug")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "localhost:9090")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
