// env.go - environment variable overrides
package conf

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// WSYNTH_ANALYSIS_CORECOUNT=4 overrides analysis.corecount.
const EnvPrefix = "WSYNTH"

// bindEnv enables environment overrides for every configuration key.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}
