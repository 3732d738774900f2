package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tphakala/wsynth-go/cmd/analyze"
	"github.com/tphakala/wsynth-go/cmd/play"
	"github.com/tphakala/wsynth-go/cmd/render"
	"github.com/tphakala/wsynth-go/internal/buildinfo"
	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/telemetry"
)

// RootCommand creates and returns the root command
func RootCommand(build *buildinfo.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "wsynth",
		Short:         "wsynth singing voice synthesizer CLI",
		Version:       build.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	rootCmd.AddCommand(
		render.Command(),
		analyze.Command(),
		play.Command(),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(configFile, build.GetVersion())
	}

	return rootCmd
}

// initialize loads settings and sets up logging and telemetry before any
// subcommand runs. Flags bound to viper take precedence over the file.
func initialize(configFile, version string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return err
	}

	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}
	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	logger.SetGlobal(central)

	return telemetry.InitSentry(settings, version)
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().IntP("cores", "j", 0, "Analysis workers, 0 sizes the pool from the available cores")
	rootCmd.PersistentFlags().String("device", "", "Audio output device name, empty for the system default")

	for key, flag := range map[string]string{
		"debug":              "debug",
		"analysis.corecount": "cores",
		"playback.device":    "device",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flags: %w", err)
		}
	}
	return nil
}
