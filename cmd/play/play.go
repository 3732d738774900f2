package play

import (
	"context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"
	"github.com/tphakala/wsynth-go/internal/audiofile"
	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/logger"
	"github.com/tphakala/wsynth-go/internal/observability"
	"github.com/tphakala/wsynth-go/internal/observability/metrics"
	"github.com/tphakala/wsynth-go/internal/playback"
)

// Command creates a new play command for playing a WAV file.
func Command() *cobra.Command {
	var offsetMs float64

	cmd := &cobra.Command{
		Use:   "play [input.wav]",
		Short: "Play a WAV file",
		Long:  `Play a 16-bit WAV file, such as a rendered export, through the audio output.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()
			buf, err := audiofile.ReadFile(args[0])
			if err != nil {
				return err
			}

			m, stop, err := observability.Serve(settings)
			if err != nil {
				return err
			}
			defer stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Playing %s (%.1f s)\n", args[0], buf.Duration().Seconds())
			return Buffer(cmd.Context(), settings, buf, offsetMs, m.Playback)
		},
	}

	cmd.Flags().Float64Var(&offsetMs, "from", 0, "Start position in milliseconds")

	return cmd
}

// Buffer plays buf through the configured output device from offsetMs and
// blocks until playback ends or ctx is done.
func Buffer(ctx context.Context, settings *conf.Settings, buf *audiofile.Buffer, offsetMs float64, m *metrics.PlaybackMetrics) error {
	out, err := playback.NewMalgoOutput(settings.Playback.Device)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Global().Module("cli").Warn("closing audio output failed", logger.Error(err))
		}
	}()

	ended := make(chan struct{})
	var once sync.Once
	clock := playback.NewClock(out,
		playback.WithPositionInterval(settings.Playback.PositionInterval),
		playback.WithMetrics(m),
		playback.WithUpdates(func(st playback.Status) {
			if st.Ended {
				once.Do(func() { close(ended) })
			}
		}))
	defer clock.Close()

	if err := clock.Play(buf, offsetMs); err != nil {
		return err
	}
	select {
	case <-ended:
	case <-ctx.Done():
		clock.Stop()
	}
	return nil
}
