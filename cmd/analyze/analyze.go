package analyze

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/observability"
	"github.com/tphakala/wsynth-go/internal/studio"
	"github.com/tphakala/wsynth-go/internal/voicebank"
)

// Command creates a new analyze command for loading and analyzing a voicebank.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [voicebank]",
		Short: "Load and analyze a voicebank",
		Long:  `Load a voicebank directory or zip archive into the engine and analyze every waveform it contains.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()
			vb, err := voicebank.Load(args[0])
			if err != nil {
				return err
			}

			m, stop, err := observability.Serve(settings)
			if err != nil {
				return err
			}
			defer stop()

			s, err := studio.New(settings, studio.WithMetrics(m))
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.Initialize(); err != nil {
				return err
			}
			loadErr := s.LoadVoicebank(cmd.Context(), vb)

			snap := s.Snapshot()
			out := cmd.OutOrStdout()
			if info := snap.Voicebank; info != nil {
				fmt.Fprintf(out, "Name:      %s\n", info.Name)
				fmt.Fprintf(out, "Files:     %d\n", info.Files)
				fmt.Fprintf(out, "Analyzed:  %d\n", info.Analyzed)
			}
			fmt.Fprintln(out, snap.Status)
			return loadErr
		},
	}

	return cmd
}
