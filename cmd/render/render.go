package render

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/wsynth-go/cmd/play"
	"github.com/tphakala/wsynth-go/internal/conf"
	"github.com/tphakala/wsynth-go/internal/observability"
	"github.com/tphakala/wsynth-go/internal/project"
	"github.com/tphakala/wsynth-go/internal/studio"
	"github.com/tphakala/wsynth-go/internal/voicebank"
)

// Command creates a new render command that synthesizes a project with a voicebank.
func Command() *cobra.Command {
	var (
		output   string
		playBack bool
	)

	cmd := &cobra.Command{
		Use:   "render [voicebank] [project.yaml]",
		Short: "Render a project to a WAV file",
		Long:  `Load a voicebank, synthesize the notes of a project file and write the result as a 16-bit WAV file.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.GetSettings()
			vb, err := voicebank.Load(args[0])
			if err != nil {
				return err
			}
			p, err := project.Load(args[1])
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
			if err := s.LoadVoicebank(cmd.Context(), vb); err != nil {
				return err
			}
			s.OpenProject(p)

			buf, err := s.StartSynthesis(cmd.Context())
			if err != nil {
				return err
			}

			if output == "" {
				output = s.ExportName()
			}
			if err := s.ExportFile(output); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Snapshot().Status)

			if playBack {
				return play.Buffer(cmd.Context(), settings, buf, 0, m.Playback)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Path of the rendered WAV file, defaults to <voicebank>-export.wav")
	cmd.Flags().BoolVarP(&playBack, "play", "p", false, "Play the rendered audio after writing it")

	return cmd
}
