package main

import (
	"fmt"
	"os/exec"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/spf13/cobra"
)

type helper struct {
	role string
	path string
}

func helpers(tunables *pipeline.PipelineConfig) []helper {
	return []helper{
		{"decoder", tunables.Decoder.BinaryPath},
		{"transcoder", tunables.Transcoder.BinaryPath},
		{"downloader", tunables.Downloader.BinaryPath},
		{"recommender", tunables.Recommender.BinaryPath},
	}
}

// doctorCommand checks that the helper processes the engine spawns are installed
func doctorCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check that the external helpers are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tunables, _, err := flags.tunables()
			if err != nil {
				return err
			}

			missing := 0
			out := cmd.OutOrStdout()
			for _, h := range helpers(tunables) {
				resolved, err := exec.LookPath(h.path)
				if err != nil {
					missing++
					fmt.Fprintf(out, "❌ %-12s %s not found\n", h.role, h.path)
					continue
				}
				fmt.Fprintf(out, "✅ %-12s %s\n", h.role, resolved)
			}

			if missing > 0 {
				return fmt.Errorf("%d helper(s) missing", missing)
			}
			return nil
		},
	}
}
