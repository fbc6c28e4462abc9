package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
	"github.com/latoulicious/TarumaeRadio/pkg/process"
	"github.com/latoulicious/TarumaeRadio/pkg/source"
	"github.com/latoulicious/TarumaeRadio/pkg/track"
	"github.com/spf13/cobra"
)

// bytes of one second of f32le stereo PCM
const pcmBytesPerSecond = track.SampleRate * track.Channels * 4

type probeResult struct {
	URI       string   `json:"uri"`
	Backend   string   `json:"backend"`
	Title     string   `json:"title"`
	Artist    string   `json:"artist,omitempty"`
	Duration  string   `json:"duration,omitempty"`
	SeedID    string   `json:"seed_id,omitempty"`
	Followups []string `json:"followups,omitempty"`
	Decoded   string   `json:"decoded"`
}

func probeCommand(flags *rootFlags) *cobra.Command {
	var seconds int

	cmd := &cobra.Command{
		Use:   "probe <uri>",
		Short: "Materialize one URI and print what would be played",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tunables, logger, err := flags.tunables()
			if err != nil {
				return err
			}

			metrics := pipeline.NewMetrics(nil)
			dispatcher := source.NewDispatcher(tunables, process.NewChain(tunables, logger, metrics), nil, logger, metrics)

			t, err := dispatcher.Materialize(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer t.Stream.Close()

			n, err := io.CopyN(io.Discard, t.Stream, int64(seconds)*pcmBytesPerSecond)
			if err != nil && err != io.EOF {
				return err
			}

			res := probeResult{
				URI:       t.URI,
				Backend:   t.Backend.String(),
				Title:     t.Metadata.DisplayTitle(),
				Artist:    t.Metadata.Artist,
				SeedID:    t.Metadata.SeedID(),
				Followups: t.Followups,
				Decoded:   (time.Duration(n) * time.Second / pcmBytesPerSecond).String(),
			}
			if t.Metadata.Duration > 0 {
				res.Duration = t.Metadata.Duration.String()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().IntVar(&seconds, "seconds", 5, "Seconds of audio to decode")
	return cmd
}
