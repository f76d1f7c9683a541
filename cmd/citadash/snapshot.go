package main

import (
	"errors"

	"github.com/spf13/cobra"

	"citadash/internal/capture"
)

func snapshotCmd() *cobra.Command {
	var url, output string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture one PNG screenshot of the dashboard page",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := snapshotOptions(conf)
			if url != "" {
				opts.URL = url
			}
			if output != "" {
				opts.OutputPath = output
			}
			if opts.URL == "" {
				return errors.New("snapshot: no URL; set snapshot.url or pass --url")
			}
			return capture.CapturePNG(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "page to capture (overrides snapshot.url)")
	cmd.Flags().StringVar(&output, "output", "", "PNG output path (overrides snapshot.output)")
	return cmd
}
