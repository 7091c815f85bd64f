package main

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/assetpack/assetpack/internal/merge"
)

var warmQuiet bool

func init() {
	cmd := &cobra.Command{
		Use:   "warm <pages.yaml>",
		Short: "Build the artifacts of a list of pages ahead of traffic",
		Long: `The warm command plans every page in the pages file, as a full page request
would render it, and builds the artifacts missing from the cache.

Example:
  assetpack warm -c config.yaml pages.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: runWarm,
	}
	cmd.Flags().BoolVarP(&warmQuiet, "quiet", "q", false, "Do not show progress")
	rootCmd.AddCommand(cmd)
}

func runWarm(cmd *cobra.Command, args []string) error {
	pages, err := loadPages(args[0])
	if err != nil {
		return err
	}

	m, _, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	artifacts, err := m.Artifacts(pages)
	if err != nil {
		return err
	}

	var progress func(merge.Artifact, error)
	if !warmQuiet && !jsonOut {
		bar := progressbar.NewOptions(len(artifacts),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionSetDescription("warming"),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		progress = func(merge.Artifact, error) { _ = bar.Add(1) }
	}

	report, err := m.Warm(cmd.Context(), pages, progress)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(cmd.OutOrStdout(), report)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "built %d, cached %d, failed %d\n", report.Built, report.Cached, report.Failed)
	if report.Failed > 0 {
		return fmt.Errorf("%d artifacts could not be built", report.Failed)
	}
	return nil
}
