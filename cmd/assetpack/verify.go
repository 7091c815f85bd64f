package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "verify <pages.yaml>",
		Short: "Check cached artifacts against their current members",
		Long: `The verify command rebuilds every artifact of the pages file in memory and
compares it with the cached file. Missing artifacts and artifacts whose members
changed without a version bump are reported, the latter with a unified diff.`,
		Args: cobra.ExactArgs(1),
		RunE: runVerify,
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	pages, err := loadPages(args[0])
	if err != nil {
		return err
	}

	m, _, err := newManager(cmd)
	if err != nil {
		return err
	}
	defer m.Close()

	stale, err := m.Verify(cmd.Context(), pages)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, s := range stale {
		if s.Missing {
			fmt.Fprintf(out, "missing %s\n", s.Artifact.Name)
			continue
		}
		fmt.Fprintf(out, "stale %s\n%s", s.Artifact.Name, s.Diff)
	}

	if len(stale) > 0 {
		return fmt.Errorf("%d artifacts are missing or stale", len(stale))
	}
	fmt.Fprintln(out, "all artifacts are up to date")
	return nil
}
