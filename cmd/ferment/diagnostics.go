package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ferment/internal/diagfmt"
	"ferment/internal/driver"
)

// reportDiagnostics renders the run's diagnostics. Pretty output goes to
// stderr; JSON goes to stdout so it can be piped.
func reportDiagnostics(cmd *cobra.Command, res *driver.Result, format string) error {
	if res == nil || res.Bag.Len() == 0 {
		return nil
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	notes, err := cmd.Flags().GetBool("with-notes")
	if err != nil {
		return fmt.Errorf("failed to get with-notes flag: %w", err)
	}
	res.Bag.Sort()
	res.Bag.Dedup()

	if format == "json" {
		return diagfmt.JSON(cmd.OutOrStdout(), res.Bag, res.Files, diagfmt.JSONOpts{
			IncludePositions: true,
			IncludeNotes:     notes,
			Max:              maxDiagnostics,
		})
	}
	if quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet"); quiet && !res.Bag.HasErrors() {
		return nil
	}
	diagfmt.Pretty(cmd.ErrOrStderr(), res.Bag, res.Files, diagfmt.PrettyOpts{
		Color:     useColor(cmd, os.Stderr),
		Context:   1,
		ShowNotes: notes,
		Max:       maxDiagnostics,
	})
	return nil
}
