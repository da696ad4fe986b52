package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"ferment/internal/driver"
	"ferment/internal/project"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the fermentate, C header and language wrappers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, driver.ModeGenerate)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the generated output is up to date without writing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPipeline(cmd, driver.ModeCheck)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{generateCmd, checkCmd} {
		addPipelineFlags(cmd)
		cmd.Flags().String("format", "pretty", "diagnostics format (pretty|json)")
		cmd.Flags().Bool("with-notes", true, "include diagnostic notes")
	}
}

func runPipeline(cmd *cobra.Command, mode driver.Mode) (err error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return fmt.Errorf("failed to get format flag: %w", err)
	}
	if format != "pretty" && format != "json" {
		return fmt.Errorf("unknown format %q (expected pretty|json)", format)
	}
	b, err := loadBuilder(cmd)
	if err != nil {
		return err
	}
	cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer func() { cleanup(err != nil) }()

	res, runErr := execute(cmd, b.Options(), mode)
	if err := reportDiagnostics(cmd, res, format); err != nil {
		return err
	}
	printTimings(cmd, res)
	if runErr != nil {
		if res != nil && res.Bag.HasErrors() {
			return errReported
		}
		return runErr
	}
	printSummary(cmd, b.Options(), res, mode)
	return nil
}

func execute(cmd *cobra.Command, opts driver.Options, mode driver.Mode) (*driver.Result, error) {
	tui, err := wantsTUI(cmd)
	if err != nil {
		return nil, err
	}
	if tui {
		return runWithUI(cmd.Context(), cmd.Name()+" "+opts.Crate, opts, mode)
	}
	return driver.Run(cmd.Context(), opts, mode)
}

func printSummary(cmd *cobra.Command, opts driver.Options, res *driver.Result, mode driver.Mode) {
	if quiet, _ := cmd.Root().PersistentFlags().GetBool("quiet"); quiet || res == nil {
		return
	}
	out := cmd.OutOrStdout()
	modName := opts.ModName
	if modName == "" {
		modName = project.DefaultModName
	}
	switch mode {
	case driver.ModeCheck:
		fmt.Fprintf(out, "%s is up to date (%d files)\n", modName, len(res.Output))
	default:
		fmt.Fprintf(out, "generated %d files into %s\n", len(res.Output), filepath.Join(opts.OutDir, modName))
		for _, fe := range opts.Frontends {
			fmt.Fprintf(out, "generated %s wrappers into %s\n", fe.Lang(), filepath.Join(opts.OutDir, fe.Lang()))
		}
	}
	if res.CacheHits+res.CacheMisses > 0 {
		fmt.Fprintf(out, "parse cache: %d hits, %d misses\n", res.CacheHits, res.CacheMisses)
	}
}

