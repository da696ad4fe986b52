package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ferment/internal/ferr"
	"ferment/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "ferment",
	Short: "FFI binding generator for Rust packages",
	Long: `ferment scans a package for exported items and emits C-compatible mirrors,
ownership conversions and extern "C" bindings, optionally followed by a C header
and Objective-C or Java wrappers`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// errReported marks a failure whose diagnostics were already printed.
var errReported = errors.New("diagnostics reported")

func init() {
	rootCmd.Version = version.Version

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(versionCmd)

	pf := rootCmd.PersistentFlags()
	pf.String("color", "auto", "colorize output (auto|on|off)")
	pf.Bool("quiet", false, "suppress non-essential output")
	pf.Bool("timings", false, "show timing information")
	pf.Int("max-diagnostics", 100, "maximum number of diagnostics to show")
	pf.String("ui", "auto", "progress UI (auto|on|off)")
	pf.String("trace", "", "trace output file (- for stderr)")
	pf.String("trace-level", "off", "trace verbosity (off|error|phase|detail|debug)")
	pf.String("trace-mode", "stream", "trace storage (stream|ring|both)")
	pf.String("trace-format", "auto", "trace encoding (auto|text|ndjson)")
	pf.Int("trace-ring-size", 4096, "events kept by the ring tracer")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			printError(os.Stderr, err, useColor(rootCmd, os.Stderr))
		}
		os.Exit(1)
	}
}

// printError writes err followed by any hints attached to it.
func printError(w io.Writer, err error, colored bool) {
	label := color.New(color.FgRed, color.Bold)
	hint := color.New(color.FgCyan)
	if colored {
		label.EnableColor()
		hint.EnableColor()
	} else {
		label.DisableColor()
		hint.DisableColor()
	}
	fmt.Fprintf(w, "%s %v\n", label.Sprint("error:"), err)
	for _, h := range ferr.Hints(err) {
		fmt.Fprintf(w, "  %s %s\n", hint.Sprint("hint:"), h)
	}
}

// useColor resolves --color against whether f is a terminal.
func useColor(cmd *cobra.Command, f *os.File) bool {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return false
	}
	switch mode {
	case "on":
		return true
	case "off":
		return false
	default:
		return isTerminal(f)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
