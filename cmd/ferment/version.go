package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"ferment/internal/version"
)

var versionFormat string

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show ferment build metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Current()
		switch strings.ToLower(versionFormat) {
		case "pretty":
			version.WritePretty(cmd.OutOrStdout(), info, useColor(cmd, os.Stdout))
			return nil
		case "json":
			return version.WriteJSON(cmd.OutOrStdout(), info)
		default:
			return fmt.Errorf("unsupported format %q (must be pretty or json)", versionFormat)
		}
	},
}
