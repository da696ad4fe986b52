package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ferment/internal/driver"
)

func printTimings(cmd *cobra.Command, res *driver.Result) {
	show, err := cmd.Root().PersistentFlags().GetBool("timings")
	if err != nil || !show || res == nil || res.Timer == nil {
		return
	}
	fmt.Fprint(cmd.ErrOrStderr(), res.Timer.Summary())
}
