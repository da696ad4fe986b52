package version

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Build metadata; overridden at link time with -ldflags "-X ferment/internal/version.Version=...".
var (
	Version   = "0.3.0-dev"
	GitCommit = ""
	BuildDate = ""
)

// Info is the serialisable build metadata.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

// Current returns the linked-in build metadata.
func Current() Info {
	return Info{Version: Version, GitCommit: GitCommit, BuildDate: BuildDate}
}

// WritePretty prints `ferment <version>` with optional commit and date lines.
func WritePretty(w io.Writer, info Info, useColor bool) {
	name := color.New(color.FgYellow, color.Bold)
	dim := color.New(color.Faint)
	if useColor {
		name.EnableColor()
		dim.EnableColor()
	} else {
		name.DisableColor()
		dim.DisableColor()
	}
	fmt.Fprintf(w, "%s %s\n", name.Sprint("ferment"), info.Version)
	if info.GitCommit != "" {
		fmt.Fprintf(w, "%s %s\n", dim.Sprint("commit:"), info.GitCommit)
	}
	if info.BuildDate != "" {
		fmt.Fprintf(w, "%s %s\n", dim.Sprint("built: "), info.BuildDate)
	}
}

// WriteJSON prints the metadata as a JSON object.
func WriteJSON(w io.Writer, info Info) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}
