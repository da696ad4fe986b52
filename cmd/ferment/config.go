package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"ferment/internal/driver"
	"ferment/internal/project"
)

// addPipelineFlags registers the flags shared by every command that runs
// the generator.
func addPipelineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("manifest", "", "path to ferment.toml (default: search upward from the working directory)")
	f.String("crate", "", "primary package name when no manifest is used")
	f.String("path", "src", "directory holding the package's lib.rs when no manifest is used")
	f.String("mod-name", "", "name of the emitted module (default: manifest value or fermented)")
	f.String("out", "", "output directory (default: manifest value or the package directory)")
	f.StringArray("external", nil, "extra package to scan, as name=dir (repeatable)")
	f.String("cache-dir", "", "enable the parse cache in this directory")
	f.Int("jobs", 0, "max parallel workers (0=auto)")
}

// loadBuilder assembles the pipeline configuration from the manifest, or
// from --crate and --path when there is none, then applies flag overrides.
func loadBuilder(cmd *cobra.Command) (*driver.Builder, error) {
	flags := cmd.Flags()
	manifestPath, err := flags.GetString("manifest")
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest flag: %w", err)
	}
	crate, err := flags.GetString("crate")
	if err != nil {
		return nil, fmt.Errorf("failed to get crate flag: %w", err)
	}

	var m *project.Manifest
	if manifestPath != "" {
		if m, err = project.LoadFile(manifestPath); err != nil {
			return nil, err
		}
	} else if crate == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		var found bool
		if m, found, err = project.Load(cwd); err != nil {
			return nil, err
		} else if !found {
			return nil, fmt.Errorf("no %s found; pass --manifest or --crate", project.ManifestName)
		}
	}

	var b *driver.Builder
	if m != nil {
		if crate != "" || flags.Changed("path") {
			return nil, fmt.Errorf("--crate and --path cannot be combined with %s", m.Path)
		}
		b = driver.FromManifest(m)
	} else {
		dir, err := flags.GetString("path")
		if err != nil {
			return nil, fmt.Errorf("failed to get path flag: %w", err)
		}
		if dir, err = filepath.Abs(dir); err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
		}
		b = driver.NewBuilder(crate, dir)
	}

	if v, _ := flags.GetString("mod-name"); v != "" {
		b.WithModName(v)
	}
	if v, _ := flags.GetString("out"); v != "" {
		b.WithOutDir(v)
	}
	if v, _ := flags.GetString("cache-dir"); v != "" {
		b.WithCache(v)
	}
	externals, err := flags.GetStringArray("external")
	if err != nil {
		return nil, fmt.Errorf("failed to get external flag: %w", err)
	}
	for _, e := range externals {
		name, dir, err := parseExternal(e)
		if err != nil {
			return nil, err
		}
		b.WithExternal(name, dir)
	}
	jobs, err := flags.GetInt("jobs")
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs flag: %w", err)
	}
	maxDiagnostics, err := cmd.Root().PersistentFlags().GetInt("max-diagnostics")
	if err != nil {
		return nil, fmt.Errorf("failed to get max-diagnostics flag: %w", err)
	}
	return b.WithJobs(jobs).WithMaxDiagnostics(maxDiagnostics), nil
}

func parseExternal(v string) (name, dir string, err error) {
	name, dir, ok := strings.Cut(v, "=")
	name, dir = strings.TrimSpace(name), strings.TrimSpace(dir)
	if !ok || name == "" || dir == "" {
		return "", "", fmt.Errorf("invalid --external %q (expected name=dir)", v)
	}
	if !project.IsValidIdent(project.CrateIdent(name)) {
		return "", "", fmt.Errorf("invalid --external name %q", name)
	}
	return name, dir, nil
}
