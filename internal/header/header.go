// Package header runs the C header generator over the fermented crate.
package header

import (
	"bytes"
	"context"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"ferment/internal/ferr"
	"ferment/internal/trace"
)

// DefaultCommand is used when the configuration names no generator.
const DefaultCommand = "cbindgen"

// Config locates the generator and its inputs.
type Config struct {
	// Command is the generator executable.
	Command string
	// ConfigPath is the generator's own configuration file.
	ConfigPath string
	// Output is the header file to produce.
	Output string
	// CrateDir is the crate root holding Cargo.toml.
	CrateDir string
	// Crate names the crate to process.
	Crate string
}

// Runner executes a command in dir and returns its combined output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner runs the command as a child process.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Args builds the generator command line.
func (c Config) Args() []string {
	var args []string
	if c.ConfigPath != "" {
		args = append(args, "--config", c.ConfigPath)
	}
	if c.Crate != "" {
		args = append(args, "--crate", c.Crate)
	}
	if c.Output != "" {
		args = append(args, "--output", c.Output)
	}
	return args
}

// Generate runs the generator. A failure is an emission error carrying
// the tail of the generator's output.
func Generate(ctx context.Context, cfg Config, run Runner) (err error) {
	ctx, sp := trace.Start(ctx, trace.ScopeStage, "header")
	defer func() {
		detail := ""
		if err != nil {
			detail = err.Error()
		}
		sp.End(detail)
	}()

	if run == nil {
		run = ExecRunner
	}
	command := cfg.Command
	if command == "" {
		command = DefaultCommand
	}
	dir := cfg.CrateDir
	if dir == "" {
		dir = "."
	}
	args := cfg.Args()
	trace.Point(ctx, trace.ScopeStage, "header-exec", command+" "+strings.Join(args, " "))
	out, runErr := run(ctx, dir, command, args...)
	if runErr == nil {
		return nil
	}
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	e := ferr.Wrapf(ferr.KindEmission, runErr, "%s failed in %s", filepath.Base(command), dir)
	if tail := lastLines(string(out), 20); tail != "" {
		e = errors.WithDetail(e, tail)
	}
	return errors.WithHint(e, "check header.config and that "+command+" is installed")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
