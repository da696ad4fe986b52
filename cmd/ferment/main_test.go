package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"ferment/internal/testkit"
)

const lib = `
#[ferment_macro::export]
pub struct Point { pub x: i32, pub y: i32 }

#[ferment_macro::export]
pub fn norm(p: Point) -> u64 { 0 }
`

// resetFlags restores every flag to its default so commands can be executed
// repeatedly within one test binary.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--ui", "off", "--color", "off"}, args...))
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeProject(t *testing.T) (manifest, out string) {
	t.Helper()
	root := testkit.WriteCrate(t, map[string]string{"src/lib.rs": lib})
	out = t.TempDir()
	manifest = filepath.Join(root, "ferment.toml")
	body := "[crate]\nname = \"example\"\n\n[output]\ndir = \"" + filepath.ToSlash(out) + "\"\n"
	require.NoError(t, os.WriteFile(manifest, []byte(body), 0o600))
	return manifest, out
}

func TestGenerateThenCheck(t *testing.T) {
	manifest, out := writeProject(t)

	stdout, _, err := runCLI(t, "generate", "--manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, stdout, "generated ")
	assert.FileExists(t, filepath.Join(out, "fermented", "mod.rs"))

	stdout, _, err = runCLI(t, "check", "--manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, stdout, "fermented is up to date")

	require.NoError(t, os.WriteFile(filepath.Join(out, "fermented", "support.rs"), []byte("// edited\n"), 0o600))
	_, stderr, err := runCLI(t, "check", "--manifest", manifest)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "fermented/support.rs is out of date")
}

func TestCheckJSONDiagnostics(t *testing.T) {
	manifest, _ := writeProject(t)
	stdout, _, err := runCLI(t, "check", "--manifest", manifest, "--format", "json")
	require.ErrorIs(t, err, errReported)

	var doc struct {
		Count       int `json:"count"`
		Diagnostics []struct {
			Code string `json:"code"`
		} `json:"diagnostics"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	require.NotZero(t, doc.Count)
	assert.Equal(t, "EMT6005", doc.Diagnostics[0].Code)
}

func TestGenerateWithoutManifest(t *testing.T) {
	src := testkit.WriteCrate(t, map[string]string{"lib.rs": lib})
	out := t.TempDir()
	_, _, err := runCLI(t, "generate", "--quiet", "--crate", "example", "--path", src, "--out", out, "--mod-name", "ffi")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "ffi", "mod.rs"))
}

func TestCrateConflictsWithManifest(t *testing.T) {
	manifest, _ := writeProject(t)
	_, _, err := runCLI(t, "generate", "--manifest", manifest, "--crate", "other")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errReported))
}

func TestDumpFormats(t *testing.T) {
	manifest, _ := writeProject(t)

	stdout, _, err := runCLI(t, "dump", "--manifest", manifest)
	require.NoError(t, err)
	var doc fermentateDump
	require.NoError(t, json.Unmarshal([]byte(stdout), &doc))
	assert.Equal(t, "example", doc.Crate)
	require.NotEmpty(t, doc.Items)
	assert.Equal(t, "example::Point", doc.Items[0].Key)
	assert.Equal(t, "struct", doc.Items[0].Strategy)
	require.Len(t, doc.Functions, 1)
	assert.Equal(t, "example_norm", doc.Functions[0].Binding.Name)

	path := filepath.Join(t.TempDir(), "dump.msgpack")
	_, _, err = runCLI(t, "dump", "--manifest", manifest, "--format", "msgpack", "-o", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded fermentateDump
	require.NoError(t, msgpack.Unmarshal(data, &decoded))
	assert.Equal(t, doc.Crate, decoded.Crate)
	require.Len(t, decoded.Items, len(doc.Items))
	assert.Equal(t, doc.Items[0].Plan, decoded.Items[0].Plan)
	assert.Equal(t, doc.Files, decoded.Files)
}

func TestParseExternal(t *testing.T) {
	name, dir, err := parseExternal("dash-spv=../spv/src")
	require.NoError(t, err)
	assert.Equal(t, "dash-spv", name)
	assert.Equal(t, "../spv/src", dir)

	for _, bad := range []string{"", "dep", "=dir", "dep=", "1dep=dir"} {
		_, _, err := parseExternal(bad)
		assert.Error(t, err, bad)
	}
}

func TestReadUIMode(t *testing.T) {
	mode, err := readUIMode(" ON ")
	require.NoError(t, err)
	assert.Equal(t, uiModeOn, mode)
	assert.True(t, shouldUseTUI(mode))
	assert.False(t, shouldUseTUI(uiModeOff))

	_, err = readUIMode("sometimes")
	assert.Error(t, err)
}

func TestVersionJSON(t *testing.T) {
	stdout, _, err := runCLI(t, "version", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"version"`)
}
