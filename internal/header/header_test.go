package header

import (
	"context"
	"errors"
	"strings"
	"testing"

	"ferment/internal/ferr"
)

func TestGenerateBuildsCommandLine(t *testing.T) {
	var gotDir, gotName string
	var gotArgs []string
	run := func(_ context.Context, dir, name string, args ...string) ([]byte, error) {
		gotDir, gotName, gotArgs = dir, name, args
		return nil, nil
	}
	cfg := Config{ConfigPath: "cbindgen.toml", Output: "target/example.h", CrateDir: "/src/example", Crate: "example"}
	if err := Generate(context.Background(), cfg, run); err != nil {
		t.Fatal(err)
	}
	if gotDir != "/src/example" || gotName != DefaultCommand {
		t.Fatalf("ran %s in %s", gotName, gotDir)
	}
	if got := strings.Join(gotArgs, " "); got != "--config cbindgen.toml --crate example --output target/example.h" {
		t.Fatalf("args = %s", got)
	}
}

func TestGenerateFailureIsEmissionError(t *testing.T) {
	run := func(context.Context, string, string, ...string) ([]byte, error) {
		return []byte("WARN: skip\nERROR: cannot find type Foo\n"), errors.New("exit status 1")
	}
	err := Generate(context.Background(), Config{Command: "/opt/bin/cbindgen"}, run)
	if err == nil {
		t.Fatal("expected failure")
	}
	if ferr.KindOf(err) != ferr.KindEmission {
		t.Fatalf("kind = %v", ferr.KindOf(err))
	}
	details := strings.Join(ferr.Details(err), "\n")
	if !strings.Contains(details, "cannot find type Foo") {
		t.Fatalf("details = %q", details)
	}
	if len(ferr.Hints(err)) == 0 {
		t.Fatal("no hint")
	}
}

func TestLastLines(t *testing.T) {
	if got := lastLines("a\nb\nc\n", 2); got != "b\nc" {
		t.Fatalf("lastLines = %q", got)
	}
}
