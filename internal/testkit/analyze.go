package testkit

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"ferment/internal/classify"
	"ferment/internal/diag"
	"ferment/internal/resolve"
	"ferment/internal/rustsrc"
	"ferment/internal/scope"
	"ferment/internal/source"
	"ferment/internal/syntax"
)

// Crate is an in-test source package: file name to content, lib.rs at the
// root.
type Crate struct {
	Name    string
	Primary bool
	Files   map[string]string
}

// Analysis holds every stage output up to a sealed context.
type Analysis struct {
	Files      *source.FileSet
	Bag        *diag.Bag
	Syntax     *syntax.Forest
	Scopes     *scope.Forest
	Ctx        *resolve.Context
	Classifier *classify.Classifier
}

// WriteCrate materialises files under a fresh temp dir and returns it.
func WriteCrate(t testing.TB, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// Analyze reads, scopes, indexes and refines the crates, then seals the
// context. Diagnostics are collected in the returned bag, not failed on.
func Analyze(t testing.TB, crates ...Crate) *Analysis {
	t.Helper()
	ctx := context.Background()
	a := &Analysis{Files: source.NewFileSet(), Bag: diag.NewBag(0), Syntax: &syntax.Forest{}}
	reporter := &diag.BagReporter{Bag: a.Bag}

	var trees []*scope.Tree
	for _, c := range crates {
		r := rustsrc.NewReader(a.Files, nil, reporter)
		crate, err := r.ReadCrate(ctx, c.Name, WriteCrate(t, c.Files), c.Primary)
		r.Close()
		if err != nil {
			t.Fatalf("read %s: %v", c.Name, err)
		}
		a.Syntax.Crates = append(a.Syntax.Crates, crate)
		trees = append(trees, scope.Build(ctx, crate, reporter))
	}
	a.Scopes = scope.NewForest(trees...)
	a.Ctx = resolve.New(ctx, a.Scopes, reporter)
	a.Classifier = classify.New(a.Ctx)
	if err := a.Ctx.Refine(ctx, a.Classifier.IsUnknown); err != nil {
		t.Fatalf("refine: %v", err)
	}
	a.Ctx.Seal()
	return a
}

// Single analyses one primary crate named "example" whose lib.rs is src.
func Single(t testing.TB, src string) *Analysis {
	t.Helper()
	return Analyze(t, Crate{Name: "example", Primary: true, Files: map[string]string{"lib.rs": src}})
}

// MustClean fails the test when any error diagnostic was reported.
func (a *Analysis) MustClean(t testing.TB) {
	t.Helper()
	if a.Bag.HasErrors() {
		t.Fatalf("unexpected diagnostics:\n%s", diag.FormatShort(a.Bag.Items(), a.Files, true))
	}
}

// Entry returns the entry at path or fails.
func (a *Analysis) Entry(t testing.TB, path string) *resolve.Entry {
	t.Helper()
	e := a.Ctx.Item(path)
	if e == nil {
		e = a.Ctx.Function(path)
	}
	if e == nil {
		t.Fatalf("no entry for %s", path)
	}
	return e
}
