package writer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ferment/internal/compose"
	"ferment/internal/scope"
)

func sample() *compose.Fermentate {
	return &compose.Fermentate{
		Crate:   "example",
		ModName: "fermented",
		Support: "pub fn boxed() {}\n",
		Items: []*compose.Info{
			{
				Key:    "example::model::Entry",
				Name:   "example_model_Entry",
				Module: scope.Chain{"example", "model"},
				Decl:   []string{"#[repr(C)]", "pub struct example_model_Entry {", "    pub v: u8,", "}"},
			},
		},
		Generics: []*compose.Info{
			{Key: "Vec<u8>", Name: "Vec_u8", Decl: []string{"pub struct Vec_u8 {}"}},
		},
		Functions: []compose.FunctionBinding{
			{
				Path:    scope.Chain{"example", "ping"},
				Module:  scope.Chain{"example"},
				Binding: compose.Binding{Name: "example_ping", Body: []string{"crate::ping();"}},
			},
		},
	}
}

func byPath(files []File) map[string]string {
	out := make(map[string]string, len(files))
	for _, f := range files {
		out[f.Path] = f.Content
	}
	return out
}

func TestLayout(t *testing.T) {
	files := Layout(sample())
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	want := "generics/mod.rs mod.rs support.rs types/example/mod.rs types/example/model/mod.rs types/mod.rs"
	if got := strings.Join(paths, " "); got != want {
		t.Fatalf("paths = %s", got)
	}
	m := byPath(files)
	if !strings.Contains(m["types/mod.rs"], "pub mod example;\n") {
		t.Fatalf("types/mod.rs:\n%s", m["types/mod.rs"])
	}
	crate := m["types/example/mod.rs"]
	for _, s := range []string{
		"use crate::fermented::support::{self, FFIConversion};",
		"pub mod model;\n",
		"#[no_mangle]\npub unsafe extern \"C\" fn example_ping() {\n    crate::ping();\n}\n",
	} {
		if !strings.Contains(crate, s) {
			t.Errorf("types/example/mod.rs lacks %q:\n%s", s, crate)
		}
	}
	if !strings.Contains(m["types/example/model/mod.rs"], "pub struct example_model_Entry {") {
		t.Fatalf("model file:\n%s", m["types/example/model/mod.rs"])
	}
	if !strings.Contains(m["generics/mod.rs"], "pub struct Vec_u8 {}") {
		t.Fatalf("generics file:\n%s", m["generics/mod.rs"])
	}
	for p, c := range m {
		if !strings.HasPrefix(c, Banner) {
			t.Errorf("%s has no Banner", p)
		}
	}
}

func TestWriteThenCheckIsClean(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := Layout(sample())
	if err := Write(ctx, dir, "fermented", files); err != nil {
		t.Fatal(err)
	}
	stale, err := Check(ctx, dir, "fermented", files)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale after write: %v", stale)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "fermented" {
		t.Fatalf("temporary directories left behind: %v", entries)
	}
}

func TestWriteReplacesPreviousOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	leftover := filepath.Join(dir, "fermented", "types", "gone", "mod.rs")
	if err := os.MkdirAll(filepath.Dir(leftover), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(leftover, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Write(ctx, dir, "fermented", Layout(sample())); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(leftover); !os.IsNotExist(err) {
		t.Fatalf("leftover survived: %v", err)
	}
}

func TestCheckReportsChangedMissingAndExtraFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := Layout(sample())
	if err := Write(ctx, dir, "fermented", files); err != nil {
		t.Fatal(err)
	}
	root := filepath.Join(dir, "fermented")
	if err := os.WriteFile(filepath.Join(root, "support.rs"), []byte("edited\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(root, "generics", "mod.rs")); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "extra.rs"), []byte("stray\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stale, err := Check(ctx, dir, "fermented", files)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, s := range stale {
		paths = append(paths, s.Path)
	}
	if got := strings.Join(paths, " "); got != "extra.rs generics/mod.rs support.rs" {
		t.Fatalf("stale = %s", got)
	}
	for _, s := range stale {
		if s.Path == "support.rs" && !strings.Contains(s.Diff, "-edited") {
			t.Fatalf("diff:\n%s", s.Diff)
		}
		if s.Path == "extra.rs" && !strings.Contains(s.Diff, "-stray") {
			t.Fatalf("diff:\n%s", s.Diff)
		}
	}
}

func TestCheckWithoutOutputMarksEverythingStale(t *testing.T) {
	files := Layout(sample())
	stale, err := Check(context.Background(), t.TempDir(), "fermented", files)
	if err != nil {
		t.Fatal(err)
	}
	if len(stale) != len(files) {
		t.Fatalf("stale = %d, want %d", len(stale), len(files))
	}
}
