package source

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestFileSetVersioning(t *testing.T) {
	fs := NewFileSet()

	id1 := fs.Add("src/lib.rs", []byte("pub struct A;"), 0)
	id2 := fs.Add("src/./lib.rs", []byte("pub struct B;"), 0)
	if id1 == id2 {
		t.Fatalf("expected distinct ids, got %d twice", id1)
	}
	latest, ok := fs.GetLatest("src/lib.rs")
	if !ok || latest != id2 {
		t.Fatalf("GetLatest = %d,%v want %d", latest, ok, id2)
	}
	if got := string(fs.Get(id1).Content); got != "pub struct A;" {
		t.Fatalf("old version content = %q", got)
	}
}

func TestResolveLineCol(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("lib.rs", []byte("mod a;\npub struct S {\n    x: u32,\n}\n"))

	cases := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{1, 1}},
		{6, LineCol{1, 7}}, // the newline itself
		{7, LineCol{2, 1}},
		{26, LineCol{3, 5}},
	}
	for _, tc := range cases {
		got, _ := fs.Resolve(Span{File: id, Start: tc.off, End: tc.off})
		if got != tc.want {
			t.Fatalf("offset %d: got %+v want %+v", tc.off, got, tc.want)
		}
	}
	if got := fs.Position(Span{File: id, Start: 26, End: 27}); got != "lib.rs:3:5" {
		t.Fatalf("Position = %q", got)
	}
}

func TestGetLine(t *testing.T) {
	f := &File{Content: []byte("a\nbb\nccc")}
	f.LineIdx = buildLineIndex(f.Content)
	for n, want := range map[uint32]string{0: "", 1: "a", 2: "bb", 3: "ccc", 4: ""} {
		if got := f.GetLine(n); got != want {
			t.Fatalf("GetLine(%d) = %q want %q", n, got, want)
		}
	}
}

func TestLoadNormalises(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.rs")
	if err := os.WriteFile(path, []byte("\xEF\xBB\xBFmod a;\r\nmod b;\r\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	fs := NewFileSetWithBase(dir)
	id, err := fs.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f := fs.Get(id)
	if string(f.Content) != "mod a;\nmod b;\n" {
		t.Fatalf("content = %q", f.Content)
	}
	if f.Flags&FileHadBOM == 0 || f.Flags&FileNormalizedCRLF == 0 {
		t.Fatalf("flags = %b", f.Flags)
	}
	if got := fs.Position(Span{File: id, Start: 7}); got != "lib.rs:2:1" {
		t.Fatalf("Position = %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := NewFileSet().Load(filepath.Join(t.TempDir(), "nope.rs")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestConcurrentAdd(t *testing.T) {
	fs := NewFileSet()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fs.AddVirtual("x.rs", []byte("x"))
		}()
	}
	wg.Wait()
	if fs.Len() != 32 {
		t.Fatalf("Len = %d", fs.Len())
	}
}

func TestSpanString(t *testing.T) {
	if got := (Span{File: 2, Start: 5, End: 9}).String(); got != "2:5-9" {
		t.Fatalf("span = %s", got)
	}
	if got := Generated.String(); got != "<generated>" {
		t.Fatalf("generated = %s", got)
	}
	if !(Span{File: 1, Start: 3, End: 3}).Empty() {
		t.Fatalf("zero-width span must be empty")
	}
}
