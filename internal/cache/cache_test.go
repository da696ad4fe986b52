package cache

import (
	"os"
	"path/filepath"
	"testing"

	"ferment/internal/project"
	"ferment/internal/syntax"
)

func TestPutGet(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := Key(project.DigestString("pub struct S { a: u32 }"))
	in := &Entry{
		Path: "lib.rs",
		Items: []*syntax.Item{{
			Kind:   syntax.ItemStruct,
			Name:   "S",
			Public: true,
			Style:  syntax.FieldsNamed,
			Fields: []syntax.Field{{Name: "a", Public: false, Type: syntax.Type{Text: "u32"}}},
		}},
	}
	if err := c.Put(key, in); err != nil {
		t.Fatal(err)
	}
	out, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if len(out.Items) != 1 || out.Items[0].Name != "S" || out.Items[0].Fields[0].Type.Text != "u32" {
		t.Fatalf("unexpected entry: %+v", out.Items)
	}
}

func TestGetMissingAndNil(t *testing.T) {
	var nilCache *Disk
	if _, ok, err := nilCache.Get(project.Digest{}); ok || err != nil {
		t.Fatalf("nil cache: ok=%v err=%v", ok, err)
	}
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(Key(project.DigestString("x"))); ok || err != nil {
		t.Fatalf("missing: ok=%v err=%v", ok, err)
	}
}

func TestCorruptEntryIsError(t *testing.T) {
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	key := Key(project.DigestString("y"))
	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte{0xc1, 0xff}, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := c.Get(key); err == nil {
		t.Fatal("expected decode error")
	}
	if err := c.DropAll(); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Get(key); ok {
		t.Fatal("entry survived DropAll")
	}
}
