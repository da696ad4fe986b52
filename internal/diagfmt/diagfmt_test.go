package diagfmt

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"ferment/internal/diag"
	"ferment/internal/source"
)

func sampleBag(t *testing.T) (*diag.Bag, *source.FileSet) {
	t.Helper()
	fs := source.NewFileSet()
	id := fs.AddVirtual("src/lib.rs", []byte("#[export]\npub struct S { m: Mystery }\n"))
	bag := diag.NewBag(10)
	d := diag.NewError(diag.ResUnresolvedType, source.Span{File: id, Start: 28, End: 35}, "cannot resolve type `Mystery`")
	d.Scope = "example::S"
	d.Hint = "import the type or mark the field's owner opaque"
	bag.Add(d.WithNote(source.Span{File: id, Start: 0, End: 9}, "exported here"))
	return bag, fs
}

func TestPrettyCaretAlignment(t *testing.T) {
	bag, fs := sampleBag(t)
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{ShowNotes: true})

	want := strings.Join([]string{
		"src/lib.rs:2:19: error RES3001: cannot resolve type `Mystery`",
		" 2 | pub struct S { m: Mystery }",
		"   |                   ^^^^^^^",
		"  = in example::S",
		"  note src/lib.rs:1:1: exported here",
		"  hint: import the type or mark the field's owner opaque",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Fatalf("unexpected pretty output:\nwant:\n%s\ngot:\n%s", want, got)
	}
}

func TestPrettyMax(t *testing.T) {
	bag, fs := sampleBag(t)
	bag.Add(diag.NewError(diag.ResUnresolvedType, source.Span{}, "again"))
	var buf bytes.Buffer
	Pretty(&buf, bag, fs, PrettyOpts{Max: 1})
	if !strings.Contains(buf.String(), "... 1 more diagnostics") {
		t.Fatalf("missing truncation line:\n%s", buf.String())
	}
}

func TestJSON(t *testing.T) {
	bag, fs := sampleBag(t)
	var buf bytes.Buffer
	if err := JSON(&buf, bag, fs, JSONOpts{IncludePositions: true, IncludeNotes: true}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	var out DiagnosticsOutput
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 1 {
		t.Fatalf("count = %d", out.Count)
	}
	d := out.Diagnostics[0]
	if d.Code != "RES3001" || d.Scope != "example::S" || d.Location.StartLine != 2 || d.Location.StartCol != 19 {
		t.Fatalf("unexpected diagnostic: %+v", d)
	}
	if len(d.Notes) != 1 || d.Notes[0].Location.StartLine != 1 {
		t.Fatalf("unexpected notes: %+v", d.Notes)
	}
}
