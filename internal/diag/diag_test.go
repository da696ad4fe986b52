package diag

import (
	"testing"

	"ferment/internal/source"
)

func TestFormatShort(t *testing.T) {
	fs := source.NewFileSet()
	lib := fs.AddVirtual("src/lib.rs", []byte("a\nb\n"))

	diags := []Diagnostic{
		{
			Severity: SevWarning,
			Code:     ClsGenericSkipped,
			Message:  "generic fn skipped",
			Primary:  source.Span{File: lib, Start: 2, End: 3},
		},
		{
			Severity: SevError,
			Code:     ResUnresolvedType,
			Message:  "cannot resolve\n`Foo`",
			Primary:  source.Span{File: lib, Start: 0, End: 1},
			Notes:    []Note{{Span: source.Span{File: lib, Start: 2, End: 3}, Msg: "used here"}},
		},
	}

	want := "error RES3001 src/lib.rs:1:1 cannot resolve `Foo`\n" +
		"warning CLS3103 src/lib.rs:2:1 generic fn skipped\n" +
		"note RES3001 src/lib.rs:2:1 used here"
	if got := FormatShort(diags, fs, true); got != want {
		t.Fatalf("unexpected output:\nwant:\n%s\n\ngot:\n%s", want, got)
	}
}

func TestCodeIDRanges(t *testing.T) {
	cases := map[Code]string{
		SynParseError:       "SYN2001",
		ResUnresolvedType:   "RES3001",
		ClsRegistryConflict: "CLS3102",
		IOReadFailed:        "IO4001",
		PrjManifestInvalid:  "PRJ5002",
		EmtWriteFailed:      "EMT6001",
		UnknownCode:         "E0000",
	}
	for code, want := range cases {
		if got := code.ID(); got != want {
			t.Fatalf("%d.ID() = %s want %s", code, got, want)
		}
	}
}

func TestOnlyErrorsBlock(t *testing.T) {
	for sev, want := range map[Severity]bool{SevInfo: false, SevWarning: false, SevError: true} {
		if sev.Blocks() != want {
			t.Fatalf("%s.Blocks() = %v", sev, !want)
		}
	}
	if got := Severity(9).String(); got != "UNKNOWN" {
		t.Fatalf("out of range severity = %s", got)
	}
}

func TestBagLimitAndMerge(t *testing.T) {
	b := NewBag(1)
	if !b.Add(NewError(SynParseError, source.Span{}, "x")) {
		t.Fatal("first Add rejected")
	}
	if b.Add(NewError(SynParseError, source.Span{}, "y")) {
		t.Fatal("Add beyond limit accepted")
	}
	other := NewBag(4)
	other.Add(New(SevWarning, ClsGenericSkipped, source.Span{}, "w"))
	other.Add(New(SevWarning, ClsGenericSkipped, source.Span{}, "w"))
	b.Merge(other)
	if b.Len() != 3 || b.ErrorCount() != 1 {
		t.Fatalf("len=%d errors=%d", b.Len(), b.ErrorCount())
	}
	b.Dedup()
	if b.Len() != 2 {
		t.Fatalf("after dedup len=%d", b.Len())
	}
}

func TestDedupReporter(t *testing.T) {
	bag := NewBag(10)
	r := NewDedupReporter(&BagReporter{Bag: bag})
	for i := 0; i < 3; i++ {
		ReportError(r, ResUnresolvedType, source.Span{Start: 4, End: 7}, "unresolved `Bar`").InScope("example::a").Emit()
	}
	if bag.Len() != 1 {
		t.Fatalf("len = %d", bag.Len())
	}
	if got := bag.Items()[0].Scope; got != "example::a" {
		t.Fatalf("scope = %q", got)
	}
}
