package classify_test

import (
	"testing"

	"ferment/internal/classify"
	"ferment/internal/scope"
	"ferment/internal/testkit"
	"ferment/internal/typeref"
)

const surface = `
use std::collections::BTreeMap;
use std::sync::Arc;

#[repr(C)]
#[ferment_macro::register(std::time::Duration)]
pub struct DurationFFI { pub secs: u64, pub nanos: u32 }

#[ferment_macro::export]
pub struct S { pub a: u32, pub b: u64 }

#[ferment_macro::opaque]
pub struct Processor { pub provider: Box<dyn Provider> }

#[ferment_macro::export]
pub trait Provider { fn block_hash(&self, h: u32) -> [u8; 32]; }

#[ferment_macro::export]
pub struct Wrapper<T> { pub inner: T }
`

func classifyIn(t *testing.T, a *testkit.Analysis, sc, src string) classify.Model {
	t.Helper()
	return a.Classifier.Classify(typeref.MustParse(src), scope.ParseChain(sc))
}

func TestDispatchOrder(t *testing.T) {
	a := testkit.Single(t, surface)
	a.MustClean(t)

	cases := []struct {
		src  string
		want string
	}{
		{"u32", "Primitive(u32)"},
		{"std::os::raw::c_char", "Primitive(std::os::raw::c_char)"},
		{"String", "KnownDictionary.String(String)"},
		{"&str", "KnownDictionary.str(str)"},
		{"std::time::Duration", "Custom(std::time::Duration)"},
		{"example::S", "Complex(example::S)"},
		{"example::Processor", "Opaque(example::Processor)"},
		{"dyn example::Provider", "Trait(dyn example::Provider)"},
		{"extern \"C\" fn(u32) -> bool", "FnPointer(extern \"C\" fn(u32) -> bool)"},
		{"Box<dyn Fn(u32) -> bool + Send>", "Callback(Box<dyn Fn(u32) -> bool + Send>)"},
		{"&dyn Fn(u32)", "Callback(dyn Fn(u32))"},
		{"Vec<example::S>", "Generic[KnownDictionary.Vec(Vec<example::S>)](Vec<example::S>)"},
		{"[u8; 32]", "Generic[KnownDictionary.Array([u8; 32])]([u8; 32])"},
		{"()", "KnownDictionary.Unit(())"},
		{"example::Wrapper<u8>", "Generic[Complex(example::Wrapper<u8>)](example::Wrapper<u8>)"},
		{"Nope", "Unknown(Nope)"},
	}
	for _, tc := range cases {
		m := classifyIn(t, a, "example", tc.src)
		if got := m.String(); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.src, got, tc.want)
		}
	}
}

func TestWrappersArePeeledAndRemembered(t *testing.T) {
	a := testkit.Single(t, surface)
	m := classifyIn(t, a, "example", "&mut example::S")
	if m.Kind != classify.KindComplex || !m.Borrowed() || m.Wrappers[0] != typeref.WrapRefMut {
		t.Fatalf("model = %s wrappers=%v", m, m.Wrappers)
	}
	p := classifyIn(t, a, "example", "*const u8")
	if p.Kind != classify.KindPrimitive || !p.Pointer() {
		t.Fatalf("model = %s", p)
	}
}

func TestTraitBoundedParameter(t *testing.T) {
	a := testkit.Single(t, surface)
	m := classifyIn(t, a, "example::Wrapper", "T")
	if m.Kind != classify.KindTraitBounded {
		t.Fatalf("T in Wrapper = %s", m)
	}
	if classifyIn(t, a, "example::S", "T").Kind != classify.KindUnknown {
		t.Fatalf("T outside Wrapper must stay unknown")
	}
}

func TestNestedUnknownIsUnresolved(t *testing.T) {
	a := testkit.Single(t, surface)
	m := classifyIn(t, a, "example", "std::collections::BTreeMap<u32, Missing>")
	if m.Kind != classify.KindGeneric || m.Resolved() {
		t.Fatalf("map with unknown value must not be resolved: %s", m)
	}
	if !a.Classifier.IsUnknown(typeref.MustParse("Option<Missing>"), scope.ParseChain("example")) {
		t.Fatalf("IsUnknown must see nested unknowns")
	}
}

func TestUnsupportedIsResolvedButExplained(t *testing.T) {
	a := testkit.Single(t, surface)
	m := classifyIn(t, a, "example", "Option<!>")
	if !m.Resolved() || m.FirstUnsupported() == "" {
		t.Fatalf("never type must be resolved-but-unsupported: %s", m)
	}
}

func TestCachedAfterSeal(t *testing.T) {
	a := testkit.Single(t, surface)
	first := classifyIn(t, a, "example", "Vec<example::S>")
	second := classifyIn(t, a, "example", "Vec<example::S>")
	if first.String() != second.String() {
		t.Fatalf("cached model differs: %s vs %s", first, second)
	}
}
