package resolve_test

import (
	"context"
	"strings"
	"testing"

	"ferment/internal/diag"
	"ferment/internal/scope"
	"ferment/internal/testkit"
	"ferment/internal/typeref"
)

func fieldTypes(t *testing.T, a *testkit.Analysis, path string) []string {
	t.Helper()
	var out []string
	for _, u := range a.Entry(t, path).Fields {
		out = append(out, u.Ref.String())
	}
	return out
}

func TestRefineQualifiesAcrossModules(t *testing.T) {
	a := testkit.Analyze(t, testkit.Crate{Name: "example", Primary: true, Files: map[string]string{
		"lib.rs": `
pub mod model;
pub mod api;
`,
		"model.rs": `
pub mod snapshot;
pub use self::snapshot::LLMQSnapshot;
#[ferment_macro::export]
pub struct Entry { pub v: u8 }
`,
		"model/snapshot.rs": `
#[ferment_macro::export]
pub struct LLMQSnapshot { pub bits: Vec<bool> }
`,
		"api.rs": `
use std::collections::BTreeMap;
use crate::model::{Entry, LLMQSnapshot as Snap};
pub type Snaps = Vec<Snap>;

#[ferment_macro::export]
pub struct Holder {
    pub snaps: Snaps,
    pub by_height: BTreeMap<u32, Entry>,
    pub maybe: Option<super::model::Entry>,
}
`,
	}})
	a.MustClean(t)

	got := fieldTypes(t, a, "example::api::Holder")
	want := []string{
		"Vec<example::model::LLMQSnapshot>",
		"std::collections::BTreeMap<u32, example::model::Entry>",
		"Option<example::model::Entry>",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("fields = %q, want %q", got, want)
	}
	if a.Ctx.Passes() < 1 {
		t.Fatalf("no refinement pass ran")
	}
	snap := a.Entry(t, "example::model::LLMQSnapshot")
	if snap.Path.String() != "example::model::LLMQSnapshot" || !snap.Reachable {
		t.Fatalf("snapshot entry = %v reachable=%v", snap.Path, snap.Reachable)
	}
}

func TestPreludeItemsHaveOneSpelling(t *testing.T) {
	a := testkit.Single(t, `
#[ferment_macro::export]
pub struct Mixed {
    pub a: Vec<String>,
    pub b: std::vec::Vec<std::string::String>,
    pub c: ::alloc::vec::Vec<alloc::string::String>,
    pub d: core::option::Option<std::boxed::Box<u8>>,
    pub e: std::result::Result<u8, ()>,
}
`)
	a.MustClean(t)
	got := fieldTypes(t, a, "example::Mixed")
	want := []string{"Vec<String>", "Vec<String>", "Vec<String>", "Option<Box<u8>>", "Result<u8, ()>"}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("fields = %q, want %q", got, want)
	}
}

func TestUnresolvedTypeIsReportedOnce(t *testing.T) {
	a := testkit.Single(t, `
#[ferment_macro::export]
pub struct Broken { pub m: Missing, pub ok: u32 }

pub struct NotExported { pub m: AlsoMissing }
`)
	items := a.Bag.Items()
	if len(items) != 1 {
		t.Fatalf("want exactly one diagnostic, got:\n%s", diag.FormatShort(items, a.Files, false))
	}
	d := items[0]
	if d.Code != diag.ResUnresolvedType || d.Scope != "example::Broken" || !strings.Contains(d.Message, "Missing") {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
}

// mod a { pub struct X; } pub use a::X; pub use self::X as Y;
func TestReexportCycleCollapsesToOneEntry(t *testing.T) {
	a := testkit.Single(t, `
pub mod a {
    #[ferment_macro::export]
    pub struct X;
}
pub use a::X;
pub use self::X as Y;

#[ferment_macro::export]
pub struct User { pub y: Y, pub x: a::X, pub z: crate::X }
`)
	a.MustClean(t)
	x := a.Entry(t, "example::a::X")
	if x.Path.String() != "example::X" {
		t.Fatalf("canonical = %s", x.Path)
	}
	if a.Ctx.Item("example::Y") != x || a.Ctx.Item("example::X") != x {
		t.Fatalf("every alias must reach the same entry")
	}
	for _, f := range fieldTypes(t, a, "example::User") {
		if f != "example::X" {
			t.Fatalf("field resolved to %s", f)
		}
	}
}

func TestTraitResolverCollectsImplementors(t *testing.T) {
	a := testkit.Single(t, `
#[ferment_macro::export]
pub trait Provider { fn block_hash(&self, h: u32) -> [u8; 32]; }
pub struct A;
pub struct B;
impl Provider for B { fn block_hash(&self, h: u32) -> [u8; 32] { [0; 32] } }
impl Provider for A { fn block_hash(&self, h: u32) -> [u8; 32] { [1; 32] } }
impl A { pub fn new() -> Self { A } }
`)
	a.MustClean(t)
	tr := a.Ctx.Trait("example::Provider")
	if tr == nil || len(tr.Impls) != 2 {
		t.Fatalf("trait impls = %+v", tr)
	}
	if tr.Impls[0].For.String() != "example::A" || tr.Impls[1].For.String() != "example::B" {
		t.Fatalf("implementors must be sorted: %v, %v", tr.Impls[0].For, tr.Impls[1].For)
	}
	if len(tr.Methods) != 1 || tr.Methods[0].Ret.Ref.String() != "[u8; 32]" {
		t.Fatalf("trait methods = %+v", tr.Methods)
	}
	a1 := a.Entry(t, "example::A")
	if len(a1.Methods) != 1 || a1.Methods[0].Ret.Ref.String() != "example::A" {
		t.Fatalf("inherent methods must resolve Self: %+v", a1.Methods)
	}
}

func TestGenericBounds(t *testing.T) {
	a := testkit.Single(t, `
pub trait Hasher {}
#[ferment_macro::export]
pub struct Keyed<K: Hasher, V> where V: Clone { pub k: K, pub v: V }
`)
	a.MustClean(t)
	sc := scope.ParseChain("example::Keyed")
	k, ok := a.Ctx.Bounds(sc, "K")
	if !ok || len(k) != 1 || k[0].String() != "example::Hasher" {
		t.Fatalf("K bounds = %v, %v", k, ok)
	}
	v, ok := a.Ctx.Bounds(sc.Child("field"), "V")
	if !ok || len(v) != 1 || v[0].String() != "Clone" {
		t.Fatalf("V bounds = %v, %v", v, ok)
	}
	if _, ok := a.Ctx.Bounds(sc, "Z"); ok {
		t.Fatalf("unknown parameter must not have bounds")
	}
}

func TestRelaxedBoundsAddNoRequirement(t *testing.T) {
	a := testkit.Single(t, `
fn helper<T: ?Sized>(v: &T) {}

pub struct Slot<T: ?Sized + Clone> { inner: Box<T> }

#[ferment_macro::export]
pub struct Plain { pub v: u32 }
`)
	a.MustClean(t)
	b, ok := a.Ctx.Bounds(scope.ParseChain("example::Slot"), "T")
	if !ok || len(b) != 1 || b[0].String() != "Clone" {
		t.Fatalf("Slot T bounds = %v, %v", b, ok)
	}
	if b, ok := a.Ctx.Bounds(scope.ParseChain("example::helper"), "T"); !ok || len(b) != 0 {
		t.Fatalf("helper T bounds = %v, %v", b, ok)
	}
}

func TestFreeFunctionBoundsRecordedOnce(t *testing.T) {
	a := testkit.Single(t, `
#[ferment_macro::export]
pub fn total<T: Clone + Send>(v: T) -> u32 { 0 }
`)
	b, ok := a.Ctx.Bounds(scope.ParseChain("example::total"), "T")
	if !ok || len(b) != 2 {
		t.Fatalf("total T bounds = %v, %v", b, ok)
	}
}

func TestMalformedTypesOnlyMatterWhenExported(t *testing.T) {
	a := testkit.Single(t, `
pub trait Width<T> {}

fn hidden<T: Width<{ 4 }>>(v: T) {}

struct Private { v: Width<{ 2 }> }

#[ferment_macro::export]
pub fn shown<T: Width<{ 8 }>>(v: T) {}
`)
	items := a.Bag.Items()
	if len(items) != 1 {
		t.Fatalf("want exactly one diagnostic, got:\n%s", diag.FormatShort(items, a.Files, false))
	}
	if d := items[0]; d.Code != diag.SynBadType || d.Scope != "example::shown" {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
}

func TestSizedOnlyTraitMethods(t *testing.T) {
	a := testkit.Single(t, `
#[ferment_macro::export]
pub trait Maker {
    fn id(&self) -> u32;
    fn make() -> Self where Self: Sized;
}
`)
	a.MustClean(t)
	tr := a.Ctx.Trait("example::Maker")
	if tr == nil || len(tr.Methods) != 2 {
		t.Fatalf("trait = %+v", tr)
	}
	id, mk := tr.Methods[0], tr.Methods[1]
	if id.SelfSized || id.Generic {
		t.Fatalf("id: sized=%v generic=%v", id.SelfSized, id.Generic)
	}
	if !mk.SelfSized || mk.Generic {
		t.Fatalf("make: sized=%v generic=%v", mk.SelfSized, mk.Generic)
	}
	if _, ok := a.Ctx.Bounds(mk.Scope, "Self"); ok {
		t.Fatalf("Self must not be a type parameter")
	}
}

func TestRegisteredConversion(t *testing.T) {
	a := testkit.Single(t, `
use std::time::Duration;

#[repr(C)]
#[ferment_macro::register(std::time::Duration)]
pub struct DurationFFI { pub secs: u64, pub nanos: u32 }

ferment_macro::impl_custom_conversion!(Duration, DurationFFI, |f: &DurationFFI| Duration::new(f.secs, f.nanos), |d: &Duration| DurationFFI { secs: d.as_secs(), nanos: d.subsec_nanos() });

#[ferment_macro::export]
pub struct Timed { pub after: Duration, pub core: core::time::Duration }
`)
	a.MustClean(t)
	reg := a.Ctx.Registry().Lookup("std::time::Duration")
	if reg == nil || reg.Mirror.String() != "example::DurationFFI" {
		t.Fatalf("registration = %+v", reg)
	}
	if reg.From != "|f: &crate::DurationFFI| ::std::time::Duration::new(f.secs, f.nanos)" {
		t.Fatalf("from closure = %q", reg.From)
	}
	if reg.To != "|d: &::std::time::Duration| crate::DurationFFI { secs: d.as_secs(), nanos: d.subsec_nanos() }" {
		t.Fatalf("to closure = %q", reg.To)
	}
	for _, f := range fieldTypes(t, a, "example::Timed") {
		if f != "std::time::Duration" {
			t.Fatalf("field = %s", f)
		}
	}
	if a.Ctx.Registry().ByMirror("example::DurationFFI") != reg {
		t.Fatalf("ByMirror mismatch")
	}
}

func TestRegistryConflictFailsLoudly(t *testing.T) {
	a := testkit.Single(t, `
#[repr(C)]
#[ferment_macro::register(std::time::Duration)]
pub struct One { pub secs: u64 }
#[repr(C)]
#[ferment_macro::register(std::time::Duration)]
pub struct Two { pub secs: u64 }
`)
	first, ok := a.Bag.FirstError()
	if !ok || first.Code != diag.ClsRegistryConflict || len(first.Notes) != 1 {
		t.Fatalf("expected a registry conflict with a note, got %+v", a.Bag.Items())
	}
}

func TestRegisteredMirrorMustBeReprC(t *testing.T) {
	a := testkit.Single(t, `
#[repr(Cacheline)]
#[ferment_macro::register(std::time::Duration)]
pub struct Lookalike { pub secs: u64 }

#[repr(align(8), C)]
#[ferment_macro::register(std::time::Instant)]
pub struct Aligned { pub secs: u64 }
`)
	items := a.Bag.Items()
	if len(items) != 1 {
		t.Fatalf("want one warning, got:\n%s", diag.FormatShort(items, a.Files, false))
	}
	if d := items[0]; d.Code != diag.ClsRegisterBadTarget || d.Scope != "example::Lookalike" {
		t.Fatalf("unexpected diagnostic %+v", d)
	}
}

func TestSealedContextRejectsRefine(t *testing.T) {
	a := testkit.Single(t, "pub struct S;")
	defer func() {
		if recover() == nil {
			t.Fatalf("Refine on a sealed context must panic")
		}
	}()
	_ = a.Ctx.Refine(context.Background(), func(typeref.TypeRef, scope.Chain) bool { return false })
}
