package compose

import (
	"context"
	"strings"
	"testing"

	"ferment/internal/diag"
	"ferment/internal/testkit"
)

func composeSrc(t *testing.T, src string) (*Fermentate, *testkit.Analysis) {
	t.Helper()
	a := testkit.Single(t, src)
	a.MustClean(t)
	c := New(Config{Crate: "example"}, a.Ctx, a.Classifier, &diag.BagReporter{Bag: a.Bag})
	f, err := c.Compose(context.Background())
	if err != nil {
		t.Fatalf("compose: %v", err)
	}
	return f, a
}

func mustInfo(t *testing.T, f *Fermentate, key string) *Info {
	t.Helper()
	info := f.Info(key)
	if info == nil {
		var keys []string
		for _, i := range append(append([]*Info(nil), f.Items...), f.Generics...) {
			keys = append(keys, i.Key)
		}
		t.Fatalf("no mirror for %s; have %v", key, keys)
	}
	return info
}

func codes(a *testkit.Analysis) map[diag.Code]int {
	out := make(map[diag.Code]int)
	for _, d := range a.Bag.Items() {
		out[d.Code]++
	}
	return out
}

func bindingNames(bs []Binding) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name
	}
	return out
}

func TestCodeWritesClosingTextVerbatim(t *testing.T) {
	var c code
	c.open("match v {")
	c.block([]string{"1 => 10 % 3,", ""})
	c.close("} // 100%d")
	want := "match v {\n    1 => 10 % 3,\n\n} // 100%d\n"
	if got := c.String(); got != want {
		t.Fatalf("code = %q, want %q", got, want)
	}
}

func TestStructOfPrimitives(t *testing.T) {
	f, _ := composeSrc(t, `
#[ferment_macro::export]
pub struct S { pub a: u32, pub b: u64 }
`)
	info := mustInfo(t, f, "example::S")
	if info.Name != "example_S" || info.Strategy != StrategyStruct {
		t.Fatalf("info = %s %s", info.Name, info.Strategy)
	}
	out := info.Render()
	for _, want := range []string{
		"#[repr(C)]\npub struct example_S {\n    pub a: u32,\n    pub b: u64,\n}\n",
		"impl FFIConversion<crate::S> for example_S {",
		"        crate::S {\n            a: ffi.a,\n            b: ffi.b,\n        }\n",
		"    unsafe fn destroy(ffi: *mut Self) {\n        support::unbox_any(ffi);\n    }\n",
		"pub unsafe extern \"C\" fn example_S_ctor(a: u32, b: u64) -> *mut example_S {",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render lacks %q:\n%s", want, out)
		}
	}
	got := strings.Join(bindingNames(info.Bindings), " ")
	if got != "example_S_ctor example_S_destroy example_S_get_a example_S_get_b" {
		t.Fatalf("bindings = %s", got)
	}
	for _, st := range info.Plan {
		if st.Conv != ConvCopy || st.Releases {
			t.Fatalf("primitive slot %s must be copied and never released: %+v", st.Slot, st)
		}
	}
}

func TestEnumTagsFollowDeclarationOrder(t *testing.T) {
	f, _ := composeSrc(t, `
#[ferment_macro::export]
pub enum E { V0(u32), V1 { x: String }, V2 }
`)
	info := mustInfo(t, f, "example::E")
	out := info.Render()
	for _, want := range []string{
		"pub const example_E_Tag_V0: u32 = 0;",
		"pub const example_E_Tag_V1: u32 = 1;",
		"pub const example_E_Tag_V2: u32 = 2;",
		"pub x: support::OwnedString,",
		"tag => support::invalid_tag(tag),",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render lacks %q:\n%s", want, out)
		}
	}
	destroy := strings.Join(info.Destroy, "\n")
	if !strings.Contains(destroy, "    1 => {\n        let arm = ffi.payload.V1;\n        arm.x.destroy();\n    }") {
		t.Errorf("destroy does not free the string of V1:\n%s", destroy)
	}
	if strings.Contains(out, "pub V2:") {
		t.Fatalf("unit variant must not get a payload arm:\n%s", out)
	}
	var released []string
	for _, st := range info.Plan {
		if st.Releases {
			released = append(released, st.Slot)
		}
	}
	if strings.Join(released, ",") != "V1.x" {
		t.Fatalf("released slots = %v", released)
	}
	want := []Tag{{"V0", 0}, {"V1", 1}, {"V2", 2}}
	if len(info.Tags) != len(want) {
		t.Fatalf("tags = %v", info.Tags)
	}
	for i := range want {
		if info.Tags[i] != want[i] {
			t.Fatalf("tags = %v", info.Tags)
		}
	}
	if !strings.Contains(out, "pub unsafe extern \"C\" fn example_E_ctor(tag: u32, payload: example_E_Payload) -> *mut example_E {") {
		t.Errorf("render lacks the tagged constructor:\n%s", out)
	}
}

func TestOrderedMapParameterIsFlattened(t *testing.T) {
	f, _ := composeSrc(t, `
use std::collections::BTreeMap;

#[ferment_macro::export]
pub fn get(m: BTreeMap<u32, [u8; 32]>) -> String { String::new() }
`)
	if len(f.Functions) != 1 {
		t.Fatalf("functions = %d", len(f.Functions))
	}
	b := f.Functions[0].Binding
	want := `pub unsafe extern "C" fn example_get(keys: *const u32, values: *const [u8; 32], len: usize) -> support::OwnedString`
	if got := b.signature(); got != want {
		t.Fatalf("signature:\n got %s\nwant %s", got, want)
	}
	body := strings.Join(b.Body, "\n")
	if !strings.Contains(body, "support::read_vec(keys, len).into_iter().zip(support::read_vec(values, len))") {
		t.Fatalf("map is not gathered in order:\n%s", body)
	}
	if !strings.HasSuffix(body, "support::OwnedString::new(result)") {
		t.Fatalf("result is not converted outward:\n%s", body)
	}
	if f.Functions[0].Module.String() != "example" {
		t.Fatalf("module = %s", f.Functions[0].Module)
	}
}

func TestTraitObjectBehindOpaqueHandle(t *testing.T) {
	f, _ := composeSrc(t, `
#[ferment_macro::export]
pub trait Provider { fn block_hash(&self, h: u32) -> [u8; 32]; }

#[ferment_macro::opaque]
pub struct Processor { pub provider: Box<dyn Provider> }
`)
	proc := mustInfo(t, f, "example::Processor")
	if proc.Strategy != StrategyOpaque || len(proc.Decl) != 0 {
		t.Fatalf("processor must be a bare handle: %s %v", proc.Strategy, proc.Decl)
	}
	if got := strings.Join(bindingNames(proc.Bindings), " "); got != "example_Processor_destroy" {
		t.Fatalf("processor bindings = %s", got)
	}

	prov := mustInfo(t, f, "example::Provider")
	out := prov.Render()
	for _, want := range []string{
		"pub struct example_Provider {\n" +
			"    pub context: *const std::os::raw::c_void,\n" +
			"    pub block_hash: unsafe extern \"C\" fn(context: *const std::os::raw::c_void, h: u32) -> [u8; 32],\n" +
			"    pub destroy: unsafe extern \"C\" fn(context: *const std::os::raw::c_void),\n" +
			"}\n",
		"impl crate::Provider for example_Provider {",
		"let result = (self.block_hash)(self.context, h);",
		"impl Drop for example_Provider {",
		"impl FFIConversion<Box<dyn crate::Provider>> for example_Provider {",
		"unsafe extern \"C\" fn example_Provider_rs_block_hash(context: *const std::os::raw::c_void, h: u32) -> [u8; 32] {",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render lacks %q:\n%s", want, out)
		}
	}
}

func TestSizedOnlyTraitMethodsStayOffTheVtable(t *testing.T) {
	f, a := composeSrc(t, `
#[ferment_macro::export]
pub trait Provider {
    fn name(&self) -> u32;
    fn make() -> Self where Self: Sized;
    fn boxed(self) -> Box<Self> where Self: Sized { Box::new(self) }
}
`)
	out := mustInfo(t, f, "example::Provider").Render()
	if strings.Contains(out, "<Self") {
		t.Fatalf("Self rendered as a type parameter:\n%s", out)
	}
	for _, bad := range []string{"pub make:", "pub boxed:", "fn boxed", "example_Provider_rs_make"} {
		if strings.Contains(out, bad) {
			t.Errorf("render has %q:\n%s", bad, out)
		}
	}
	for _, want := range []string{"pub name: unsafe extern", "fn make() -> Self {"} {
		if !strings.Contains(out, want) {
			t.Errorf("render lacks %q:\n%s", want, out)
		}
	}
	if n := codes(a)[diag.ClsGenericSkipped]; n != 0 {
		t.Fatalf("sized-only methods are not generic: %v", codes(a))
	}
}

func TestRegisteredMirrorReplacesBuiltin(t *testing.T) {
	f, a := composeSrc(t, `
#[repr(C)]
#[ferment_macro::register(std::time::Duration)]
pub struct DurationFFI { pub secs: u64, pub nanos: u32 }

#[ferment_macro::export]
pub struct Timed { pub d: std::time::Duration, pub all: Vec<std::time::Duration> }
`)
	timed := mustInfo(t, f, "example::Timed")
	if !strings.Contains(strings.Join(timed.Decl, "\n"), "pub d: *mut crate::DurationFFI,") {
		t.Fatalf("decl = %v", timed.Decl)
	}
	for _, g := range f.Generics {
		if strings.Contains(strings.Join(g.Decl, "\n"), "support::Duration") {
			t.Fatalf("builtin duration emitted in %s", g.Name)
		}
	}
	if f.Info("example::DurationFFI") != nil {
		t.Fatalf("registered mirror must not be mirrored again")
	}
	if codes(a)[diag.ClsConversionIncomplete] != 1 {
		t.Fatalf("missing conversions must be reported once: %v", codes(a))
	}
}

func TestCustomConversionClosures(t *testing.T) {
	f, _ := composeSrc(t, `
#[repr(C)]
#[ferment_macro::register(std::time::Duration)]
pub struct DurationFFI { pub secs: u64, pub nanos: u32 }

impl_custom_conversion!(std::time::Duration, DurationFFI,
    |d: &DurationFFI| std::time::Duration::new(d.secs, d.nanos),
    |d: &std::time::Duration| DurationFFI { secs: d.as_secs(), nanos: d.subsec_nanos() });
`)
	var custom *Info
	for _, i := range f.Items {
		if i.Strategy == StrategyCustom {
			custom = i
		}
	}
	if custom == nil {
		t.Fatalf("no custom conversion composed")
	}
	out := custom.Render()
	if !strings.Contains(out, "impl FFIConversion<std::time::Duration> for crate::DurationFFI {") {
		t.Fatalf("render:\n%s", out)
	}
}

func TestCustomConversionAcrossModules(t *testing.T) {
	f, _ := composeSrc(t, `
pub mod ffi {
    #[repr(C)]
    #[ferment_macro::register(std::time::Duration)]
    pub struct DurationFFI { pub secs: u64, pub nanos: u32 }
}

pub mod conv {
    use std::time::Duration;
    use crate::ffi::DurationFFI;

    impl_custom_conversion!(Duration, DurationFFI,
        |d: &DurationFFI| Duration::new(d.secs, d.nanos),
        |d: &Duration| DurationFFI { secs: d.as_secs(), nanos: d.subsec_nanos() });
}
`)
	var custom *Info
	for _, i := range f.Items {
		if i.Strategy == StrategyCustom {
			custom = i
		}
	}
	if custom == nil {
		t.Fatalf("no custom conversion composed")
	}
	out := custom.Render()
	for _, want := range []string{
		"impl FFIConversion<std::time::Duration> for crate::ffi::DurationFFI {",
		"(|d: &crate::ffi::DurationFFI| ::std::time::Duration::new(d.secs, d.nanos))(&*ffi)",
		"(|d: &::std::time::Duration| crate::ffi::DurationFFI { secs: d.as_secs(), nanos: d.subsec_nanos() })(&obj)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render lacks %q:\n%s", want, out)
		}
	}
}

func TestReexportsShareOneMirror(t *testing.T) {
	f, _ := composeSrc(t, `
pub mod a {
    #[ferment_macro::export]
    pub struct X;
}
pub use a::X;
pub use self::X as Y;

#[ferment_macro::export]
pub struct User { pub y: Y, pub x: a::X }
`)
	n := 0
	for _, i := range f.Items {
		if strings.HasSuffix(i.Key, "::X") || strings.HasSuffix(i.Key, "::Y") {
			n++
		}
	}
	if n != 1 {
		t.Fatalf("mirrors for X = %d", n)
	}
	user := mustInfo(t, f, "example::User")
	if len(user.Deps) != 1 || user.Deps[0] != "example::X" {
		t.Fatalf("deps = %v", user.Deps)
	}
	decl := strings.Join(user.Decl, "\n")
	if strings.Count(decl, "*mut crate::fermented::types::example::example_X,") != 2 {
		t.Fatalf("decl = %s", decl)
	}
}

func TestStdSpellingsShareOneMirror(t *testing.T) {
	f, _ := composeSrc(t, `
use std::vec;

#[ferment_macro::export]
pub struct S { pub a: u32 }

#[ferment_macro::export]
pub struct Holder {
    pub short: Vec<S>,
    pub long: std::vec::Vec<S>,
    pub core: alloc::vec::Vec<S>,
    pub module: vec::Vec<S>,
    pub name: std::string::String,
    pub maybe: core::option::Option<String>,
}
`)
	var vecs, opts []string
	for _, g := range f.Generics {
		switch {
		case strings.Contains(g.Key, "Vec"):
			vecs = append(vecs, g.Key)
		case strings.Contains(g.Key, "Option"):
			opts = append(opts, g.Key)
		}
	}
	if len(vecs) != 1 || vecs[0] != "Vec<example::S>" {
		t.Fatalf("vec mirrors = %v", vecs)
	}
	if len(opts) != 1 || opts[0] != "Option<String>" {
		t.Fatalf("option mirrors = %v", opts)
	}
}

func TestGenericInstantiations(t *testing.T) {
	f, _ := composeSrc(t, `
#[ferment_macro::export]
pub struct S { pub a: u32 }

#[ferment_macro::export]
pub struct Holder {
    pub list: Vec<S>,
    pub name: Option<String>,
    pub pair: (u8, String),
    pub outcome: Result<u32, String>,
}

#[ferment_macro::export]
pub fn on(cb: Box<dyn Fn(u32) -> bool>) {}
`)
	byStrategy := make(map[Strategy]*Info)
	for _, g := range f.Generics {
		if !g.Generic() {
			t.Fatalf("%s must live in the generics module", g.Key)
		}
		byStrategy[g.Strategy] = g
	}
	for _, s := range []Strategy{StrategySequence, StrategyOption, StrategyTuple, StrategyResult, StrategyCallback} {
		if byStrategy[s] == nil {
			t.Fatalf("no %s instantiation among %d generics", s, len(f.Generics))
		}
	}
	if got := byStrategy[StrategySequence].Target; got != "Vec<crate::S>" {
		t.Fatalf("sequence target = %s", got)
	}
	cb := byStrategy[StrategyCallback]
	if cb.Name != "Box_dyn_Fn_ARGS_u32_RTRN_bool" {
		t.Fatalf("callback name = %s", cb.Name)
	}
	if !strings.Contains(cb.Render(), "pub caller: unsafe extern \"C\" fn(context: *const std::os::raw::c_void, o_0: u32) -> bool,") {
		t.Fatalf("callback render:\n%s", cb.Render())
	}
	sig := f.Functions[0].Binding.signature()
	if !strings.Contains(sig, "cb: *mut crate::fermented::generics::Box_dyn_Fn_ARGS_u32_RTRN_bool") {
		t.Fatalf("signature = %s", sig)
	}
}

func TestOwnershipPlanIsBalanced(t *testing.T) {
	f, _ := composeSrc(t, `
#[ferment_macro::export]
pub trait Provider { fn name(&self) -> String; }

#[ferment_macro::export]
pub struct Inner { pub label: String }

#[ferment_macro::export]
pub enum Event { Started(Inner), Named { who: String, tags: Vec<String> }, Stopped }

#[ferment_macro::export]
pub struct Outer {
    pub inner: Inner,
    pub events: Vec<Event>,
    pub lookup: std::collections::BTreeMap<String, Option<Inner>>,
    pub provider: Box<dyn Provider>,
}
`)
	all := append(append([]*Info(nil), f.Items...), f.Generics...)
	if len(all) < 6 {
		t.Fatalf("only %d mirrors", len(all))
	}
	for _, info := range all {
		for _, st := range info.Plan {
			if st.Conv.Allocates() && !(st.Restores && st.Releases) {
				t.Errorf("%s.%s allocates (%s) but restores=%v releases=%v", info.Name, st.Slot, st.Conv, st.Restores, st.Releases)
			}
			if !st.Restores {
				t.Errorf("%s.%s is never converted back", info.Name, st.Slot)
			}
		}
	}
}

func bodyOf(t *testing.T, bs []Binding, name string) string {
	t.Helper()
	for _, b := range bs {
		if b.Name == name {
			return strings.Join(b.Body, "\n")
		}
	}
	t.Fatalf("no binding %s in %v", name, bindingNames(bs))
	return ""
}

func TestBorrowedInputsStayWithTheCaller(t *testing.T) {
	f, _ := composeSrc(t, `
#[ferment_macro::export]
pub struct Counter { pub hits: u32, pub label: String }

impl Counter {
    pub fn total(&self) -> u32 { self.hits }
    pub fn bump(&mut self, by: &Counter) { self.hits += by.hits; }
    pub fn rename(&mut self, name: &str) { self.label = name.to_string(); }
    pub fn take(self) -> u32 { self.hits }
}

#[ferment_macro::export]
pub fn peek(c: &Counter, tag: &String) -> u32 { c.hits }
`)
	counter := mustInfo(t, f, "example::Counter")

	total := bodyOf(t, counter.Bindings, "example_Counter_total")
	for _, want := range []string{"ffi_from(support::boxed(std::ptr::read(self_)))", "(&self_tmp)", "support::restore(self_, "} {
		if !strings.Contains(total, want) {
			t.Errorf("total lacks %q:\n%s", want, total)
		}
	}
	if strings.Index(total, "let result =") > strings.Index(total, "support::restore(") {
		t.Errorf("write-back must follow the call:\n%s", total)
	}

	bump := bodyOf(t, counter.Bindings, "example_Counter_bump")
	for _, want := range []string{"let mut self_tmp = ", "(&mut self_tmp, &by_tmp)", "std::ptr::read(by)", "support::restore(by, "} {
		if !strings.Contains(bump, want) {
			t.Errorf("bump lacks %q:\n%s", want, bump)
		}
	}

	rename := bodyOf(t, counter.Bindings, "example_Counter_rename")
	if !strings.Contains(rename, "let name = name.to_owned_string();") || strings.Contains(rename, "into_string") {
		t.Errorf("borrowed str must be copied:\n%s", rename)
	}

	for _, body := range []string{total, bump, rename} {
		if strings.Contains(body, "ffi_from(self_)") || strings.Contains(body, "ffi_from(by)") {
			t.Errorf("borrowed input consumed:\n%s", body)
		}
	}
	if take := bodyOf(t, counter.Bindings, "example_Counter_take"); !strings.Contains(take, "ffi_from(self_)") {
		t.Errorf("owned receiver must be consumed:\n%s", take)
	}

	if len(f.Functions) != 1 {
		t.Fatalf("functions = %d", len(f.Functions))
	}
	peek := strings.Join(f.Functions[0].Binding.Body, "\n")
	for _, want := range []string{"std::ptr::read(c)", "support::restore(c, ", "let tag = tag.to_owned_string();"} {
		if !strings.Contains(peek, want) {
			t.Errorf("peek lacks %q:\n%s", want, peek)
		}
	}
	if strings.Contains(peek, "ffi_from(c)") {
		t.Errorf("borrowed mirror consumed:\n%s", peek)
	}
}

func TestMutableStringBorrowIsRejected(t *testing.T) {
	a := testkit.Single(t, `
#[ferment_macro::export]
pub fn append(s: &mut String) { s.push('!'); }
`)
	c := New(Config{Crate: "example"}, a.Ctx, a.Classifier, &diag.BagReporter{Bag: a.Bag})
	f, err := c.Compose(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(f.Functions) != 0 || codes(a)[diag.ClsUnsupportedType] != 1 {
		t.Fatalf("functions = %d, codes = %v", len(f.Functions), codes(a))
	}
}

func TestMangledCollisionsGetHashSuffix(t *testing.T) {
	f, a := composeSrc(t, `
pub mod a {
    #[ferment_macro::export]
    pub struct B_C { pub v: u8 }
}
pub mod a_B {
    #[ferment_macro::export]
    pub struct C { pub v: u8 }
}
`)
	first := mustInfo(t, f, "example::a::B_C")
	second := mustInfo(t, f, "example::a_B::C")
	if first.Name == second.Name {
		t.Fatalf("both mirrors are named %s", first.Name)
	}
	for _, n := range []string{first.Name, second.Name} {
		if !strings.HasPrefix(n, "example_a_B_C_h") {
			t.Fatalf("name %s lacks the hash suffix", n)
		}
	}
	if codes(a)[diag.EmtNameCollision] != 1 {
		t.Fatalf("collision must be reported once: %v", codes(a))
	}
}

func TestProblemsAreReported(t *testing.T) {
	a := testkit.Single(t, `
#[ferment_macro::export]
pub fn borrowed() -> &'static str { "" }

#[ferment_macro::export]
pub fn generic<T: Clone>(v: T) -> T { v }

#[ferment_macro::export]
pub struct Plain { pub v: u8 }

impl Plain {
    pub fn peek(&self) -> &u8 { &self.v }
    pub fn value(&self) -> u8 { self.v }
}
`)
	c := New(Config{Crate: "example"}, a.Ctx, a.Classifier, &diag.BagReporter{Bag: a.Bag})
	f, err := c.Compose(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	got := codes(a)
	if got[diag.ClsUnsupportedType] != 2 || got[diag.ClsGenericSkipped] != 1 {
		t.Fatalf("codes = %v", got)
	}
	if a.Bag.ErrorCount() != 1 {
		t.Fatalf("only the exported function is an error; got %d errors", a.Bag.ErrorCount())
	}
	if len(f.Functions) != 0 {
		t.Fatalf("functions = %d", len(f.Functions))
	}
	plain := mustInfo(t, f, "example::Plain")
	names := strings.Join(bindingNames(plain.Bindings), " ")
	if !strings.Contains(names, "example_Plain_value") || strings.Contains(names, "example_Plain_peek") {
		t.Fatalf("method bindings = %s", names)
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	src := `
#[ferment_macro::export]
pub struct A { pub list: Vec<B>, pub name: String }
#[ferment_macro::export]
pub struct B { pub flag: Option<bool>, pub pair: (u8, u16) }
#[ferment_macro::export]
pub fn make(a: A, extra: Vec<u32>) -> B { todo!() }
`
	render := func() string {
		f, _ := composeSrc(t, src)
		var b strings.Builder
		for _, i := range append(append([]*Info(nil), f.Items...), f.Generics...) {
			b.WriteString(i.Render())
		}
		for _, fb := range f.Functions {
			b.WriteString(fb.Binding.Render())
		}
		return b.String()
	}
	first := render()
	for range 5 {
		if got := render(); got != first {
			t.Fatalf("compose output changed between runs")
		}
	}
}
