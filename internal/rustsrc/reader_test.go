package rustsrc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ferment/internal/cache"
	"ferment/internal/diag"
	"ferment/internal/source"
	"ferment/internal/syntax"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	}
	return dir
}

func readCrate(t *testing.T, dir string, c *cache.Disk) (*syntax.Crate, *diag.Bag, *Reader) {
	t.Helper()
	bag := diag.NewBag(0)
	r := NewReader(source.NewFileSet(), c, &diag.BagReporter{Bag: bag})
	t.Cleanup(r.Close)
	crate, err := r.ReadCrate(context.Background(), "example", dir, true)
	require.NoError(t, err)
	return crate, bag, r
}

func find(items []*syntax.Item, kind syntax.ItemKind, name string) *syntax.Item {
	for _, it := range items {
		if it.Kind == kind && it.Name == name {
			return it
		}
	}
	return nil
}

const libRS = `
#![allow(dead_code)]
extern crate dash_spv as spv;

pub mod model;
mod inline_mod {
    pub mod deeper;
}

use std::collections::{BTreeMap, HashSet as Set};
pub use model::*;

#[ferment_macro::export]
#[derive(Clone, Debug)]
pub struct S<T: Clone> where T: Send {
    pub a: u32,
    #[doc = "b"]
    b: Vec<T>,
}

#[ferment_macro::export]
pub struct Pair(pub u8, String);

#[ferment_macro::opaque]
pub struct Unit;

#[ferment_macro::export]
pub enum E { V0(u32), V1 { x: String }, V2 = 7 }

#[ferment_macro::export]
pub trait Provider: Send {
    fn block_hash(&self, h: u32) -> [u8; 32];
}

impl<T: Clone + Send> S<T> {
    pub fn new(a: u32) -> Self { unimplemented!() }
    pub fn touch(&mut self) {}
}

impl Provider for Unit {
    fn block_hash(&self, h: u32) -> [u8; 32] { [0; 32] }
}

#[ferment_macro::export]
pub unsafe extern "C" fn get(m: BTreeMap<u32, [u8; 32]>) -> String { String::new() }

pub type Alias<'a> = &'a str;
pub const N: usize = 3;

extern "C" {
    fn ext_call(x: i32) -> i32;
}

ferment_macro::impl_custom_conversion!(std::time::Duration, DurationFFI, |d: &DurationFFI| d.into(), |d: Duration| d.into());
`

func TestReadCrateItems(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lib.rs":               libRS,
		"model.rs":             "pub mod nested;\npub struct M;\n",
		"model/nested.rs":      "pub struct Nested { pub v: u8 }\n",
		"inline_mod/deeper.rs": "pub struct Deep;\n",
	})
	crate, bag, _ := readCrate(t, dir, nil)
	assert.False(t, bag.HasErrors(), "%v", bag.Items())

	root := crate.Root
	require.Len(t, root.Attrs, 1)
	assert.Equal(t, "allow", root.Attrs[0].Name())

	ext := find(root.Items, syntax.ItemExternCrate, "spv")
	require.NotNil(t, ext)
	assert.Equal(t, "dash_spv", ext.Original)

	s := find(root.Items, syntax.ItemStruct, "S")
	require.NotNil(t, s)
	assert.True(t, s.Public)
	assert.True(t, s.HasAttr("export"))
	assert.True(t, s.HasAttr("derive"))
	assert.Equal(t, syntax.FieldsNamed, s.Style)
	require.Len(t, s.Fields, 2)
	assert.Equal(t, "Vec<T>", s.Fields[1].Type.Text)
	assert.False(t, s.Fields[1].Public)
	require.Len(t, s.Generics.Params, 1)
	assert.Len(t, s.Generics.Params[0].Bounds, 2, "inline and where bounds are merged")

	pair := find(root.Items, syntax.ItemStruct, "Pair")
	require.NotNil(t, pair)
	assert.Equal(t, syntax.FieldsTuple, pair.Style)
	require.Len(t, pair.Fields, 2)
	assert.True(t, pair.Fields[0].Public)
	assert.Equal(t, "String", pair.Fields[1].Type.Text)

	unit := find(root.Items, syntax.ItemStruct, "Unit")
	require.NotNil(t, unit)
	assert.Equal(t, syntax.FieldsUnit, unit.Style)
	assert.True(t, unit.HasAttr("opaque"))

	e := find(root.Items, syntax.ItemEnum, "E")
	require.NotNil(t, e)
	require.Len(t, e.Variants, 3)
	assert.Equal(t, syntax.FieldsTuple, e.Variants[0].Style)
	assert.Equal(t, syntax.FieldsNamed, e.Variants[1].Style)
	assert.Equal(t, "7", e.Variants[2].Discriminant)

	tr := find(root.Items, syntax.ItemTrait, "Provider")
	require.NotNil(t, tr)
	require.Len(t, tr.Supertraits, 1)
	require.Len(t, tr.Items, 1)
	assert.Equal(t, syntax.ReceiverRef, tr.Items[0].Fn.Receiver)
	assert.Equal(t, "[u8; 32]", tr.Items[0].Fn.Output.Text)

	var inherent, traitImpl *syntax.Item
	for _, it := range root.Items {
		switch it.Kind {
		case syntax.ItemInherentImpl:
			inherent = it
		case syntax.ItemTraitImpl:
			traitImpl = it
		}
	}
	require.NotNil(t, inherent)
	assert.Equal(t, "S<T>", inherent.Type.Text)
	require.Len(t, inherent.Items, 2)
	assert.Equal(t, syntax.ReceiverRefMut, inherent.Items[1].Fn.Receiver)
	require.NotNil(t, traitImpl)
	assert.Equal(t, "Provider", traitImpl.Trait.Text)

	get := find(root.Items, syntax.ItemFunction, "get")
	require.NotNil(t, get)
	assert.True(t, get.Fn.Unsafe)
	assert.Equal(t, "C", get.Fn.ABI)
	require.Len(t, get.Fn.Params, 1)
	assert.Equal(t, "m", get.Fn.Params[0].Name)

	alias := find(root.Items, syntax.ItemTypeAlias, "Alias")
	require.NotNil(t, alias)
	assert.Equal(t, []string{"'a"}, alias.Generics.Lifetimes)

	var uses []syntax.UseEntry
	var macro *syntax.Item
	var block *syntax.Item
	for _, it := range root.Items {
		switch it.Kind {
		case syntax.ItemUse:
			uses = append(uses, it.Uses...)
		case syntax.ItemMacroCall:
			macro = it
		case syntax.ItemExternBlock:
			block = it
		}
	}
	assert.Equal(t, []syntax.UseEntry{
		{Path: []string{"std", "collections", "BTreeMap"}},
		{Path: []string{"std", "collections", "HashSet"}, Alias: "Set"},
		{Path: []string{"model"}, Glob: true},
	}, uses)

	require.NotNil(t, macro)
	assert.Equal(t, "impl_custom_conversion", macro.Name)
	require.Len(t, macro.Macro.Args, 4)
	assert.Equal(t, "std::time::Duration", macro.Macro.Args[0])

	require.NotNil(t, block)
	require.Len(t, block.Items, 1)
	assert.Equal(t, "C", block.Items[0].Fn.ABI)

	model := find(root.Items, syntax.ItemModule, "model")
	require.NotNil(t, model)
	require.NotNil(t, model.Module)
	nested := find(model.Module.Items, syntax.ItemModule, "nested")
	require.NotNil(t, nested)
	require.NotNil(t, nested.Module)
	assert.NotNil(t, find(nested.Module.Items, syntax.ItemStruct, "Nested"))

	inline := find(root.Items, syntax.ItemModule, "inline_mod")
	require.NotNil(t, inline)
	assert.True(t, inline.Module.Inline)
	deeper := find(inline.Module.Items, syntax.ItemModule, "deeper")
	require.NotNil(t, deeper)
	require.NotNil(t, deeper.Module)
	assert.NotNil(t, find(deeper.Module.Items, syntax.ItemStruct, "Deep"))
}

func TestMissingModuleIsReported(t *testing.T) {
	dir := writeTree(t, map[string]string{"lib.rs": "pub mod gone;\n"})
	_, bag, _ := readCrate(t, dir, nil)
	require.True(t, bag.HasErrors())
	first, _ := bag.FirstError()
	assert.Equal(t, diag.ResMissingModule, first.Code)
}

func TestSkipModuleIgnoresGeneratedOutput(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lib.rs":               "pub mod fermented;\npub mod model;\n",
		"model.rs":             "pub mod fermented { pub struct Kept; }\n",
		"fermented/mod.rs":     "pub mod support;\n",
		"fermented/support.rs": "this is not rust {{\n",
	})
	bag := diag.NewBag(0)
	r := NewReader(source.NewFileSet(), nil, &diag.BagReporter{Bag: bag})
	defer r.Close()
	r.SkipModule("fermented")
	crate, err := r.ReadCrate(context.Background(), "example", dir, true)
	require.NoError(t, err)
	assert.False(t, bag.HasErrors(), "%v", bag.Items())
	assert.Nil(t, find(crate.Root.Items, syntax.ItemModule, "fermented"))

	model := find(crate.Root.Items, syntax.ItemModule, "model")
	require.NotNil(t, model)
	nested := find(model.Module.Items, syntax.ItemModule, "fermented")
	require.NotNil(t, nested, "only the root declaration is generated output")

	// nothing written yet
	empty := writeTree(t, map[string]string{"lib.rs": "pub mod fermented;\n"})
	_, err = r.ReadCrate(context.Background(), "example", empty, true)
	require.NoError(t, err)
	assert.False(t, bag.HasErrors(), "%v", bag.Items())
}

func TestRelaxedAndSelfBounds(t *testing.T) {
	dir := writeTree(t, map[string]string{"lib.rs": `
pub fn helper<T: ?Sized + Clone, U>(v: &T, u: U) where U: Copy, for<'a> &'a U: Send {}
pub trait Maker {
    fn make() -> Self where Self: Sized;
    fn id(&self) -> u32;
}
`})
	crate, bag, _ := readCrate(t, dir, nil)
	assert.False(t, bag.HasErrors(), "%v", bag.Items())

	helper := find(crate.Root.Items, syntax.ItemFunction, "helper")
	require.NotNil(t, helper)
	require.Len(t, helper.Generics.Params, 2)
	tp := helper.Generics.Params[0]
	assert.Equal(t, []string{"Sized"}, tp.Relaxed)
	require.Len(t, tp.Bounds, 1)
	assert.Equal(t, "Clone", tp.Bounds[0].Text)
	assert.Equal(t, "U", helper.Generics.Params[1].Name)
	assert.True(t, helper.Fn.HasBody)

	maker := find(crate.Root.Items, syntax.ItemTrait, "Maker")
	require.NotNil(t, maker)
	mk := find(maker.Items, syntax.ItemFunction, "make")
	require.NotNil(t, mk)
	assert.Empty(t, mk.Generics.Params)
	require.Len(t, mk.Generics.SelfBounds, 1)
	assert.Equal(t, "Sized", mk.Generics.SelfBounds[0].Text)
	assert.False(t, mk.Fn.HasBody)
}

func TestSyntaxErrorIsReported(t *testing.T) {
	dir := writeTree(t, map[string]string{"lib.rs": "pub struct Broken { a: u32,, }\n"})
	_, bag, _ := readCrate(t, dir, nil)
	require.True(t, bag.HasErrors())
	first, _ := bag.FirstError()
	assert.Equal(t, diag.SynParseError, first.Code)
}

func TestMissingCrateRootIsIOError(t *testing.T) {
	r := NewReader(source.NewFileSet(), nil, nil)
	defer r.Close()
	_, err := r.ReadCrate(context.Background(), "x", t.TempDir(), true)
	assert.Error(t, err)
}

func TestPathAttribute(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lib.rs":         "#[path = \"impls/other.rs\"]\nmod thing;\n",
		"impls/other.rs": "pub struct Other;\n",
	})
	crate, bag, _ := readCrate(t, dir, nil)
	assert.False(t, bag.HasErrors())
	thing := find(crate.Root.Items, syntax.ItemModule, "thing")
	require.NotNil(t, thing)
	require.NotNil(t, thing.Module)
	assert.NotNil(t, find(thing.Module.Items, syntax.ItemStruct, "Other"))
}

func TestCacheHitRebasesSpans(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"lib.rs": "pub mod a;\npub struct Root;\n",
		"a.rs":   "pub struct A { pub v: u8 }\n",
	})
	c, err := cache.Open(t.TempDir())
	require.NoError(t, err)

	_, _, first := readCrate(t, dir, c)
	hits, misses := first.CacheStats()
	assert.Equal(t, 0, hits)
	assert.Equal(t, 2, misses)

	crate, _, second := readCrate(t, dir, c)
	hits, _ = second.CacheStats()
	assert.Equal(t, 2, hits)

	a := find(crate.Root.Items, syntax.ItemModule, "a")
	require.NotNil(t, a)
	s := find(a.Module.Items, syntax.ItemStruct, "A")
	require.NotNil(t, s)
	assert.Equal(t, a.Module.Span.File, s.Span.File)
	assert.Equal(t, a.Module.Span.File, s.Fields[0].Type.Span.File)
}

func TestFlattenUse(t *testing.T) {
	cases := map[string][]syntax.UseEntry{
		"a::b": {{Path: []string{"a", "b"}}},
		"::a::{self, b::c as d, e::*}": {
			{Path: []string{"a"}},
			{Path: []string{"a", "b", "c"}, Alias: "d"},
			{Path: []string{"a", "e"}, Glob: true},
		},
		"crate::x::{y::{z, w}}": {
			{Path: []string{"crate", "x", "y", "z"}},
			{Path: []string{"crate", "x", "y", "w"}},
		},
		"self::X as Y": {{Path: []string{"self", "X"}, Alias: "Y"}},
	}
	for in, want := range cases {
		got, err := flattenUse(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := flattenUse("a::{b")
	assert.Error(t, err)
}

func TestParseAttr(t *testing.T) {
	a, ok := parseAttr("#[ferment_macro::register(std::time::Duration)]", source.Span{})
	require.True(t, ok)
	assert.Equal(t, []string{"ferment_macro", "register"}, a.Path)
	assert.Equal(t, "std::time::Duration", a.Args)

	a, ok = parseAttr(`#[path = "x.rs"]`, source.Span{})
	require.True(t, ok)
	assert.Equal(t, "path", a.Name())
	assert.Equal(t, `"x.rs"`, a.Args)

	_, ok = parseAttr("#[]", source.Span{})
	assert.False(t, ok)
}
