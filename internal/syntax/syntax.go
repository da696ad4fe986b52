// Package syntax holds the parsed syntax forest handed from the source reader
// to the scope builder. It is plain data: every type serialises with msgpack
// so parsed files can be cached between runs.
package syntax

import (
	"ferment/internal/source"
)

// Forest maps package names to their parsed crates, in configuration order.
type Forest struct {
	Crates []*Crate
}

// Crate returns the crate with the given name or nil.
func (f *Forest) Crate(name string) *Crate {
	if f == nil {
		return nil
	}
	for _, c := range f.Crates {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Crate is one source package.
type Crate struct {
	Name string
	// Primary is true for the crate being fermented; external crates are
	// scanned for types only.
	Primary bool
	Root    *Module
}

// Module is a module body, file-backed or inline.
type Module struct {
	Name   string
	File   string
	Inline bool
	Attrs  []Attr
	Items  []*Item
	Span   source.Span
}

// ItemKind enumerates declared items.
type ItemKind uint8

const (
	ItemInvalid ItemKind = iota
	ItemStruct
	ItemEnum
	ItemUnion
	ItemTypeAlias
	ItemTrait
	ItemTraitImpl
	ItemInherentImpl
	ItemFunction
	ItemModule
	ItemUse
	ItemExternBlock
	ItemConst
	ItemExternCrate
	ItemMacroCall
)

var itemKindNames = [...]string{
	ItemInvalid:      "invalid",
	ItemStruct:       "struct",
	ItemEnum:         "enum",
	ItemUnion:        "union",
	ItemTypeAlias:    "type",
	ItemTrait:        "trait",
	ItemTraitImpl:    "impl trait",
	ItemInherentImpl: "impl",
	ItemFunction:     "fn",
	ItemModule:       "mod",
	ItemUse:          "use",
	ItemExternBlock:  "extern",
	ItemConst:        "const",
	ItemExternCrate:  "extern crate",
	ItemMacroCall:    "macro",
}

func (k ItemKind) String() string {
	if int(k) < len(itemKindNames) {
		return itemKindNames[k]
	}
	return "unknown"
}

// IsType reports whether items of this kind declare a nameable type.
func (k ItemKind) IsType() bool {
	switch k {
	case ItemStruct, ItemEnum, ItemUnion, ItemTypeAlias, ItemTrait:
		return true
	}
	return false
}

// Attr is an outer attribute `#[path(args)]`.
type Attr struct {
	Path []string
	// Args is the raw token text between the delimiters, trimmed.
	Args string
	Span source.Span
}

// Name returns the last path segment.
func (a Attr) Name() string {
	if len(a.Path) == 0 {
		return ""
	}
	return a.Path[len(a.Path)-1]
}

// Type is a type expression as written, with its location.
type Type struct {
	Text string
	Span source.Span
}

// FieldStyle distinguishes named, tuple and unit shapes.
type FieldStyle uint8

const (
	FieldsUnit FieldStyle = iota
	FieldsNamed
	FieldsTuple
)

// Field is a struct, union or variant field. Tuple fields have an empty Name.
type Field struct {
	Name   string
	Public bool
	Type   Type
	Attrs  []Attr
	Span   source.Span
}

// Variant is one enum variant.
type Variant struct {
	Name   string
	Style  FieldStyle
	Fields []Field
	// Discriminant is the explicit `= expr` text, if any.
	Discriminant string
	Attrs        []Attr
	Span         source.Span
}

// TypeParam is a generic type parameter with its inline and where-clause bounds.
type TypeParam struct {
	Name   string
	Bounds []Type
	// Relaxed names the traits of `?Trait` bounds, as in `T: ?Sized`.
	Relaxed []string
}

// Generics collects the generic parameter list of an item.
type Generics struct {
	Params    []TypeParam
	Lifetimes []string
	// SelfBounds holds `where Self: ...` predicates.
	SelfBounds []Type
}

// Empty reports whether there are no type parameters.
func (g Generics) Empty() bool { return len(g.Params) == 0 }

// Receiver describes the self parameter of a method.
type Receiver uint8

const (
	ReceiverNone Receiver = iota
	ReceiverValue
	ReceiverRef
	ReceiverRefMut
)

// Param is a function parameter.
type Param struct {
	Name string
	Type Type
}

// FnSig is a function or method signature.
type FnSig struct {
	Receiver Receiver
	Params   []Param
	Output   *Type
	Unsafe   bool
	Async    bool
	ABI      string
	// HasBody is false for required trait methods.
	HasBody bool
}

// UseEntry is one leaf of a flattened use tree.
type UseEntry struct {
	Path  []string
	Alias string
	Glob  bool
}

// MacroCall is an item-position macro invocation.
type MacroCall struct {
	Path []string
	// Args holds the top-level comma separated arguments as text.
	Args []string
}

// Item is a declared entity.
type Item struct {
	Kind   ItemKind
	Name   string
	Public bool
	Attrs  []Attr
	Span   source.Span

	Generics Generics

	// struct / union
	Style  FieldStyle
	Fields []Field
	// enum
	Variants []Variant

	// Type is the aliased type (type alias), the self type (impl) or the
	// const type.
	Type *Type
	// Trait is the implemented trait for trait impls.
	Trait *Type
	// Supertraits for trait declarations.
	Supertraits []Type
	// Items holds trait/impl members and extern block declarations.
	Items []*Item

	Fn *FnSig

	// Module body for `mod` items.
	Module *Module

	Uses []UseEntry

	// Original names the crate of an `extern crate original as Name;`.
	Original string

	Macro *MacroCall
}

// HasAttr reports whether any attribute's last segment equals name.
func (it *Item) HasAttr(name string) bool {
	for _, a := range it.Attrs {
		if a.Name() == name {
			return true
		}
	}
	return false
}
