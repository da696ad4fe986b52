// Package classify decides, for every type reference, which FFI strategy
// the composer uses for it.
package classify

import (
	"strings"

	"ferment/internal/resolve"
	"ferment/internal/typeref"
)

// Kind is the TypeModelKind discriminator.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPrimitive
	KindDictionary
	KindComplex
	KindOpaque
	KindTrait
	KindTraitBounded
	KindFnPointer
	KindCallback
	KindGeneric
	KindCustom
)

var kindNames = [...]string{
	KindUnknown:      "Unknown",
	KindPrimitive:    "Primitive",
	KindDictionary:   "KnownDictionary",
	KindComplex:      "Complex",
	KindOpaque:       "Opaque",
	KindTrait:        "Trait",
	KindTraitBounded: "TraitBounded",
	KindFnPointer:    "FnPointer",
	KindCallback:     "Callback",
	KindGeneric:      "Generic",
	KindCustom:       "Custom",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Invalid"
}

// Dict names a built-in dictionary strategy.
type Dict uint8

const (
	DictNone Dict = iota
	DictString
	DictStr
	DictVec
	DictSlice
	DictArray
	DictTuple
	DictOption
	DictResult
	DictMap
	DictSet
	DictDuration
	DictBox
	DictShared
	DictCell
	DictUnit
)

var dictNames = [...]string{
	DictNone:     "none",
	DictString:   "String",
	DictStr:      "str",
	DictVec:      "Vec",
	DictSlice:    "Slice",
	DictArray:    "Array",
	DictTuple:    "Tuple",
	DictOption:   "Option",
	DictResult:   "Result",
	DictMap:      "Map",
	DictSet:      "Set",
	DictDuration: "Duration",
	DictBox:      "Box",
	DictShared:   "Shared",
	DictCell:     "Cell",
	DictUnit:     "Unit",
}

func (d Dict) String() string {
	if int(d) < len(dictNames) {
		return dictNames[d]
	}
	return "invalid"
}

// Model is a classified type reference.
type Model struct {
	Kind Kind
	// Type is the reference with wrappers peeled.
	Type     typeref.TypeRef
	Wrappers []typeref.Wrapper

	// Prim is the scalar name for primitives.
	Prim string
	Dict Dict
	// Entry is the declaration for Complex, Opaque and Trait.
	Entry  *resolve.Entry
	Custom *resolve.Registration
	Bounds []typeref.TypeRef

	// Head and Args describe generic instantiations; Head is never Generic.
	Head *Model
	Args []Model

	// Inputs and Output describe FnPointer and Callback shapes.
	Inputs []Model
	Output *Model

	// Unsupported explains why a resolved type has no strategy.
	Unsupported string
}

// Strategy returns the model that decides emission: the head of a generic,
// or the model itself.
func (m Model) Strategy() Model {
	if m.Kind == KindGeneric && m.Head != nil {
		return *m.Head
	}
	return m
}

// Borrowed reports whether the outermost wrapper is a reference.
func (m Model) Borrowed() bool {
	return len(m.Wrappers) > 0 && (m.Wrappers[0] == typeref.WrapRef || m.Wrappers[0] == typeref.WrapRefMut)
}

// Pointer reports whether the outermost wrapper is a raw pointer.
func (m Model) Pointer() bool {
	return len(m.Wrappers) > 0 && (m.Wrappers[0] == typeref.WrapPtrConst || m.Wrappers[0] == typeref.WrapPtrMut)
}

// Resolved reports whether the model and every nested model is known.
func (m Model) Resolved() bool {
	if m.Kind == KindUnknown && m.Unsupported == "" {
		return false
	}
	if m.Head != nil && !m.Head.Resolved() {
		return false
	}
	for _, a := range m.Args {
		if !a.Resolved() {
			return false
		}
	}
	for _, in := range m.Inputs {
		if !in.Resolved() {
			return false
		}
	}
	if m.Output != nil && !m.Output.Resolved() {
		return false
	}
	return true
}

// FirstUnsupported returns the first nested unsupported explanation.
func (m Model) FirstUnsupported() string {
	if m.Unsupported != "" {
		return m.Unsupported
	}
	nested := append([]Model(nil), m.Args...)
	nested = append(nested, m.Inputs...)
	if m.Head != nil {
		nested = append(nested, *m.Head)
	}
	if m.Output != nil {
		nested = append(nested, *m.Output)
	}
	for _, n := range nested {
		if why := n.FirstUnsupported(); why != "" {
			return why
		}
	}
	return ""
}

// String renders the model as `Kind(type)` for dumps and test failures.
func (m Model) String() string {
	var b strings.Builder
	b.WriteString(m.Kind.String())
	switch {
	case m.Kind == KindDictionary:
		b.WriteString("." + m.Dict.String())
	case m.Kind == KindGeneric && m.Head != nil:
		b.WriteString("[" + m.Head.String() + "]")
	}
	b.WriteString("(" + m.Type.String() + ")")
	return b.String()
}
