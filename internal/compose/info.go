package compose

import (
	"strings"

	"ferment/internal/scope"
	"ferment/internal/typeref"
)

// Strategy is the emission strategy chosen for a mirror.
type Strategy uint8

const (
	StrategyStruct Strategy = iota + 1
	StrategyEnum
	StrategyOpaque
	StrategyTrait
	StrategyCallback
	StrategySequence
	StrategyMap
	StrategyOption
	StrategyResult
	StrategyTuple
	StrategyCustom
)

var strategyNames = [...]string{
	StrategyStruct:   "struct",
	StrategyEnum:     "enum",
	StrategyOpaque:   "opaque",
	StrategyTrait:    "trait",
	StrategyCallback: "callback",
	StrategySequence: "sequence",
	StrategyMap:      "map",
	StrategyOption:   "option",
	StrategyResult:   "result",
	StrategyTuple:    "tuple",
	StrategyCustom:   "custom",
}

func (s Strategy) String() string {
	if int(s) < len(strategyNames) && strategyNames[s] != "" {
		return strategyNames[s]
	}
	return "invalid"
}

// Conv is the boundary conversion applied to one slot of a mirror.
type Conv uint8

const (
	ConvCopy Conv = iota + 1
	ConvString
	ConvDuration
	ConvMirror
	ConvHandle
	ConvPointer
)

var convNames = [...]string{
	ConvCopy:     "copy",
	ConvString:   "string",
	ConvDuration: "duration",
	ConvMirror:   "mirror",
	ConvHandle:   "handle",
	ConvPointer:  "pointer",
}

func (c Conv) String() string {
	if int(c) < len(convNames) && convNames[c] != "" {
		return convNames[c]
	}
	return "invalid"
}

// Allocates reports whether the outward conversion allocates.
func (c Conv) Allocates() bool {
	switch c {
	case ConvString, ConvMirror, ConvHandle:
		return true
	}
	return false
}

// Step is the ownership plan of one slot: what ffi_to does to it, whether
// ffi_from converts it back and whether destroy releases it.
type Step struct {
	Slot string
	// CType is the slot's type on the C side.
	CType    string
	Conv     Conv
	Restores bool
	Releases bool
}

// Tag is one discriminant of a tagged mirror.
type Tag struct {
	Name  string
	Value uint32
}

// Binding is one extern "C" function.
type Binding struct {
	Name   string
	Params []Param
	// Ret is the FFI return type; empty for unit.
	Ret  string
	Body []string
}

// Param is a binding parameter.
type Param struct {
	Name string
	Type string
}

// Info is the ComposerInfo of one mirror.
type Info struct {
	// Key is the canonical type the mirror stands for.
	Key  string
	Type typeref.TypeRef
	// Name is the mirror name, final after linking.
	Name string
	// Module places user items under types/; nil for generic instantiations.
	Module   scope.Chain
	Strategy Strategy

	// Decl holds the mirror declaration and its auxiliary items.
	Decl []string
	// Target is the original type the conversions produce; empty when the
	// mirror has no FFIConversion impl of its own.
	Target string
	// ImplFor is the type the impl is for; the mirror itself when empty.
	ImplFor string
	From    []string
	To      []string
	Destroy []string

	Bindings []Binding
	// Tags lists the variants of enum and result mirrors in tag order.
	Tags []Tag
	// Deps lists the keys of every mirror this one references.
	Deps []string
	Plan []Step
}

// Generic reports whether the info is a generic instantiation.
func (i *Info) Generic() bool { return i.Module == nil }

// Fermentate is the composed output, ordered deterministically.
type Fermentate struct {
	Crate   string
	ModName string
	// Items are user mirrors sorted by key.
	Items []*Info
	// Generics are instantiations sorted by mirror name.
	Generics []*Info
	// Functions are free function bindings grouped by module.
	Functions []FunctionBinding
	Support   string
}

// FunctionBinding is a free function binding and the module it lives in.
type FunctionBinding struct {
	Path    scope.Chain
	Module  scope.Chain
	Binding Binding
}

// Info returns the mirror for a canonical key, or nil.
func (f *Fermentate) Info(key string) *Info {
	for _, list := range [][]*Info{f.Items, f.Generics} {
		for _, i := range list {
			if i.Key == key {
				return i
			}
		}
	}
	return nil
}

// Modules lists every module that receives output, sorted.
func (f *Fermentate) Modules() []scope.Chain {
	seen := make(map[string]bool)
	var out []scope.Chain
	add := func(c scope.Chain) {
		if c == nil || seen[c.String()] {
			return
		}
		seen[c.String()] = true
		out = append(out, c)
	}
	for _, i := range f.Items {
		add(i.Module)
	}
	for _, fb := range f.Functions {
		add(fb.Module)
	}
	sortChains(out)
	return out
}

func (b Binding) signature() string {
	params := make([]string, len(b.Params))
	for i, p := range b.Params {
		params[i] = p.Name + ": " + p.Type
	}
	sig := "pub unsafe extern \"C\" fn " + b.Name + "(" + strings.Join(params, ", ") + ")"
	if b.Ret != "" {
		sig += " -> " + b.Ret
	}
	return sig
}
