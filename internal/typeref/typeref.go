package typeref

import (
	"fmt"
	"strings"
)

// Kind enumerates the syntactic shapes a type expression can take.
type Kind uint8

const (
	KindInvalid     Kind = iota
	KindPath             // a::b::C<T>
	KindReference        // &'a mut T
	KindPointer          // *const T, *mut T
	KindArray            // [T; N]
	KindSlice            // [T]
	KindTuple            // (A, B)
	KindUnit             // ()
	KindFn               // fn(A) -> B
	KindTraitObject      // dyn A + B
	KindImplTrait        // impl A + B
	KindNever            // !
	KindInfer            // _
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindReference:
		return "reference"
	case KindPointer:
		return "pointer"
	case KindArray:
		return "array"
	case KindSlice:
		return "slice"
	case KindTuple:
		return "tuple"
	case KindUnit:
		return "unit"
	case KindFn:
		return "fn"
	case KindTraitObject:
		return "dyn"
	case KindImplTrait:
		return "impl"
	case KindNever:
		return "never"
	case KindInfer:
		return "infer"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Binding is an associated type binding inside generic arguments (Item = T).
type Binding struct {
	Name string
	Type TypeRef
}

// Segment is one `::`-separated component of a path.
type Segment struct {
	Name      string
	Args      []TypeRef
	Bindings  []Binding
	Lifetimes []string // dropped from the canonical form
	// Paren marks Fn(A, B) -> C sugar; Inputs/Output are set instead of Args.
	Paren  bool
	Inputs []TypeRef
	Output *TypeRef
}

// TypeRef is a type expression as written in source, in structured form.
// Values are treated as immutable: every rewrite returns a fresh copy.
type TypeRef struct {
	Kind     Kind
	Global   bool // leading ::
	Segments []Segment

	Elem     *TypeRef // reference, pointer, array, slice
	Mutable  bool     // &mut, *mut
	Lifetime string   // reference lifetime, dropped from the canonical form
	Len      string   // array length expression, whitespace-free

	Elems []TypeRef // tuple elements, fn parameters
	Ret   *TypeRef  // fn return

	Bounds []TypeRef // dyn / impl bounds, each a path

	Unsafe bool   // unsafe fn
	ABI    string // extern "C" fn
}

// Path builds a path type from plain segment names.
func Path(names ...string) TypeRef {
	segs := make([]Segment, len(names))
	for i, n := range names {
		segs[i] = Segment{Name: n}
	}
	return TypeRef{Kind: KindPath, Segments: segs}
}

// Generic builds `head<args...>` where head is a `::`-joined path.
func Generic(head string, args ...TypeRef) TypeRef {
	t := Path(strings.Split(head, "::")...)
	last := &t.Segments[len(t.Segments)-1]
	last.Args = append([]TypeRef(nil), args...)
	return t
}

// Ref builds &T or &mut T.
func Ref(elem TypeRef, mutable bool) TypeRef {
	e := elem
	return TypeRef{Kind: KindReference, Elem: &e, Mutable: mutable}
}

// Array builds [T; n].
func Array(elem TypeRef, n string) TypeRef {
	e := elem
	return TypeRef{Kind: KindArray, Elem: &e, Len: n}
}

// Tuple builds (A, B, ...). Zero elements produce the unit type.
func Tuple(elems ...TypeRef) TypeRef {
	if len(elems) == 0 {
		return TypeRef{Kind: KindUnit}
	}
	return TypeRef{Kind: KindTuple, Elems: append([]TypeRef(nil), elems...)}
}

// IsZero reports whether t is the zero TypeRef.
func (t TypeRef) IsZero() bool { return t.Kind == KindInvalid }

// IsPath reports whether t is a plain path type.
func (t TypeRef) IsPath() bool { return t.Kind == KindPath && len(t.Segments) > 0 }

// Names returns the segment names of a path without generic arguments.
func (t TypeRef) Names() []string {
	if t.Kind != KindPath {
		return nil
	}
	out := make([]string, len(t.Segments))
	for i, s := range t.Segments {
		out[i] = s.Name
	}
	return out
}

// PathString joins segment names with `::`, ignoring generic arguments.
func (t TypeRef) PathString() string {
	return strings.Join(t.Names(), "::")
}

// Last returns the last path segment, or nil for non-path kinds.
func (t TypeRef) Last() *Segment {
	if t.Kind != KindPath || len(t.Segments) == 0 {
		return nil
	}
	return &t.Segments[len(t.Segments)-1]
}

// Ident returns the single identifier for one-segment paths without arguments.
func (t TypeRef) Ident() (string, bool) {
	if t.Kind != KindPath || t.Global || len(t.Segments) != 1 {
		return "", false
	}
	s := t.Segments[0]
	if len(s.Args) > 0 || s.Paren || len(s.Bindings) > 0 {
		return "", false
	}
	return s.Name, true
}

// GenericArgs returns the type arguments of the last segment.
func (t TypeRef) GenericArgs() []TypeRef {
	if last := t.Last(); last != nil {
		return last.Args
	}
	return nil
}

// WithSegments returns a copy of the path with names replaced by target while
// keeping the generic arguments of the last segment.
func (t TypeRef) WithSegments(target []string) TypeRef {
	if t.Kind != KindPath || len(target) == 0 {
		return t
	}
	out := TypeRef{Kind: KindPath, Segments: make([]Segment, len(target))}
	for i, n := range target {
		out.Segments[i] = Segment{Name: n}
	}
	if last := t.Last(); last != nil {
		dst := &out.Segments[len(out.Segments)-1]
		dst.Args = last.Args
		dst.Bindings = last.Bindings
		dst.Paren = last.Paren
		dst.Inputs = last.Inputs
		dst.Output = last.Output
	}
	return out
}

// Peel strips references and raw pointers, returning the innermost type and
// the wrappers from outermost to innermost.
func (t TypeRef) Peel() (TypeRef, []Wrapper) {
	var wrappers []Wrapper
	cur := t
	for {
		switch cur.Kind {
		case KindReference:
			if cur.Mutable {
				wrappers = append(wrappers, WrapRefMut)
			} else {
				wrappers = append(wrappers, WrapRef)
			}
		case KindPointer:
			if cur.Mutable {
				wrappers = append(wrappers, WrapPtrMut)
			} else {
				wrappers = append(wrappers, WrapPtrConst)
			}
		default:
			return cur, wrappers
		}
		if cur.Elem == nil {
			return TypeRef{}, wrappers
		}
		cur = *cur.Elem
	}
}

// Wrapper is a reference or pointer layer removed by Peel.
type Wrapper uint8

const (
	WrapRef Wrapper = iota + 1
	WrapRefMut
	WrapPtrConst
	WrapPtrMut
)

func (w Wrapper) String() string {
	switch w {
	case WrapRef:
		return "&"
	case WrapRefMut:
		return "&mut"
	case WrapPtrConst:
		return "*const"
	case WrapPtrMut:
		return "*mut"
	}
	return "?"
}

// Equal compares two TypeRefs by canonical token sequence.
func Equal(a, b TypeRef) bool {
	return a.String() == b.String()
}

// Key is the canonical string used for map keys and de-duplication.
func (t TypeRef) Key() string { return t.String() }
