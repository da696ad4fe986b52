package typeref

import "strings"

// Mangle derives the generated identifier for a type: path separators become
// `_`, generic argument lists are flattened recursively, lifetimes vanish.
// References contribute nothing; the mirror names the referent.
func Mangle(t TypeRef) string {
	var parts []string
	mangleInto(&parts, t)
	return sanitize(strings.Join(parts, "_"))
}

func mangleInto(parts *[]string, t TypeRef) {
	switch t.Kind {
	case KindPath:
		for _, s := range t.Segments {
			*parts = append(*parts, s.Name)
			if s.Paren {
				mangleFnShape(parts, s.Inputs, s.Output)
				continue
			}
			for _, a := range s.Args {
				mangleInto(parts, a)
			}
			for _, b := range s.Bindings {
				*parts = append(*parts, b.Name)
				mangleInto(parts, b.Type)
			}
		}
	case KindReference:
		if t.Elem != nil {
			mangleInto(parts, *t.Elem)
		}
	case KindPointer:
		if t.Mutable {
			*parts = append(*parts, "MutPtr")
		} else {
			*parts = append(*parts, "ConstPtr")
		}
		if t.Elem != nil {
			mangleInto(parts, *t.Elem)
		}
	case KindArray:
		*parts = append(*parts, "Arr")
		if t.Elem != nil {
			mangleInto(parts, *t.Elem)
		}
		*parts = append(*parts, t.Len)
	case KindSlice:
		*parts = append(*parts, "Slice")
		if t.Elem != nil {
			mangleInto(parts, *t.Elem)
		}
	case KindTuple:
		*parts = append(*parts, "Tuple")
		for _, e := range t.Elems {
			mangleInto(parts, e)
		}
	case KindUnit:
		*parts = append(*parts, "Unit")
	case KindFn:
		*parts = append(*parts, "Fn")
		mangleFnShape(parts, t.Elems, t.Ret)
	case KindTraitObject, KindImplTrait:
		*parts = append(*parts, "dyn")
		for _, b := range t.Bounds {
			mangleInto(parts, b)
		}
	case KindNever:
		*parts = append(*parts, "Never")
	}
}

func mangleFnShape(parts *[]string, inputs []TypeRef, output *TypeRef) {
	*parts = append(*parts, "ARGS")
	for _, in := range inputs {
		mangleInto(parts, in)
	}
	*parts = append(*parts, "RTRN")
	if output != nil {
		mangleInto(parts, *output)
	}
}

// sanitize keeps the result a valid identifier in both Rust and C.
func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isIdentByte(c) {
			b.WriteByte(c)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
