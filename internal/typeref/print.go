package typeref

import "strings"

// String renders the canonical form: single spaces only where the grammar
// needs them, lifetimes dropped.
func (t TypeRef) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t TypeRef) write(b *strings.Builder) {
	switch t.Kind {
	case KindPath:
		if t.Global {
			b.WriteString("::")
		}
		for i, s := range t.Segments {
			if i > 0 {
				b.WriteString("::")
			}
			s.write(b)
		}
	case KindReference:
		b.WriteByte('&')
		if t.Mutable {
			b.WriteString("mut ")
		}
		writeElem(b, t.Elem)
	case KindPointer:
		if t.Mutable {
			b.WriteString("*mut ")
		} else {
			b.WriteString("*const ")
		}
		writeElem(b, t.Elem)
	case KindArray:
		b.WriteByte('[')
		writeElem(b, t.Elem)
		b.WriteString("; ")
		b.WriteString(t.Len)
		b.WriteByte(']')
	case KindSlice:
		b.WriteByte('[')
		writeElem(b, t.Elem)
		b.WriteByte(']')
	case KindTuple:
		b.WriteByte('(')
		writeList(b, t.Elems)
		if len(t.Elems) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case KindUnit:
		b.WriteString("()")
	case KindFn:
		if t.Unsafe {
			b.WriteString("unsafe ")
		}
		if t.ABI != "" {
			b.WriteString("extern \"")
			b.WriteString(t.ABI)
			b.WriteString("\" ")
		}
		b.WriteString("fn(")
		writeList(b, t.Elems)
		b.WriteByte(')')
		if t.Ret != nil && t.Ret.Kind != KindUnit {
			b.WriteString(" -> ")
			t.Ret.write(b)
		}
	case KindTraitObject, KindImplTrait:
		if t.Kind == KindTraitObject {
			b.WriteString("dyn ")
		} else {
			b.WriteString("impl ")
		}
		for i, bound := range t.Bounds {
			if i > 0 {
				b.WriteString(" + ")
			}
			bound.write(b)
		}
	case KindNever:
		b.WriteByte('!')
	case KindInfer:
		b.WriteByte('_')
	default:
		b.WriteString("<invalid>")
	}
}

func (s Segment) write(b *strings.Builder) {
	b.WriteString(s.Name)
	if s.Paren {
		b.WriteByte('(')
		writeList(b, s.Inputs)
		b.WriteByte(')')
		if s.Output != nil && s.Output.Kind != KindUnit {
			b.WriteString(" -> ")
			s.Output.write(b)
		}
		return
	}
	if len(s.Args) == 0 && len(s.Bindings) == 0 {
		return
	}
	b.WriteByte('<')
	writeList(b, s.Args)
	for i, bind := range s.Bindings {
		if i > 0 || len(s.Args) > 0 {
			b.WriteString(", ")
		}
		b.WriteString(bind.Name)
		b.WriteString(" = ")
		bind.Type.write(b)
	}
	b.WriteByte('>')
}

func writeElem(b *strings.Builder, elem *TypeRef) {
	if elem == nil {
		b.WriteString("<invalid>")
		return
	}
	// &dyn A + B needs parentheses to stay unambiguous.
	if (elem.Kind == KindTraitObject || elem.Kind == KindImplTrait) && len(elem.Bounds) > 1 {
		b.WriteByte('(')
		elem.write(b)
		b.WriteByte(')')
		return
	}
	elem.write(b)
}

func writeList(b *strings.Builder, list []TypeRef) {
	for i, t := range list {
		if i > 0 {
			b.WriteString(", ")
		}
		t.write(b)
	}
}
