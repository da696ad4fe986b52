package typeref

// Rewrite rebuilds t bottom-up, passing every path node (after its own
// arguments were rewritten) through fn.
func Rewrite(t TypeRef, fn func(TypeRef) TypeRef) TypeRef {
	out := t
	switch t.Kind {
	case KindPath:
		out.Segments = make([]Segment, len(t.Segments))
		for i, s := range t.Segments {
			out.Segments[i] = rewriteSegment(s, fn)
		}
		return fn(out)
	case KindReference, KindPointer, KindArray, KindSlice:
		if t.Elem != nil {
			e := Rewrite(*t.Elem, fn)
			out.Elem = &e
		}
	case KindTuple:
		out.Elems = rewriteList(t.Elems, fn)
	case KindFn:
		out.Elems = rewriteList(t.Elems, fn)
		if t.Ret != nil {
			r := Rewrite(*t.Ret, fn)
			out.Ret = &r
		}
	case KindTraitObject, KindImplTrait:
		out.Bounds = rewriteList(t.Bounds, fn)
	}
	return out
}

func rewriteSegment(s Segment, fn func(TypeRef) TypeRef) Segment {
	out := s
	out.Args = rewriteList(s.Args, fn)
	out.Inputs = rewriteList(s.Inputs, fn)
	if s.Output != nil {
		o := Rewrite(*s.Output, fn)
		out.Output = &o
	}
	if len(s.Bindings) > 0 {
		out.Bindings = make([]Binding, len(s.Bindings))
		for i, b := range s.Bindings {
			out.Bindings[i] = Binding{Name: b.Name, Type: Rewrite(b.Type, fn)}
		}
	}
	return out
}

func rewriteList(list []TypeRef, fn func(TypeRef) TypeRef) []TypeRef {
	if list == nil {
		return nil
	}
	out := make([]TypeRef, len(list))
	for i, t := range list {
		out[i] = Rewrite(t, fn)
	}
	return out
}

// Substitute replaces single-identifier paths named in subst.
func Substitute(t TypeRef, subst map[string]TypeRef) TypeRef {
	if len(subst) == 0 {
		return t
	}
	return Rewrite(t, func(p TypeRef) TypeRef {
		if name, ok := p.Ident(); ok {
			if repl, ok := subst[name]; ok {
				return repl
			}
		}
		return p
	})
}

// Walk visits t and every nested type, parents first. Returning false from
// visit skips the children of that node.
func Walk(t TypeRef, visit func(TypeRef) bool) {
	if !visit(t) {
		return
	}
	switch t.Kind {
	case KindPath:
		for _, s := range t.Segments {
			for _, a := range s.Args {
				Walk(a, visit)
			}
			for _, b := range s.Bindings {
				Walk(b.Type, visit)
			}
			for _, in := range s.Inputs {
				Walk(in, visit)
			}
			if s.Output != nil {
				Walk(*s.Output, visit)
			}
		}
	case KindReference, KindPointer, KindArray, KindSlice:
		if t.Elem != nil {
			Walk(*t.Elem, visit)
		}
	case KindTuple:
		for _, e := range t.Elems {
			Walk(e, visit)
		}
	case KindFn:
		for _, e := range t.Elems {
			Walk(e, visit)
		}
		if t.Ret != nil {
			Walk(*t.Ret, visit)
		}
	case KindTraitObject, KindImplTrait:
		for _, b := range t.Bounds {
			Walk(b, visit)
		}
	}
}
