package compose

import (
	"fmt"

	"ferment/internal/classify"
	"ferment/internal/typeref"
)

// form is how one value crosses the boundary. Conversion templates use $v
// for the value; destroy is a statement and empty when nothing is owned.
type form struct {
	ctype   string
	to      string
	from    string
	destroy string
	// zero fills unused slots; empty when the form has no safe zero.
	zero string
	conv Conv
	// handle marks pointer-to-original forms, which borrow without
	// consuming.
	handle bool
}

var identity = form{to: "$v", from: "$v", zero: "std::mem::zeroed()", conv: ConvCopy}

// problem is a type with no boundary form.
type problem struct {
	msg string
}

func (p *problem) Error() string { return p.msg }

func unsupported(format string, args ...any) *problem {
	return &problem{msg: fmt.Sprintf(format, args...)}
}

// formOf picks the form of a classified reference. A single outer
// reference is accepted and left to the caller; raw pointers to scalars
// pass through unchanged.
func (t *task) formOf(m classify.Model) (form, error) {
	if m.Pointer() {
		return t.rawPointer(m)
	}
	if len(m.Wrappers) > 1 {
		return form{}, unsupported("`%s` is borrowed more than once", wrapped(m))
	}
	return t.valueForm(m)
}

func (t *task) rawPointer(m classify.Model) (form, error) {
	if len(m.Wrappers) > 1 {
		return form{}, unsupported("nested pointer `%s` has no boundary form", wrapped(m))
	}
	last := m.Type.Last()
	if m.Kind != classify.KindPrimitive && (last == nil || last.Name != "c_void") {
		return form{}, unsupported("raw pointer `%s` may only point at scalars or c_void", wrapped(m))
	}
	f := identity
	f.ctype = t.c.rustType(wrapped(m))
	f.zero = "std::ptr::null_mut()"
	if m.Wrappers[0] == typeref.WrapPtrConst {
		f.zero = "std::ptr::null()"
	}
	f.conv = ConvPointer
	return f, nil
}

// valueForm ignores wrappers; callers decide what a reference means.
func (t *task) valueForm(m classify.Model) (form, error) {
	switch m.Kind {
	case classify.KindPrimitive:
		f := identity
		f.ctype = t.c.rustType(m.Type)
		return f, nil
	case classify.KindDictionary:
		return t.dictForm(m)
	case classify.KindComplex:
		if t.c.opaqueEntry(m.Entry) {
			return t.handleForm(m.Type), nil
		}
		return t.mirrorForm(m.Entry.Path.String()), nil
	case classify.KindOpaque:
		return t.handleForm(m.Type), nil
	case classify.KindCustom:
		ref := t.c.rustPath(m.Custom.Mirror)
		return form{
			ctype:   "*mut " + ref,
			to:      ref + "::ffi_to($v)",
			from:    ref + "::ffi_from($v)",
			destroy: ref + "::destroy($v);",
			zero:    "std::ptr::null_mut()",
			conv:    ConvMirror,
		}, nil
	case classify.KindTrait:
		if m.Entry == nil {
			return form{}, unsupported("trait object `%s` has no exported trait", m.Type)
		}
		t.dep(m.Entry.Path.String())
		return t.mirrorForm(m.Entry.Path.String()), nil
	case classify.KindTraitBounded:
		return form{}, unsupported("generic parameter `%s` is not instantiated at the boundary", m.Type)
	case classify.KindFnPointer:
		return t.fnPointerForm(m)
	case classify.KindCallback:
		owned := callbackOwned(m.Type)
		if fnOnce(owned) {
			return form{}, unsupported("`%s` can be called only once and cannot be shared across the boundary", m.Type)
		}
		return t.request(owned), nil
	case classify.KindGeneric:
		return t.genericForm(m)
	}
	if why := m.FirstUnsupported(); why != "" {
		return form{}, unsupported("%s", why)
	}
	return form{}, unsupported("type `%s` is unresolved", m.Type)
}

func (t *task) dictForm(m classify.Model) (form, error) {
	switch m.Dict {
	case classify.DictString:
		return stringForm("$v"), nil
	case classify.DictStr:
		return stringForm("$v.to_string()"), nil
	case classify.DictDuration:
		return form{
			ctype: "support::Duration",
			to:    "support::Duration::from_std($v)",
			from:  "$v.to_std()",
			zero:  "support::Duration::default()",
			conv:  ConvDuration,
		}, nil
	case classify.DictUnit:
		f := identity
		f.ctype = "()"
		f.zero = "()"
		return f, nil
	}
	return form{}, unsupported("`%s` needs type arguments", m.Type)
}

func stringForm(owned string) form {
	return form{
		ctype:   "support::OwnedString",
		to:      "support::OwnedString::new(" + owned + ")",
		from:    "$v.into_string()",
		destroy: "$v.destroy();",
		zero:    "support::OwnedString::empty()",
		conv:    ConvString,
	}
}

// mirrorForm refers to a composed mirror by key.
func (t *task) mirrorForm(key string) form {
	t.dep(key)
	ref := mirrorRef(key)
	return form{
		ctype:   "*mut " + ref,
		to:      ref + "::ffi_to($v)",
		from:    ref + "::ffi_from($v)",
		destroy: ref + "::destroy($v);",
		zero:    "std::ptr::null_mut()",
		conv:    ConvMirror,
	}
}

// handleForm boxes the original value itself.
func (t *task) handleForm(owned typeref.TypeRef) form {
	ty := t.c.rustType(owned)
	return form{
		ctype:   "*mut " + ty,
		to:      "support::boxed($v)",
		from:    "*Box::from_raw($v)",
		destroy: "support::unbox_any($v);",
		zero:    "std::ptr::null_mut()",
		conv:    ConvHandle,
		handle:  true,
	}
}

// request asks for a generic instantiation and returns its mirror form.
func (t *task) request(owned typeref.TypeRef) form {
	key := owned.String()
	if _, ok := t.requests[key]; !ok {
		t.requests[key] = request{ty: owned, span: t.site}
	}
	return t.mirrorForm(key)
}

func (t *task) fnPointerForm(m classify.Model) (form, error) {
	if m.Type.ABI == "" {
		return form{}, unsupported("function pointer `%s` is not extern \"C\"", m.Type)
	}
	for _, in := range m.Inputs {
		if in.Kind != classify.KindPrimitive || len(in.Wrappers) > 0 {
			return form{}, unsupported("function pointer `%s` takes non-scalar arguments", m.Type)
		}
	}
	if m.Output != nil && m.Output.Kind != classify.KindPrimitive && m.Output.Dict != classify.DictUnit {
		return form{}, unsupported("function pointer `%s` returns a non-scalar", m.Type)
	}
	f := identity
	f.ctype = t.c.rustType(m.Type)
	f.zero = ""
	return f, nil
}

func (t *task) genericForm(m classify.Model) (form, error) {
	head := m.Head
	args := m.Type.GenericArgs()
	switch {
	case head.Kind == classify.KindDictionary && head.Dict == classify.DictBox:
		if len(m.Args) != 1 || len(args) != 1 {
			return form{}, unsupported("`%s` needs exactly one type argument", m.Type)
		}
		arg := m.Args[0]
		if len(arg.Wrappers) > 0 {
			return form{}, unsupported("boxed reference `%s` has no boundary form", m.Type)
		}
		if arg.Kind == classify.KindTrait {
			return t.valueForm(arg)
		}
		inner, err := t.valueForm(arg)
		if err != nil {
			return form{}, err
		}
		inner.to = fill(inner.to, "(*$v)")
		inner.from = "Box::new(" + inner.from + ")"
		return inner, nil
	case head.Kind == classify.KindDictionary && (head.Dict == classify.DictShared || head.Dict == classify.DictCell):
		return t.handleForm(m.Type), nil
	case head.Kind == classify.KindDictionary && head.Dict == classify.DictArray:
		if el := m.Args[0]; el.Kind == classify.KindPrimitive && len(el.Wrappers) == 0 {
			f := identity
			f.ctype = t.c.rustType(m.Type)
			return f, nil
		}
		return t.request(m.Type), nil
	case head.Kind == classify.KindDictionary && head.Dict == classify.DictSlice:
		return t.request(typeref.Generic("Vec", *m.Type.Elem)), nil
	case head.Kind == classify.KindOpaque:
		return t.handleForm(m.Type), nil
	case head.Kind == classify.KindComplex && t.c.opaqueEntry(head.Entry):
		return t.handleForm(m.Type), nil
	case head.Kind == classify.KindComplex, head.Kind == classify.KindDictionary:
		return t.request(m.Type), nil
	}
	return form{}, unsupported("`%s` has no boundary form", m.Type)
}

// callbackOwned is the owned type a callback converts to: borrowed and
// impl forms become boxed trait objects.
func callbackOwned(t typeref.TypeRef) typeref.TypeRef {
	if t.Kind == typeref.KindTraitObject || t.Kind == typeref.KindImplTrait {
		obj := typeref.TypeRef{Kind: typeref.KindTraitObject, Bounds: t.Bounds}
		return typeref.Generic("Box", obj)
	}
	return t
}

func fnOnce(owned typeref.TypeRef) bool {
	args := owned.GenericArgs()
	if len(args) != 1 {
		return false
	}
	for _, b := range args[0].Bounds {
		if last := b.Last(); last != nil && last.Name == "FnOnce" {
			return true
		}
	}
	return false
}

// wrapped reapplies the peeled wrappers of m.
func wrapped(m classify.Model) typeref.TypeRef {
	out := m.Type
	for i := len(m.Wrappers) - 1; i >= 0; i-- {
		e := out
		switch w := m.Wrappers[i]; w {
		case typeref.WrapRef, typeref.WrapRefMut:
			out = typeref.TypeRef{Kind: typeref.KindReference, Elem: &e, Mutable: w == typeref.WrapRefMut}
		default:
			out = typeref.TypeRef{Kind: typeref.KindPointer, Elem: &e, Mutable: w == typeref.WrapPtrMut}
		}
	}
	return out
}
