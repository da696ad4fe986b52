package compose

import (
	"strings"

	"ferment/internal/classify"
	"ferment/internal/syntax"
	"ferment/internal/typeref"
)

// instantiate composes the mirror of one generic instantiation. Every
// instantiation lives in the generics module under its mangled name.
func (t *task) instantiate(r request) {
	t.site = r.span
	m := t.classify(r.ty, nil)
	info := &Info{Key: r.ty.String(), Type: r.ty}
	t.begin()
	ok := false
	switch {
	case m.Kind == classify.KindCallback:
		ok = t.callbackMirror(info, m)
	case m.Kind != classify.KindGeneric || m.Head == nil:
		t.report(unsupported("`%s` is not a generic instantiation", r.ty), r.span, nil, false)
	case m.Head.Kind == classify.KindComplex:
		ok = t.userGeneric(info, m)
	case m.Head.Kind == classify.KindDictionary:
		switch m.Head.Dict {
		case classify.DictVec, classify.DictSet, classify.DictArray:
			ok = t.sequenceMirror(info, m)
		case classify.DictMap:
			ok = t.mapMirror(info, m)
		case classify.DictOption:
			ok = t.optionMirror(info, m)
		case classify.DictResult:
			ok = t.resultMirror(info, m)
		case classify.DictTuple:
			ok = t.tupleMirror(info, m)
		default:
			t.report(unsupported("`%s` has no generic mirror", r.ty), r.span, nil, false)
		}
	default:
		t.report(unsupported("`%s` has no generic mirror", r.ty), r.span, nil, false)
	}
	if !ok {
		t.deps = nil
		return
	}
	t.finish(info)
}

// argForm is the form of the i-th type argument; arguments are owned.
func (t *task) argForm(m classify.Model, i int) (form, bool) {
	if i >= len(m.Args) {
		t.report(unsupported("`%s` is missing a type argument", m.Type), t.site, nil, false)
		return form{}, false
	}
	arg := m.Args[i]
	if arg.Borrowed() {
		t.report(unsupported("borrowed argument `%s` of `%s` has no owner", wrapped(arg), m.Type), t.site, nil, false)
		return form{}, false
	}
	f, err := t.formOf(arg)
	if err != nil {
		t.report(err, t.site, nil, false)
		return form{}, false
	}
	return f, true
}

func needsZero(f form, ty typeref.TypeRef) error {
	if f.zero == "" {
		return unsupported("`%s` has no empty value to fill an absent slot", ty)
	}
	return nil
}

// userGeneric composes an instantiated user struct or enum by substituting
// its type parameters.
func (t *task) userGeneric(info *Info, m classify.Model) bool {
	e := m.Head.Entry
	args := m.Type.GenericArgs()
	if len(args) != len(e.Generics) {
		t.report(unsupported("`%s` takes %d type arguments", e.Path, len(e.Generics)), t.site, nil, false)
		return false
	}
	subst := make(map[string]typeref.TypeRef, len(args))
	for i, g := range e.Generics {
		subst[g] = args[i]
	}
	if e.Kind() == syntax.ItemEnum {
		return t.enumMirror(e, info, subst)
	}
	return t.structMirror(e, info, subst)
}

func (t *task) sequenceMirror(info *Info, m classify.Model) bool {
	el, ok := t.argForm(m, 0)
	if !ok {
		return false
	}
	name := mirrorName(info.Key)
	info.Strategy = StrategySequence
	info.Target = t.c.rustType(info.Type)
	collect := ".collect()"
	if m.Head.Dict == classify.DictArray {
		collect = ".collect::<Vec<_>>()"
	}

	var d code
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	d.line("pub count: usize,")
	d.line("pub values: *mut %s,", el.ctype)
	d.close("}")
	info.Decl = d.lines

	from := []string{"let ffi = Box::from_raw(ffi);"}
	items := "support::take_vec(ffi.values, ffi.count).into_iter()"
	if el.from != "$v" {
		items += ".map(|o| " + fill(el.from, "o") + ")"
	}
	if m.Head.Dict == classify.DictArray {
		from = append(from, "support::to_array("+items+collect+")")
	} else {
		from = append(from, items+collect)
	}
	info.From = from
	mapped := "obj.into_iter()"
	if el.to != "$v" {
		mapped += ".map(|o| " + fill(el.to, "o") + ")"
	}
	info.To = []string{
		"let values: Vec<" + el.ctype + "> = " + mapped + ".collect();",
		"support::boxed(Self { count: values.len(), values: support::boxed_vec(values) })",
	}
	info.Destroy = []string{"let ffi = Box::from_raw(ffi);"}
	if el.destroy != "" {
		info.Destroy = append(info.Destroy,
			"for o in support::take_vec(ffi.values, ffi.count) {",
			indentUnit+fill(el.destroy, "o"),
			"}")
	} else {
		info.Destroy = append(info.Destroy, "drop(support::take_vec(ffi.values, ffi.count));")
	}
	info.Plan = []Step{{Slot: "values", CType: "*mut " + el.ctype, Conv: el.conv, Restores: true, Releases: true}}
	info.Bindings = append(info.Bindings, Binding{
		Name: name + "_ctor",
		Params: []Param{
			{Name: "values", Type: "*const " + el.ctype},
			{Name: "count", Type: "usize"},
		},
		Ret:  "*mut " + name,
		Body: []string{"support::boxed(" + name + " { count, values: support::boxed_vec(support::read_vec(values, count)) })"},
	}, destroyBinding(name))
	return true
}

func (t *task) mapMirror(info *Info, m classify.Model) bool {
	kf, ok := t.argForm(m, 0)
	if !ok {
		return false
	}
	vf, ok := t.argForm(m, 1)
	if !ok {
		return false
	}
	name := mirrorName(info.Key)
	info.Strategy = StrategyMap
	info.Target = t.c.rustType(info.Type)

	var d code
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	d.line("pub count: usize,")
	d.line("pub keys: *mut %s,", kf.ctype)
	d.line("pub values: *mut %s,", vf.ctype)
	d.close("}")
	info.Decl = d.lines

	info.From = []string{
		"let ffi = Box::from_raw(ffi);",
		"let keys = support::take_vec(ffi.keys, ffi.count);",
		"let values = support::take_vec(ffi.values, ffi.count);",
		"keys.into_iter().zip(values).map(|(k, v)| (" + fill(kf.from, "k") + ", " + fill(vf.from, "v") + ")).collect()",
	}
	info.To = []string{
		"let (keys, values): (Vec<" + kf.ctype + ">, Vec<" + vf.ctype + ">) = obj",
		indentUnit + ".into_iter()",
		indentUnit + ".map(|(k, v)| (" + fill(kf.to, "k") + ", " + fill(vf.to, "v") + "))",
		indentUnit + ".unzip();",
		"support::boxed(Self { count: keys.len(), keys: support::boxed_vec(keys), values: support::boxed_vec(values) })",
	}
	var destroy code
	destroy.line("let ffi = Box::from_raw(ffi);")
	for _, part := range []struct {
		field string
		f     form
	}{{"keys", kf}, {"values", vf}} {
		if part.f.destroy == "" {
			destroy.line("drop(support::take_vec(ffi.%s, ffi.count));", part.field)
			continue
		}
		destroy.open("for o in support::take_vec(ffi.%s, ffi.count) {", part.field)
		destroy.line("%s", fill(part.f.destroy, "o"))
		destroy.close("}")
	}
	info.Destroy = destroy.lines
	info.Plan = []Step{
		{Slot: "keys", CType: "*mut " + kf.ctype, Conv: kf.conv, Restores: true, Releases: true},
		{Slot: "values", CType: "*mut " + vf.ctype, Conv: vf.conv, Restores: true, Releases: true},
	}
	info.Bindings = append(info.Bindings, Binding{
		Name: name + "_ctor",
		Params: []Param{
			{Name: "keys", Type: "*const " + kf.ctype},
			{Name: "values", Type: "*const " + vf.ctype},
			{Name: "count", Type: "usize"},
		},
		Ret: "*mut " + name,
		Body: []string{
			"support::boxed(" + name + " {",
			indentUnit + "count,",
			indentUnit + "keys: support::boxed_vec(support::read_vec(keys, count)),",
			indentUnit + "values: support::boxed_vec(support::read_vec(values, count)),",
			"})",
		},
	}, destroyBinding(name))
	return true
}

func (t *task) optionMirror(info *Info, m classify.Model) bool {
	vf, ok := t.argForm(m, 0)
	if !ok {
		return false
	}
	if err := needsZero(vf, m.Type); err != nil {
		t.report(err, t.site, nil, false)
		return false
	}
	name := mirrorName(info.Key)
	info.Strategy = StrategyOption
	info.Target = t.c.rustType(info.Type)

	var d code
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	d.line("pub is_some: bool,")
	d.line("pub value: %s,", vf.ctype)
	d.close("}")
	info.Decl = d.lines

	info.From = []string{
		"let ffi = Box::from_raw(ffi);",
		"if ffi.is_some { Some(" + fill(vf.from, "ffi.value") + ") } else { None }",
	}
	info.To = []string{
		"support::boxed(match obj {",
		indentUnit + "Some(o) => Self { is_some: true, value: " + fill(vf.to, "o") + " },",
		indentUnit + "None => Self { is_some: false, value: " + vf.zero + " },",
		"})",
	}
	if vf.destroy != "" {
		info.Destroy = []string{
			"let ffi = Box::from_raw(ffi);",
			"if ffi.is_some {",
			indentUnit + fill(vf.destroy, "ffi.value"),
			"}",
		}
	} else {
		info.Destroy = []string{"support::unbox_any(ffi);"}
	}
	info.Plan = []Step{{Slot: "value", CType: vf.ctype, Conv: vf.conv, Restores: true, Releases: vf.destroy != ""}}
	info.Bindings = append(info.Bindings, Binding{
		Name:   name + "_ctor",
		Params: []Param{{Name: "is_some", Type: "bool"}, {Name: "value", Type: vf.ctype}},
		Ret:    "*mut " + name,
		Body:   []string{"support::boxed(" + name + " { is_some, value })"},
	}, destroyBinding(name))
	return true
}

func (t *task) resultMirror(info *Info, m classify.Model) bool {
	of, ok := t.argForm(m, 0)
	if !ok {
		return false
	}
	ef, ok := t.argForm(m, 1)
	if !ok {
		return false
	}
	for _, f := range []form{of, ef} {
		if err := needsZero(f, m.Type); err != nil {
			t.report(err, t.site, nil, false)
			return false
		}
	}
	name := mirrorName(info.Key)
	info.Strategy = StrategyResult
	info.Target = t.c.rustType(info.Type)

	var d code
	d.line("pub const %s_Tag_Ok: u32 = 0;", name)
	d.line("pub const %s_Tag_Err: u32 = 1;", name)
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	d.line("pub tag: u32,")
	d.line("pub ok: %s,", of.ctype)
	d.line("pub error: %s,", ef.ctype)
	d.close("}")
	info.Decl = d.lines
	info.Tags = []Tag{{Name: "Ok", Value: 0}, {Name: "Err", Value: 1}}

	info.From = []string{
		"let ffi = Box::from_raw(ffi);",
		"match ffi.tag {",
		indentUnit + "0 => Ok(" + fill(of.from, "ffi.ok") + "),",
		indentUnit + "1 => Err(" + fill(ef.from, "ffi.error") + "),",
		indentUnit + "tag => support::invalid_tag(tag),",
		"}",
	}
	info.To = []string{
		"support::boxed(match obj {",
		indentUnit + "Ok(o) => Self { tag: 0, ok: " + fill(of.to, "o") + ", error: " + ef.zero + " },",
		indentUnit + "Err(e) => Self { tag: 1, ok: " + of.zero + ", error: " + fill(ef.to, "e") + " },",
		"})",
	}
	var destroy code
	if of.destroy == "" && ef.destroy == "" {
		destroy.line("support::unbox_any(ffi);")
	} else {
		destroy.line("let ffi = Box::from_raw(ffi);")
		destroy.open("match ffi.tag {")
		if of.destroy != "" {
			destroy.line("0 => %s", strings.TrimSuffix(fill(of.destroy, "ffi.ok"), ";")+",")
		}
		if ef.destroy != "" {
			destroy.line("1 => %s", strings.TrimSuffix(fill(ef.destroy, "ffi.error"), ";")+",")
		}
		destroy.line("_ => {}")
		destroy.close("}")
	}
	info.Destroy = destroy.lines
	info.Plan = []Step{
		{Slot: "ok", CType: of.ctype, Conv: of.conv, Restores: true, Releases: of.destroy != ""},
		{Slot: "error", CType: ef.ctype, Conv: ef.conv, Restores: true, Releases: ef.destroy != ""},
	}
	info.Bindings = append(info.Bindings, Binding{
		Name: name + "_ctor",
		Params: []Param{
			{Name: "tag", Type: "u32"},
			{Name: "ok", Type: of.ctype},
			{Name: "error", Type: ef.ctype},
		},
		Ret:  "*mut " + name,
		Body: []string{"support::boxed(" + name + " { tag, ok, error })"},
	}, destroyBinding(name))
	return true
}

func (t *task) tupleMirror(info *Info, m classify.Model) bool {
	forms := make([]form, len(m.Args))
	for i := range m.Args {
		f, ok := t.argForm(m, i)
		if !ok {
			return false
		}
		forms[i] = f
	}
	name := mirrorName(info.Key)
	info.Strategy = StrategyTuple
	info.Target = t.c.rustType(info.Type)

	slots := make([]slot, len(forms))
	for i, f := range forms {
		slots[i] = slot{name: identOrPositional("", i), access: itoa(i), form: f}
	}
	var d code
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	for _, s := range slots {
		d.line("pub %s: %s,", s.name, s.form.ctype)
	}
	d.close("}")
	info.Decl = d.lines

	var from, to, destroy code
	from.line("let ffi = Box::from_raw(ffi);")
	from.open("(")
	to.open("support::boxed(Self {")
	releases := false
	for _, s := range slots {
		from.line("%s,", fill(s.form.from, "ffi."+s.name))
		to.line("%s: %s,", s.name, fill(s.form.to, "obj."+s.access))
		if s.form.destroy != "" {
			if !releases {
				destroy.line("let ffi = Box::from_raw(ffi);")
				releases = true
			}
			destroy.line("%s", fill(s.form.destroy, "ffi."+s.name))
		}
		info.Plan = append(info.Plan, s.step())
	}
	from.close(")")
	to.close("})")
	if !releases {
		destroy.line("support::unbox_any(ffi);")
	}
	info.From, info.To, info.Destroy = from.lines, to.lines, destroy.lines

	ctor := Binding{Name: name + "_ctor", Ret: "*mut " + name}
	names := make([]string, len(slots))
	for i, s := range slots {
		ctor.Params = append(ctor.Params, Param{Name: s.name, Type: s.form.ctype})
		names[i] = s.name
	}
	ctor.Body = []string{"support::boxed(" + name + " { " + strings.Join(names, ", ") + " })"}
	info.Bindings = append(info.Bindings, ctor, destroyBinding(name))
	return true
}
