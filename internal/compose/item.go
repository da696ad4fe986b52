package compose

import (
	"fmt"
	"strconv"

	"fortio.org/safecast"

	"ferment/internal/diag"
	"ferment/internal/resolve"
	"ferment/internal/scope"
	"ferment/internal/syntax"
	"ferment/internal/typeref"
)

// slot is one mirror field and the original member it stands for.
type slot struct {
	name   string
	access string
	form   form
}

func (s slot) step() Step {
	return Step{Slot: s.name, CType: s.form.ctype, Conv: s.form.conv, Restores: s.form.from != "", Releases: s.form.destroy != ""}
}

// slotForm classifies a member reference after generic substitution.
func (t *task) slotForm(u *resolve.Use, subst map[string]typeref.TypeRef, owner scope.Chain) (form, bool) {
	if u == nil {
		// the type failed to parse and was reported then
		return form{}, false
	}
	ref := typeref.Substitute(u.Ref, subst)
	m := t.classify(ref, u.Scope)
	if m.Borrowed() {
		t.report(unsupported("borrowed member `%s` cannot be rebuilt from a mirror", ref), u.Span, owner, false)
		return form{}, false
	}
	f, err := t.formOf(m)
	if err != nil {
		t.report(err, u.Span, owner, false)
		return form{}, false
	}
	return f, true
}

func (t *task) slots(fields []syntax.Field, uses []*resolve.Use, subst map[string]typeref.TypeRef, owner scope.Chain) ([]slot, bool) {
	out := make([]slot, 0, len(fields))
	ok := true
	for i, f := range fields {
		var u *resolve.Use
		if i < len(uses) {
			u = uses[i]
		}
		fm, good := t.slotForm(u, subst, owner)
		if !good {
			ok = false
			continue
		}
		s := slot{name: f.Name, access: f.Name, form: fm}
		if f.Name == "" {
			s.name = "o_" + strconv.Itoa(i)
			s.access = strconv.Itoa(i)
		}
		out = append(out, s)
	}
	return out, ok
}

// structMirror composes a transparent struct. subst instantiates generic
// structs; nil for plain ones.
func (t *task) structMirror(e *resolve.Entry, info *Info, subst map[string]typeref.TypeRef) bool {
	it := e.Item()
	slots, ok := t.slots(it.Fields, e.Fields, subst, e.Path)
	if !ok {
		return false
	}
	name := mirrorName(info.Key)
	orig := t.c.rustPath(e.Path)
	info.Strategy = StrategyStruct
	info.Target = t.c.rustType(info.Type)

	var d code
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	for _, s := range slots {
		d.line("pub %s: %s,", s.name, s.form.ctype)
	}
	if len(slots) == 0 {
		d.line("pub _unit: u8,")
	}
	d.close("}")
	info.Decl = d.lines

	var from, to, destroy code
	from.line("let ffi = Box::from_raw(ffi);")
	switch {
	case it.Style == syntax.FieldsNamed:
		from.open("%s {", orig)
		to.open("support::boxed(Self {")
		for _, s := range slots {
			from.line("%s: %s,", s.access, fill(s.form.from, "ffi."+s.name))
			to.line("%s: %s,", s.name, fill(s.form.to, "obj."+s.access))
		}
		from.close("}")
		to.close("})")
	case it.Style == syntax.FieldsTuple:
		from.open("%s(", orig)
		to.open("support::boxed(Self {")
		for _, s := range slots {
			from.line("%s,", fill(s.form.from, "ffi."+s.name))
			to.line("%s: %s,", s.name, fill(s.form.to, "obj."+s.access))
		}
		from.close(")")
		to.close("})")
	default:
		from.line("let _ = ffi;")
		from.line("%s", orig)
		to.line("let _ = obj;")
		to.line("support::boxed(Self { _unit: 0 })")
	}
	releases := false
	for _, s := range slots {
		if s.form.destroy != "" {
			if !releases {
				destroy.line("let ffi = Box::from_raw(ffi);")
				releases = true
			}
			destroy.line("%s", fill(s.form.destroy, "ffi."+s.name))
		}
		info.Plan = append(info.Plan, s.step())
	}
	if !releases {
		destroy.line("support::unbox_any(ffi);")
	}
	info.From, info.To, info.Destroy = from.lines, to.lines, destroy.lines

	ctor := Binding{Name: name + "_ctor", Ret: "*mut " + name}
	var body code
	body.open("support::boxed(%s {", name)
	for _, s := range slots {
		ctor.Params = append(ctor.Params, Param{Name: s.name, Type: s.form.ctype})
		body.line("%s,", s.name)
	}
	if len(slots) == 0 {
		body.line("_unit: 0,")
	}
	body.close("})")
	ctor.Body = body.lines
	info.Bindings = append(info.Bindings, ctor, destroyBinding(name))
	for _, s := range slots {
		info.Bindings = append(info.Bindings, Binding{
			Name:   name + "_get_" + s.name,
			Params: []Param{{Name: "obj", Type: "*const " + name}},
			Ret:    s.form.ctype,
			Body:   []string{"(*obj)." + s.name},
		})
	}
	return true
}

func destroyBinding(name string) Binding {
	return Binding{
		Name:   name + "_destroy",
		Params: []Param{{Name: "ffi", Type: "*mut " + name}},
		Body:   []string{"<" + name + " as FFIConversion<_>>::destroy(ffi);"},
	}
}

type variant struct {
	name    string
	style   syntax.FieldStyle
	slots   []slot
	tag     uint32
	arm     string
	pattern string
}

// enumMirror composes a tagged union. Tags follow declaration order.
func (t *task) enumMirror(e *resolve.Entry, info *Info, subst map[string]typeref.TypeRef) bool {
	it := e.Item()
	if len(it.Variants) == 0 {
		t.report(unsupported("enum `%s` has no variants", e.Path), it.Span, e.Path, false)
		return false
	}
	name := mirrorName(info.Key)
	orig := t.c.rustPath(e.Path)
	info.Strategy = StrategyEnum
	info.Target = t.c.rustType(info.Type)

	variants := make([]variant, 0, len(it.Variants))
	ok := true
	for i, v := range it.Variants {
		var uses []*resolve.Use
		if i < len(e.Variants) {
			uses = e.Variants[i]
		}
		slots, good := t.slots(v.Fields, uses, subst, e.Path)
		if !good {
			ok = false
			continue
		}
		tag, err := safecast.Conv[uint32](i)
		if err != nil {
			t.report(unsupported("enum `%s` has too many variants", e.Path), it.Span, e.Path, false)
			return false
		}
		vr := variant{name: v.Name, style: v.Style, slots: slots, tag: tag, pattern: orig + "::" + v.Name}
		if len(slots) > 0 {
			vr.arm = name + "_" + v.Name
		}
		switch v.Style {
		case syntax.FieldsNamed:
			parts := ""
			for k, s := range slots {
				if k > 0 {
					parts += ", "
				}
				parts += s.access + ": f_" + s.name
			}
			vr.pattern += " { " + parts + " }"
		case syntax.FieldsTuple:
			parts := ""
			for k, s := range slots {
				if k > 0 {
					parts += ", "
				}
				parts += "f_" + s.name
			}
			vr.pattern += "(" + parts + ")"
		}
		variants = append(variants, vr)
	}
	if !ok {
		return false
	}

	payload := name + "_Payload"
	hasPayload := false
	var d code
	for _, v := range variants {
		d.line("pub const %s_Tag_%s: u32 = %d;", name, v.name, v.tag)
	}
	for _, v := range variants {
		if v.arm == "" {
			continue
		}
		hasPayload = true
		d.line("#[repr(C)]")
		d.line("#[derive(Clone, Copy)]")
		d.open("pub struct %s {", v.arm)
		for _, s := range v.slots {
			d.line("pub %s: %s,", s.name, s.form.ctype)
		}
		d.close("}")
	}
	if hasPayload {
		d.line("#[repr(C)]")
		d.line("#[derive(Clone, Copy)]")
		d.open("pub union %s {", payload)
		for _, v := range variants {
			if v.arm != "" {
				d.line("pub %s: %s,", v.name, v.arm)
			}
		}
		d.close("}")
	}
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	d.line("pub tag: u32,")
	if hasPayload {
		d.line("pub payload: %s,", payload)
	}
	d.close("}")
	info.Decl = d.lines

	var from, to, destroy code
	from.line("let ffi = Box::from_raw(ffi);")
	from.open("match ffi.tag {")
	to.open("support::boxed(match obj {")
	for _, v := range variants {
		if v.arm == "" {
			from.line("%d => %s,", v.tag, v.pattern)
			if hasPayload {
				to.line("%s => Self { tag: %d, payload: std::mem::zeroed() },", v.pattern, v.tag)
			} else {
				to.line("%s => Self { tag: %d },", v.pattern, v.tag)
			}
			continue
		}
		from.open("%d => {", v.tag)
		from.line("let arm = ffi.payload.%s;", v.name)
		switch v.style {
		case syntax.FieldsNamed:
			from.open("%s::%s {", orig, v.name)
			for _, s := range v.slots {
				from.line("%s: %s,", s.access, fill(s.form.from, "arm."+s.name))
			}
			from.close("}")
		default:
			from.open("%s::%s(", orig, v.name)
			for _, s := range v.slots {
				from.line("%s,", fill(s.form.from, "arm."+s.name))
			}
			from.close(")")
		}
		from.close("}")

		to.open("%s => {", v.pattern)
		to.line("let mut payload: %s = std::mem::zeroed();", payload)
		to.open("payload.%s = %s {", v.name, v.arm)
		for _, s := range v.slots {
			to.line("%s: %s,", s.name, fill(s.form.to, "f_"+s.name))
		}
		to.close("};")
		to.line("Self { tag: %d, payload }", v.tag)
		to.close("}")
	}
	from.line("tag => support::invalid_tag(tag),")
	from.close("}")
	to.close("})")

	var arms code
	for _, v := range variants {
		var frees []string
		for _, s := range v.slots {
			st := s.step()
			st.Slot = v.name + "." + s.name
			info.Plan = append(info.Plan, st)
			if s.form.destroy != "" {
				frees = append(frees, fill(s.form.destroy, "arm."+s.name))
			}
		}
		if len(frees) == 0 {
			continue
		}
		arms.open("%d => {", v.tag)
		arms.line("let arm = ffi.payload.%s;", v.name)
		arms.block(frees)
		arms.close("}")
	}
	if len(arms.lines) == 0 {
		destroy.line("support::unbox_any(ffi);")
	} else {
		destroy.line("let ffi = Box::from_raw(ffi);")
		destroy.open("match ffi.tag {")
		destroy.block(arms.lines)
		destroy.line("_ => {}")
		destroy.close("}")
	}
	info.From, info.To, info.Destroy = from.lines, to.lines, destroy.lines
	for _, v := range variants {
		info.Tags = append(info.Tags, Tag{Name: v.name, Value: v.tag})
	}

	ctor := Binding{Name: name + "_ctor", Params: []Param{{Name: "tag", Type: "u32"}}, Ret: "*mut " + name}
	ctor.Body = []string{"support::boxed(" + name + " { tag })"}
	if hasPayload {
		ctor.Params = append(ctor.Params, Param{Name: "payload", Type: payload})
		ctor.Body = []string{"support::boxed(" + name + " { tag, payload })"}
	}
	info.Bindings = append(info.Bindings, ctor, destroyBinding(name), Binding{
		Name:   name + "_get_tag",
		Params: []Param{{Name: "obj", Type: "*const " + name}},
		Ret:    "u32",
		Body:   []string{"(*obj).tag"},
	})
	return true
}

// opaque exposes an item as a boxed handle; only its destructor and
// methods are bound.
func (t *task) opaque(e *resolve.Entry) {
	info := &Info{
		Key:      e.Path.String(),
		Type:     typeref.Path(e.Path...),
		Module:   e.Path.Parent(),
		Strategy: StrategyOpaque,
	}
	t.begin()
	name := mirrorName(info.Key)
	info.Bindings = append(info.Bindings, Binding{
		Name:   name + "_destroy",
		Params: []Param{{Name: "ffi", Type: "*mut " + t.c.rustPath(e.Path)}},
		Body:   []string{"support::unbox_any(ffi);"},
	})
	t.methods(e, info)
	t.finish(info)
}

// custom binds a registered mirror. impl_custom_conversion! closures become
// the FFIConversion impl; without them the impl must be hand written.
func (t *task) custom(reg *resolve.Registration) {
	t.site = reg.Span
	mirror := t.c.rustPath(reg.Mirror)
	if reg.From == "" {
		if !t.c.handWritten(reg) {
			diag.ReportWarning(t.reporter, diag.ClsConversionIncomplete, reg.Span,
				fmt.Sprintf("`%s` is registered for `%s` without conversions", reg.Mirror, reg.Target)).
				InScope(reg.Mirror.String()).
				WithHint("add impl_custom_conversion!(Target, Mirror, from, to) or implement FFIConversion by hand").
				Emit()
		}
		return
	}
	target := t.c.rustType(reg.Target)
	info := &Info{
		Key:      "custom " + reg.Key(),
		Type:     reg.Target,
		Name:     reg.Mirror.Last(),
		Module:   reg.Mirror.Parent(),
		Strategy: StrategyCustom,
		Target:   target,
		ImplFor:  mirror,
		From: []string{
			"let ffi = Box::from_raw(ffi);",
			"(" + reg.From + ")(&*ffi)",
		},
		To:      []string{"support::boxed((" + reg.To + ")(&obj))"},
		Destroy: []string{"support::unbox_any(ffi);"},
		Plan:    []Step{{Slot: "self", CType: "*mut " + mirror, Conv: ConvMirror, Restores: true, Releases: true}},
	}
	t.infos = append(t.infos, info)
}

// handWritten looks for an FFIConversion impl on the mirror.
func (c *Composer) handWritten(reg *resolve.Registration) bool {
	found := false
	for _, tree := range c.ctx.Forest.Trees {
		tree.Walk(func(n *scope.Node) {
			for _, im := range n.Impls {
				if im.Trait == nil || im.Type == nil {
					continue
				}
				tr, err1 := typeref.Parse(im.Trait.Text)
				self, err2 := typeref.Parse(im.Type.Text)
				if err1 != nil || err2 != nil {
					continue
				}
				if last := tr.Last(); last != nil && last.Name == "FFIConversion" && self.Last() != nil && self.Last().Name == reg.Mirror.Last() {
					found = true
				}
			}
		})
	}
	return found
}
