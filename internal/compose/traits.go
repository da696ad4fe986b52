package compose

import (
	"strings"

	"ferment/internal/classify"
	"ferment/internal/diag"
	"ferment/internal/resolve"
	"ferment/internal/syntax"
	"ferment/internal/typeref"
)

// passThroughBounds are supertraits a mirror satisfies by declaration.
var passThroughBounds = map[string]bool{"Send": true, "Sync": true, "Sized": true, "Unpin": true}

type vmethod struct {
	m      *resolve.Method
	field  string
	params []sigParam
	ret    *sigParam
	// skip explains why the method is not in the vtable.
	skip string
}

// trait composes the vtable mirror of an exported trait: a context pointer
// plus one function pointer per &self method and a destructor. The mirror
// itself implements the trait, calling through the vtable.
func (t *task) trait(e *resolve.Entry) {
	it := e.Item()
	path := t.c.rustPath(e.Path)
	if len(e.Generics) > 0 {
		diag.ReportWarning(t.reporter, diag.ClsGenericSkipped, it.Span,
			"generic trait `"+e.Path.String()+"` has no vtable mirror").InScope(e.Path.String()).Emit()
		return
	}
	var markers []string
	for _, st := range e.Supertraits {
		if st == nil {
			return
		}
		last := st.Ref.Last()
		switch {
		case last != nil && passThroughBounds[last.Name]:
			if last.Name == "Send" || last.Name == "Sync" {
				markers = append(markers, last.Name)
			}
		default:
			t.report(unsupported("supertrait `%s` of `%s` cannot be implemented by a vtable", st.Ref, e.Path), st.Span, e.Path, false)
			return
		}
	}

	for _, m := range it.Items {
		if m.Kind != syntax.ItemFunction {
			t.report(unsupported("trait `%s` declares %s `%s`, which a vtable cannot carry", e.Path, m.Kind, m.Name), m.Span, e.Path, false)
			return
		}
	}

	info := &Info{
		Key:      e.Path.String(),
		Type:     typeref.Path(e.Path...),
		Module:   e.Path.Parent(),
		Strategy: StrategyTrait,
		Target:   "Box<dyn " + path + ">",
		Plan:     []Step{{Slot: "context", CType: voidPtr, Conv: ConvHandle, Restores: true, Releases: true}},
	}
	t.begin()
	name := mirrorName(info.Key)
	taken := map[string]bool{"context": true, "destroy": true}
	var methods []vmethod
	for _, m := range e.Methods {
		vm := vmethod{m: m, field: m.Name}
		if taken[vm.field] {
			vm.field += "_fn"
		}
		taken[vm.field] = true
		switch {
		case m.SelfSized:
			vm.skip = "requires Self: Sized"
		case m.Generic:
			vm.skip = "is generic"
			diag.ReportWarning(t.reporter, diag.ClsGenericSkipped, m.Item.Span,
				"trait method `"+m.Scope.String()+"` "+vm.skip+" and is not in the vtable").InScope(e.Path.String()).Emit()
		case m.Receiver != syntax.ReceiverRef:
			vm.skip = "does not take &self"
			diag.ReportWarning(t.reporter, diag.ClsReceiverSkipped, m.Item.Span,
				"trait method `"+m.Scope.String()+"` "+vm.skip+" and is not in the vtable").InScope(e.Path.String()).Emit()
		case m.Item.Fn.Async:
			vm.skip = "is async"
			diag.ReportWarning(t.reporter, diag.ClsReceiverSkipped, m.Item.Span,
				"trait method `"+m.Scope.String()+"` "+vm.skip+" and is not in the vtable").InScope(e.Path.String()).Emit()
		default:
			if !t.vtableSignature(e, &vm) {
				t.deps = nil
				return
			}
		}
		methods = append(methods, vm)
	}

	var d code
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	d.line("pub context: %s,", voidPtr)
	for _, vm := range methods {
		if vm.skip == "" {
			d.line("pub %s: %s,", vm.field, fnPtrType(vm.params, vm.ret))
		}
	}
	d.line("pub destroy: unsafe extern \"C\" fn(context: %s),", voidPtr)
	d.close("}")
	for _, mk := range markers {
		d.line("unsafe impl %s for %s {}", mk, name)
	}
	d.open("impl %s for %s {", path, name)
	for _, vm := range methods {
		t.vtableCall(&d, vm)
	}
	d.close("}")
	dropImpl(&d, name, "destroy")
	for _, vm := range methods {
		if vm.skip != "" {
			continue
		}
		d.open("unsafe extern \"C\" fn %s_rs_%s(%s) %s{", name, vm.field, paramList(contextParams(vm.params)), retSuffix(vm.ret))
		d.line("let obj = &*(context as *const %s);", info.Target)
		var args, post []string
		for _, p := range vm.params {
			pre, arg, back := inward(p)
			d.block(pre)
			args = append(args, arg)
			post = append(post, back...)
		}
		callTail(&d, "obj."+vm.m.Name+"("+strings.Join(args, ", ")+")", vm.ret, post)
		d.close("}")
	}
	d.open("unsafe extern \"C\" fn %s_rs_destroy(context: %s) {", name, voidPtr)
	d.line("drop(Box::from_raw(context as *mut %s));", info.Target)
	d.close("}")
	info.Decl = d.lines

	info.From = []string{"Box::from_raw(ffi)"}
	var to code
	to.open("support::boxed(Self {")
	to.line("context: Box::into_raw(Box::new(obj)) as %s,", voidPtr)
	for _, vm := range methods {
		if vm.skip == "" {
			to.line("%s: %s_rs_%s,", vm.field, name, vm.field)
		}
	}
	to.line("destroy: %s_rs_destroy,", name)
	to.close("})")
	info.To = to.lines
	info.Destroy = []string{"support::unbox_any(ffi);"}

	ctor := Binding{Name: name + "_ctor", Ret: "*mut " + name}
	ctor.Params = append(ctor.Params, Param{Name: "context", Type: voidPtr})
	fields := []string{"context"}
	for _, vm := range methods {
		if vm.skip == "" {
			ctor.Params = append(ctor.Params, Param{Name: vm.field, Type: fnPtrType(vm.params, vm.ret)})
			fields = append(fields, vm.field)
		}
	}
	ctor.Params = append(ctor.Params, Param{Name: "destroy", Type: "unsafe extern \"C\" fn(context: " + voidPtr + ")"})
	fields = append(fields, "destroy")
	ctor.Body = []string{"support::boxed(" + name + " { " + strings.Join(fields, ", ") + " })"}
	info.Bindings = append(info.Bindings, ctor, destroyBinding(name))
	t.finish(info)
}

func (t *task) vtableSignature(e *resolve.Entry, vm *vmethod) bool {
	m := vm.m
	for i, u := range m.Params {
		if u == nil {
			return false
		}
		p, err := t.sigParam(identOrPositional(m.Names[i], i), u.Ref, t.classify(u.Ref, u.Scope))
		if err == nil && p.object {
			err = unsupported("borrowed trait object `%s` cannot be handed to foreign code", u.Ref)
		}
		if err != nil {
			t.report(err, u.Span, e.Path, false)
			return false
		}
		vm.params = append(vm.params, p)
	}
	if m.Ret != nil {
		ret, err := t.returnParam(&m.Ret.Ref, t.classify(m.Ret.Ref, m.Ret.Scope))
		if err != nil {
			t.report(err, m.Ret.Span, e.Path, false)
			return false
		}
		vm.ret = ret
	}
	return true
}

// vtableCall writes the trait method of the mirror. Skipped methods abort
// when called.
func (t *task) vtableCall(d *code, vm vmethod) {
	m := vm.m
	recv := map[syntax.Receiver]string{
		syntax.ReceiverValue:  "self",
		syntax.ReceiverRef:    "&self",
		syntax.ReceiverRefMut: "&mut self",
	}[m.Receiver]
	var params []string
	if recv != "" {
		params = append(params, recv)
	}
	for i, u := range m.Params {
		ty := "_"
		if u != nil {
			ty = t.c.rustType(u.Ref)
		}
		params = append(params, identOrPositional(m.Names[i], i)+": "+ty)
	}
	sig := "fn " + m.Name + t.genericsDecl(m) + "(" + strings.Join(params, ", ") + ")"
	if m.Ret != nil {
		sig += " -> " + t.c.rustType(m.Ret.Ref)
	}
	if vm.skip != "" {
		if m.SelfSized && m.Item.Fn.HasBody {
			return
		}
		d.open("%s {", sig)
		d.line("support::unsupported(%q)", m.Scope.String())
		d.close("}")
		return
	}
	d.open("%s {", sig)
	d.open("unsafe {")
	args := []string{"self.context"}
	for _, p := range vm.params {
		args = append(args, outward(p))
	}
	if vm.ret == nil {
		d.line("(self.%s)(%s);", vm.field, strings.Join(args, ", "))
	} else {
		d.line("let result = (self.%s)(%s);", vm.field, strings.Join(args, ", "))
		d.line("%s", fill(vm.ret.form.from, "result"))
	}
	d.close("}")
	d.close("}")
}

// genericsDecl renders the type parameters of a method with their
// resolved bounds.
func (t *task) genericsDecl(m *resolve.Method) string {
	parts := make([]string, 0, len(m.Item.Generics.Params))
	for _, p := range m.Item.Generics.Params {
		if p.Name == "Self" {
			continue
		}
		part := p.Name
		if bounds, ok := t.c.ctx.Bounds(m.Scope, p.Name); ok && len(bounds) > 0 {
			bs := make([]string, len(bounds))
			for i, b := range bounds {
				bs[i] = t.c.rustType(b)
			}
			part += ": " + strings.Join(bs, " + ")
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return ""
	}
	return "<" + strings.Join(parts, ", ") + ">"
}

// callbackMirror composes `{ caller, context, destructor }` for a boxed or
// shared closure type.
func (t *task) callbackMirror(info *Info, m classify.Model) bool {
	seg := fnSegment(info.Type)
	if seg == nil {
		t.report(unsupported("`%s` is not a closure type", info.Type), t.site, nil, false)
		return false
	}
	name := mirrorName(info.Key)
	info.Strategy = StrategyCallback
	info.Target = t.c.rustType(info.Type)
	info.Plan = []Step{{Slot: "context", CType: voidPtr, Conv: ConvHandle, Restores: true, Releases: true}}

	var params []sigParam
	for i, in := range seg.Inputs {
		var im classify.Model
		if i < len(m.Inputs) {
			im = m.Inputs[i]
		}
		p, err := t.sigParam("o_"+itoa(i), in, im)
		if err != nil {
			t.report(err, t.site, nil, false)
			return false
		}
		params = append(params, p)
	}
	var ret *sigParam
	if seg.Output != nil && m.Output != nil {
		r, err := t.returnParam(seg.Output, *m.Output)
		if err != nil {
			t.report(err, t.site, nil, false)
			return false
		}
		ret = r
	}
	object := info.Type.GenericArgs()[0]
	markers := boundNames(object.Bounds)

	var d code
	d.line("#[repr(C)]")
	d.open("pub struct %s {", name)
	d.line("pub caller: %s,", fnPtrType(params, ret))
	d.line("pub context: %s,", voidPtr)
	d.line("pub destructor: unsafe extern \"C\" fn(context: %s),", voidPtr)
	d.close("}")
	for _, mk := range []string{"Send", "Sync"} {
		if markers[mk] {
			d.line("unsafe impl %s for %s {}", mk, name)
		}
	}
	dropImpl(&d, name, "destructor")
	d.open("unsafe extern \"C\" fn %s_rs_caller(%s) %s{", name, paramList(contextParams(params)), retSuffix(ret))
	d.line("let obj = &mut *(context as *mut %s);", info.Target)
	var args, post []string
	for _, p := range params {
		pre, arg, back := inward(p)
		d.block(pre)
		args = append(args, arg)
		post = append(post, back...)
	}
	callTail(&d, "obj("+strings.Join(args, ", ")+")", ret, post)
	d.close("}")
	d.open("unsafe extern \"C\" fn %s_rs_destructor(context: %s) {", name, voidPtr)
	d.line("drop(Box::from_raw(context as *mut %s));", info.Target)
	d.close("}")
	info.Decl = d.lines

	var from code
	from.line("let ffi = Box::from_raw(ffi);")
	closureParams := make([]string, len(params))
	args = []string{"ffi.context"}
	for i, p := range params {
		closureParams[i] = p.name + ": " + p.orig
		args = append(args, outward(p))
	}
	from.open("%s::new(move |%s| unsafe {", t.c.rustType(typeref.Path(info.Type.Names()...)), strings.Join(closureParams, ", "))
	if ret == nil {
		from.line("(ffi.caller)(%s);", strings.Join(args, ", "))
	} else {
		from.line("let result = (ffi.caller)(%s);", strings.Join(args, ", "))
		from.line("%s", fill(ret.form.from, "result"))
	}
	from.close("})")
	info.From = from.lines
	info.To = []string{
		"support::boxed(Self {",
		indentUnit + "caller: " + name + "_rs_caller,",
		indentUnit + "context: Box::into_raw(Box::new(obj)) as " + voidPtr + ",",
		indentUnit + "destructor: " + name + "_rs_destructor,",
		"})",
	}
	info.Destroy = []string{"support::unbox_any(ffi);"}
	info.Bindings = append(info.Bindings, Binding{
		Name: name + "_ctor",
		Params: []Param{
			{Name: "caller", Type: fnPtrType(params, ret)},
			{Name: "context", Type: voidPtr},
			{Name: "destructor", Type: "unsafe extern \"C\" fn(context: " + voidPtr + ")"},
		},
		Ret:  "*mut " + name,
		Body: []string{"support::boxed(" + name + " { caller, context, destructor })"},
	}, destroyBinding(name))
	return true
}

func fnSegment(owned typeref.TypeRef) *typeref.Segment {
	args := owned.GenericArgs()
	if len(args) != 1 {
		return nil
	}
	for _, b := range args[0].Bounds {
		if seg := b.Last(); seg != nil && seg.Paren {
			return seg
		}
	}
	return nil
}

func boundNames(bounds []typeref.TypeRef) map[string]bool {
	out := make(map[string]bool)
	for _, b := range bounds {
		if last := b.Last(); last != nil {
			out[last.Name] = true
		}
	}
	return out
}

func contextParams(ps []sigParam) []Param {
	return append([]Param{{Name: "context", Type: voidPtr}}, ffiParams(ps)...)
}

func fnPtrType(ps []sigParam, ret *sigParam) string {
	return "unsafe extern \"C\" fn(" + paramList(contextParams(ps)) + ")" + strings.TrimSuffix(" "+retSuffix(ret), " ")
}

func retSuffix(ret *sigParam) string {
	if ret == nil {
		return ""
	}
	return "-> " + ret.form.ctype + " "
}

// callTail calls into Rust, runs post and converts the result outward.
func callTail(d *code, call string, ret *sigParam, post []string) {
	if ret == nil {
		d.line("%s;", call)
		d.block(post)
		return
	}
	d.line("let result = %s;", call)
	d.block(post)
	d.line("%s", fill(ret.form.to, "result"))
}

func dropImpl(d *code, name, field string) {
	d.open("impl Drop for %s {", name)
	d.open("fn drop(&mut self) {")
	d.line("unsafe { (self.%s)(self.context) }", field)
	d.close("}")
	d.close("}")
}
