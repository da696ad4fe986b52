package compose

import (
	"strings"

	"ferment/internal/classify"
	"ferment/internal/diag"
	"ferment/internal/resolve"
	"ferment/internal/scope"
	"ferment/internal/syntax"
	"ferment/internal/typeref"
)

// function binds an exported free function under its mangled path.
func (t *task) function(e *resolve.Entry) {
	m := e.Fn
	if m == nil {
		return
	}
	t.site = m.Item.Span
	if !t.bindable(m, e.Path) {
		return
	}
	b, ok := t.call(m, mirrorName(fnKey(e.Path)), t.c.rustPath(e.Path), nil, e.Path, false)
	if !ok {
		return
	}
	t.funcs = append(t.funcs, FunctionBinding{Path: e.Path, Module: e.Path.Parent(), Binding: b})
}

// methods binds the public inherent methods of a mirrored type as
// `<Mirror>_<method>`. Problems skip the method, never the type.
func (t *task) methods(e *resolve.Entry, info *Info) {
	owner := t.c.rustPath(e.Path)
	for _, m := range e.Methods {
		t.site = m.Item.Span
		if !t.bindable(m, e.Path) {
			continue
		}
		var recv *receiver
		if m.Receiver != syntax.ReceiverNone {
			recv = t.receiver(info, m.Receiver)
		}
		b, ok := t.call(m, mirrorName(info.Key)+"_"+m.Name, owner+"::"+m.Name, recv, e.Path, true)
		if ok {
			info.Bindings = append(info.Bindings, b)
		}
	}
}

func (t *task) bindable(m *resolve.Method, owner scope.Chain) bool {
	switch {
	case m.Generic:
		diag.ReportWarning(t.reporter, diag.ClsGenericSkipped, m.Item.Span,
			"`"+m.Scope.String()+"` is generic and has no binding").
			InScope(owner.String()).
			WithHint("wrap it in a non-generic function for each type it is used with").
			Emit()
		return false
	case m.Item.Fn.Async:
		diag.ReportWarning(t.reporter, diag.ClsUnsupportedType, m.Item.Span,
			"`"+m.Scope.String()+"` is async and has no binding").
			InScope(owner.String()).Emit()
		return false
	}
	return true
}

// receiver is the self_ parameter of a method binding.
type receiver struct {
	ctype   string
	prelude []string
	arg     string
	post    []string
}

// receiver picks how self crosses: handles are lent or unboxed. Owned
// mirrors are converted and consumed; borrowed ones are read into a
// temporary that is written back after the call.
func (t *task) receiver(info *Info, kind syntax.Receiver) *receiver {
	if info.Strategy == StrategyOpaque {
		r := &receiver{ctype: "*mut " + t.c.rustType(info.Type)}
		switch kind {
		case syntax.ReceiverRef:
			r.arg = "&*self_"
		case syntax.ReceiverRefMut:
			r.arg = "&mut *self_"
		default:
			r.arg = "*Box::from_raw(self_)"
		}
		return r
	}
	f := t.mirrorForm(info.Key)
	r := &receiver{ctype: f.ctype}
	switch kind {
	case syntax.ReceiverRef:
		r.prelude, r.arg, r.post = lend(f, "self_", "&")
	case syntax.ReceiverRefMut:
		r.prelude, r.arg, r.post = lend(f, "self_", "&mut ")
	default:
		r.prelude = []string{"let self_ = " + fill(f.from, "self_") + ";"}
		r.arg = "self_"
	}
	return r
}

// call builds an extern "C" wrapper around callee. soft turns type
// problems into warnings.
func (t *task) call(m *resolve.Method, name, callee string, recv *receiver, owner scope.Chain, soft bool) (Binding, bool) {
	b := Binding{Name: name}
	var body code
	var args []string
	var post []string
	if recv != nil {
		b.Params = append(b.Params, Param{Name: "self_", Type: recv.ctype})
		body.block(recv.prelude)
		args = append(args, recv.arg)
		post = append(post, recv.post...)
	}
	single := len(m.Params) == 1 && recv == nil
	ok := true
	for i, u := range m.Params {
		if u == nil {
			return Binding{}, false
		}
		p, err := t.bindParam(identOrPositional(m.Names[i], i), u.Ref, t.classify(u.Ref, u.Scope), single)
		if err != nil {
			t.report(err, u.Span, owner, soft)
			ok = false
			continue
		}
		b.Params = append(b.Params, ffiParams([]sigParam{p})...)
		pre, arg, back := inward(p)
		body.block(pre)
		args = append(args, arg)
		post = append(post, back...)
	}
	var ret *sigParam
	if m.Ret != nil {
		r, err := t.returnParam(&m.Ret.Ref, t.classify(m.Ret.Ref, m.Ret.Scope))
		if err != nil {
			t.report(err, m.Ret.Span, owner, soft)
			ok = false
		}
		ret = r
	}
	if !ok {
		return Binding{}, false
	}
	if ret != nil {
		b.Ret = ret.form.ctype
	}
	callTail(&body, callee+"("+strings.Join(args, ", ")+")", ret, post)
	b.Body = body.lines
	return b, true
}

// bindParam is sigParam for exported calls: sequences, sets and maps
// arrive as flat arrays the callee copies from.
func (t *task) bindParam(name string, ref typeref.TypeRef, m classify.Model, single bool) (sigParam, error) {
	inner := m
	if inner.Borrowed() {
		inner.Wrappers = inner.Wrappers[1:]
	}
	if inner.Kind != classify.KindGeneric || inner.Head == nil || len(inner.Wrappers) > 0 ||
		inner.Head.Kind != classify.KindDictionary {
		return t.sigParam(name, ref, m)
	}
	var owned string
	switch inner.Head.Dict {
	case classify.DictVec, classify.DictSet:
		owned = t.c.rustType(inner.Type)
	case classify.DictSlice:
		owned = "Vec<_>"
	case classify.DictMap:
		owned = t.c.rustType(inner.Type)
	default:
		return t.sigParam(name, ref, m)
	}

	p := sigParam{name: name, orig: t.c.rustType(ref)}
	if m.Borrowed() {
		p.borrow = "&"
		if m.Wrappers[0] == typeref.WrapRefMut {
			p.borrow = "&mut "
		}
	}
	prefix := name + "_"
	if single {
		prefix = ""
	}
	elems := make([]form, len(inner.Args))
	for i, a := range inner.Args {
		if a.Borrowed() {
			return p, unsupported("borrowed element `%s` of `%s` has no owner", wrapped(a), inner.Type)
		}
		f, err := t.formOf(a)
		if err != nil {
			return p, err
		}
		elems[i] = f
	}
	count := prefix + "len"
	if inner.Head.Dict == classify.DictMap {
		keys, values := prefix+"keys", prefix+"values"
		p.flat = []Param{
			{Name: keys, Type: "*const " + elems[0].ctype},
			{Name: values, Type: "*const " + elems[1].ctype},
			{Name: count, Type: "usize"},
		}
		p.gather = "support::read_vec(" + keys + ", " + count + ").into_iter()" +
			".zip(support::read_vec(" + values + ", " + count + "))" +
			".map(|(k, v)| (" + fill(elems[0].from, "k") + ", " + fill(elems[1].from, "v") + "))" +
			".collect::<" + owned + ">()"
		return p, nil
	}
	values := prefix + "values"
	p.flat = []Param{
		{Name: values, Type: "*const " + elems[0].ctype},
		{Name: count, Type: "usize"},
	}
	p.gather = "support::read_vec(" + values + ", " + count + ").into_iter()"
	if elems[0].from != "$v" {
		p.gather += ".map(|o| " + fill(elems[0].from, "o") + ")"
	}
	p.gather += ".collect::<" + owned + ">()"
	return p, nil
}
