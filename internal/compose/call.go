package compose

import (
	"strings"

	"ferment/internal/classify"
	"ferment/internal/typeref"
)

// sigParam is one parameter of a call that crosses the boundary.
type sigParam struct {
	name string
	// orig is the Rust type as declared.
	orig string
	form form
	// borrow is "&" or "&mut " for reference parameters.
	borrow string
	// object marks borrowed trait objects, which cannot be copied out.
	object bool
	// flat replaces the single FFI parameter of a flattened collection;
	// gather rebuilds the Rust value from it.
	flat   []Param
	gather string
}

func (t *task) sigParam(name string, ref typeref.TypeRef, m classify.Model) (sigParam, error) {
	p := sigParam{name: name, orig: t.c.rustType(ref)}
	if m.Borrowed() {
		p.borrow = "&"
		if m.Wrappers[0] == typeref.WrapRefMut {
			p.borrow = "&mut "
		}
		m.Wrappers = m.Wrappers[1:]
		p.object = m.Kind == classify.KindTrait || m.Kind == classify.KindCallback
	}
	f, err := t.formOf(m)
	if err != nil {
		return p, err
	}
	if p.borrow == "&mut " && f.conv == ConvString {
		return p, unsupported("`%s` cannot be written back through a by-value string", ref)
	}
	p.form = f
	return p, nil
}

// returnParam classifies a return type; nil means unit.
func (t *task) returnParam(ref *typeref.TypeRef, m classify.Model) (*sigParam, error) {
	if ref == nil || (m.Kind == classify.KindDictionary && m.Dict == classify.DictUnit && len(m.Wrappers) == 0) {
		return nil, nil
	}
	if m.Borrowed() {
		return nil, unsupported("returning the borrowed `%s` needs an owner on the other side", *ref)
	}
	p, err := t.sigParam("result", *ref, m)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// inward converts a foreign argument into the value passed to Rust code.
// Owned arguments are consumed. Borrowed ones stay with the caller: handles
// are lent through their pointer, strings are copied and mirrors go through
// lend. post runs after the call.
func inward(p sigParam) (prelude []string, arg string, post []string) {
	let := "let "
	if strings.HasPrefix(p.borrow, "&mut") {
		let = "let mut "
	}
	if p.gather != "" {
		return []string{let + p.name + " = " + p.gather + ";"}, p.borrow + p.name, nil
	}
	if p.form.conv == ConvPointer {
		return nil, p.name, nil
	}
	if p.borrow != "" {
		switch {
		case p.form.handle:
			return nil, p.borrow + "*" + p.name, nil
		case p.form.conv == ConvString:
			return []string{let + p.name + " = " + p.name + ".to_owned_string();"}, p.borrow + p.name, nil
		case p.form.conv == ConvMirror:
			return lend(p.form, p.name, p.borrow)
		}
	}
	if p.form.from != "$v" {
		prelude = append(prelude, let+p.name+" = "+fill(p.form.from, p.name)+";")
	} else if p.borrow == "&mut " {
		prelude = append(prelude, let+p.name+" = "+p.name+";")
	}
	return prelude, p.borrow + p.name, nil
}

// lend borrows the mirror behind ptr without taking it from the caller: a
// bitwise copy is converted into a temporary, and after the call the
// temporary is converted back and written over the caller's mirror in
// place. The caller's allocation is never freed.
func lend(f form, ptr, borrow string) (prelude []string, arg string, post []string) {
	tmp := ptr + "tmp"
	if !strings.HasSuffix(ptr, "_") {
		tmp = ptr + "_tmp"
	}
	let := "let "
	if borrow == "&mut " {
		let = "let mut "
	}
	prelude = []string{let + tmp + " = " + fill(f.from, "support::boxed(std::ptr::read("+ptr+"))") + ";"}
	post = []string{"support::restore(" + ptr + ", " + fill(f.to, tmp) + ");"}
	return prelude, borrow + tmp, post
}

// outward converts a Rust argument for foreign code. References are
// copied out since the callee takes ownership.
func outward(p sigParam) string {
	v := p.name
	if p.borrow != "" && p.form.conv != ConvCopy && p.form.conv != ConvPointer {
		v = p.name + ".to_owned()"
	} else if p.borrow != "" {
		v = "*" + p.name
	}
	return fill(p.form.to, v)
}

func ffiParams(ps []sigParam) []Param {
	out := make([]Param, 0, len(ps))
	for _, p := range ps {
		if len(p.flat) > 0 {
			out = append(out, p.flat...)
			continue
		}
		out = append(out, Param{Name: p.name, Type: p.form.ctype})
	}
	return out
}

func paramList(ps []Param) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.Name + ": " + p.Type
	}
	return strings.Join(parts, ", ")
}

const voidPtr = "*const std::os::raw::c_void"
