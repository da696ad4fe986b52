package resolve

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"strings"

	"ferment/internal/diag"
	"ferment/internal/scope"
	"ferment/internal/syntax"
	"ferment/internal/trace"
	"ferment/internal/typeref"
)

// UnknownFunc reports whether a reference still classifies as Unknown in
// the given scope.
type UnknownFunc func(t typeref.TypeRef, sc scope.Chain) bool

// Refine registers custom conversions, then runs the bounded fixed point:
// every pass rewrites the references that are still unknown, and the loop
// stops once a pass leaves the unknown set unchanged. Afterwards trait
// implementors are bound, reachability is computed from annotated items and
// every reachable reference that stayed unknown is reported.
func (c *Context) Refine(ctx context.Context, unknown UnknownFunc) error {
	c.mustMutable("Refine")
	ctx, sp := trace.Start(ctx, trace.ScopeStage, "refine")
	defer func() { sp.WithExtra("passes", itoa(c.passes)).End("") }()

	c.buildRegistry()

	// the initial pass qualifies everything, including references that
	// already classify, so every occurrence ends up in canonical form
	for _, u := range c.uses {
		u.Ref = c.qualify(u, unknown)
	}
	c.passes = 1

	prev := ""
	limit := len(c.uses) + 2
	for c.passes < limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		pending := c.unknownUses(unknown)
		sig := signature(pending)
		if len(pending) == 0 || sig == prev {
			break
		}
		prev = sig
		c.passes++
		for _, u := range pending {
			u.Ref = c.qualify(u, unknown)
		}
		trace.Point(ctx, trace.ScopeStage, "refine-pass", itoa(len(pending))+" unresolved")
	}

	c.buildImpls()
	c.markReachable()
	c.reportMalformed()
	c.reportUnresolved(unknown)
	return nil
}

func (c *Context) unknownUses(unknown UnknownFunc) []*Use {
	var out []*Use
	for _, u := range c.uses {
		if unknown(u.Ref, u.Scope) {
			out = append(out, u)
		}
	}
	return out
}

func signature(uses []*Use) string {
	var b strings.Builder
	for _, u := range uses {
		b.WriteString(u.Scope.String())
		b.WriteByte('|')
		b.WriteString(u.Ref.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// qualify rewrites every path node of u.Ref that names something resolvable.
func (c *Context) qualify(u *Use, unknown UnknownFunc) typeref.TypeRef {
	return typeref.Rewrite(u.Ref, func(p typeref.TypeRef) typeref.TypeRef {
		return c.qualifyPath(u, p, unknown)
	})
}

func (c *Context) qualifyPath(u *Use, p typeref.TypeRef, unknown UnknownFunc) typeref.TypeRef {
	names := p.Names()
	if len(names) == 1 {
		switch name := names[0]; {
		case slices.Contains(u.Generics, name), IsPrimitive(name):
			return p
		case name == "Self":
			if u.Self != nil && !unknown(u.Self.Ref, u.Self.Scope) {
				return u.Self.Ref
			}
			return p
		}
	}
	if norm := NormalizeStd(names); len(norm) != len(names) || norm[0] != names[0] {
		names = norm
		p = p.WithSegments(names)
	}
	if e := c.items[strings.Join(names, "::")]; e != nil && e.Kind() != syntax.ItemTypeAlias {
		return p.WithSegments(e.Path)
	}
	if u.Node == nil {
		return p
	}
	target, ok := c.Forest.ResolvePath(u.Node, names, p.Global)
	if ok && target.Decl != nil {
		e := c.byDecl[target.Decl]
		if e == nil {
			return p
		}
		if e.Kind() == syntax.ItemTypeAlias {
			if exp, ok := c.expandAlias(e, p, unknown); ok {
				return exp
			}
		}
		return p.WithSegments(e.Path)
	}
	if !ok {
		if full, found := c.Forest.ImportPath(u.Node, names[0]); found {
			return p.WithSegments(NormalizeStd(append(full, names[1:]...)))
		}
	}
	return p
}

// expandAlias replaces one alias layer once the alias target is resolved.
func (c *Context) expandAlias(e *Entry, p typeref.TypeRef, unknown UnknownFunc) (typeref.TypeRef, bool) {
	if e.Alias == nil || unknown(e.Alias.Ref, e.Alias.Scope) {
		return typeref.TypeRef{}, false
	}
	subst := make(map[string]typeref.TypeRef, len(e.Generics))
	args := p.GenericArgs()
	for i, g := range e.Generics {
		if i < len(args) {
			subst[g] = args[i]
		}
	}
	return typeref.Substitute(e.Alias.Ref, subst), true
}

// preludePaths are std items that are in scope by default; they are
// always written by their short name.
var preludePaths = map[string]string{
	"std::boxed::Box":     "Box",
	"std::option::Option": "Option",
	"std::result::Result": "Result",
	"std::string::String": "String",
	"std::vec::Vec":       "Vec",
}

// NormalizeStd maps `core::` and `alloc::` paths onto `std::`, and full
// paths of prelude items onto their short name.
func NormalizeStd(names []string) []string {
	if len(names) > 1 && (names[0] == "core" || names[0] == "alloc") {
		names = append([]string{"std"}, names[1:]...)
	}
	if len(names) == 3 && names[0] == "std" {
		if short, ok := preludePaths[strings.Join(names, "::")]; ok {
			return []string{short}
		}
	}
	return names
}

func (c *Context) buildImpls() {
	for _, rec := range c.impls {
		if rec.trait != nil {
			te := c.traits[rec.trait.Ref.PathString()]
			if te == nil {
				continue
			}
			te.Impls = append(te.Impls, ImplBinding{
				For:   rec.self.Ref,
				Args:  rec.trait.Ref.GenericArgs(),
				Scope: rec.scope,
				Item:  rec.item,
			})
			continue
		}
		target := c.items[rec.self.Ref.PathString()]
		if target == nil {
			continue
		}
		target.Methods = append(target.Methods, rec.funcs...)
	}
	for _, e := range c.entries {
		if e.Kind() == syntax.ItemTrait {
			sort.SliceStable(e.Impls, func(i, j int) bool {
				return e.Impls[i].For.String() < e.Impls[j].For.String()
			})
		}
	}
}

// markReachable walks from exported and opaque declarations through every
// reference they make. Registered targets stop the walk: their mirror is
// user-supplied.
func (c *Context) markReachable() {
	var queue []*Entry
	push := func(e *Entry) {
		if e != nil && !e.Reachable {
			e.Reachable = true
			queue = append(queue, e)
		}
	}
	for _, e := range c.entries {
		if ann := e.Ann(); ann.Export || ann.Opaque {
			push(e)
		}
	}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e.Ann().Opaque {
			continue
		}
		for _, u := range e.refs() {
			typeref.Walk(u.Ref, func(t typeref.TypeRef) bool {
				if !t.IsPath() {
					return true
				}
				key := t.PathString()
				if c.registry.Lookup(key) != nil {
					return true
				}
				if dep := c.items[key]; dep != nil {
					push(dep)
				}
				return true
			})
		}
	}
}

// refs lists every reference an entry's surface makes.
func (e *Entry) refs() []*Use {
	var out []*Use
	add := func(us ...*Use) {
		for _, u := range us {
			if u != nil {
				out = append(out, u)
			}
		}
	}
	add(e.Fields...)
	for _, v := range e.Variants {
		add(v...)
	}
	add(e.Alias)
	add(e.Supertraits...)
	methods := e.Methods
	if e.Fn != nil {
		methods = append([]*Method{e.Fn}, methods...)
	}
	for _, m := range methods {
		if m.Generic || m.SelfSized {
			continue
		}
		add(m.Params...)
		add(m.Ret)
	}
	return out
}

// Refs exposes the references of an entry's surface.
func (e *Entry) Refs() []*Use { return e.refs() }

func (c *Context) reportUnresolved(unknown UnknownFunc) {
	for _, e := range c.entries {
		if !e.Reachable || e.Ann().Opaque {
			continue
		}
		for _, u := range e.refs() {
			if !unknown(u.Ref, u.Scope) {
				continue
			}
			diag.ReportError(c.reporter, diag.ResUnresolvedType, u.Span,
				"cannot resolve type `"+u.Orig.String()+"` in "+u.Role.String()+" of `"+e.Path.String()+"`").
				InScope(u.Owner.String()).
				WithHint("import the type, export it, or register a mirror for it").
				Emit()
		}
	}
}

// implLive reports whether an impl block touches the export closure, either
// through its self type or through the trait it implements.
func (c *Context) implLive(rec *implRecord) bool {
	if e := c.items[rec.self.Ref.PathString()]; e != nil && e.Reachable {
		return true
	}
	if rec.trait != nil {
		if e := c.traits[rec.trait.Ref.PathString()]; e != nil && e.Reachable {
			return true
		}
	}
	return false
}

// reportMalformed emits the type expressions that failed to parse on items
// the bindings need. Unreachable helpers may use any syntax.
func (c *Context) reportMalformed() {
	for _, m := range c.malformed {
		if m.live != nil && !m.live() {
			continue
		}
		diag.ReportError(c.reporter, diag.SynBadType, m.span, m.msg).InScope(m.owner.String()).Emit()
	}
	c.malformed = nil
}

func itoa(n int) string { return strconv.Itoa(n) }
