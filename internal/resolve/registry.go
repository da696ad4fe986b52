package resolve

import (
	"sort"
	"strings"

	"ferment/internal/diag"
	"ferment/internal/scope"
	"ferment/internal/source"
	"ferment/internal/syntax"
	"ferment/internal/typeref"
)

// Registration is a user-supplied mirror for a target type.
type Registration struct {
	// Target is the canonical target path.
	Target typeref.TypeRef
	// Mirror is the canonical path of the registering type.
	Mirror scope.Chain
	Entry  *Entry
	// From and To are the conversion closures of impl_custom_conversion!
	// with paths made absolute, empty when the user implements the
	// conversion traits by hand.
	From string
	To   string
	Span source.Span
}

// Key is the lookup key of the target.
func (r *Registration) Key() string { return r.Target.PathString() }

// Registry maps target paths to their registered mirrors. There is at most
// one mirror per target and one target per mirror.
type Registry struct {
	byTarget map[string]*Registration
	byMirror map[string]*Registration
}

func newRegistry() *Registry {
	return &Registry{byTarget: make(map[string]*Registration), byMirror: make(map[string]*Registration)}
}

// Lookup returns the registration for a target path.
func (r *Registry) Lookup(target string) *Registration {
	if r == nil {
		return nil
	}
	return r.byTarget[target]
}

// ByMirror returns the registration whose mirror is path.
func (r *Registry) ByMirror(path string) *Registration {
	if r == nil {
		return nil
	}
	return r.byMirror[path]
}

// All returns registrations ordered by target.
func (r *Registry) All() []*Registration {
	out := make([]*Registration, 0, len(r.byTarget))
	for _, reg := range r.byTarget {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Len reports the number of registrations.
func (r *Registry) Len() int { return len(r.byTarget) }

// buildRegistry reads register annotations, then impl_custom_conversion!
// calls. A conflicting second registration is an error naming both sites.
func (c *Context) buildRegistry() {
	for _, e := range c.entries {
		ann := e.Ann()
		if !ann.Registered() {
			continue
		}
		target := c.resolveTarget(e.Decl.Node, ann.Register)
		if !hasReprC(e.Item()) {
			diag.ReportWarning(c.reporter, diag.ClsRegisterBadTarget, e.Item().Span,
				"registered mirror `"+e.Path.String()+"` is not #[repr(C)]").
				InScope(e.Path.String()).Emit()
		}
		c.register(&Registration{Target: target, Mirror: e.Path, Entry: e, Span: ann.RegisterSpan})
	}
	for _, t := range c.Forest.Trees {
		t.Walk(func(n *scope.Node) {
			for _, m := range n.Macros {
				if m.Name == "impl_custom_conversion" && m.Macro != nil {
					c.customConversion(n, m)
				}
			}
		})
	}
}

// impl_custom_conversion!(Target, Mirror, from_expr, to_expr)
func (c *Context) customConversion(n *scope.Node, m *syntax.Item) {
	args := m.Macro.Args
	if len(args) != 2 && len(args) != 4 {
		diag.ReportError(c.reporter, diag.SynBadAttribute, m.Span,
			"impl_custom_conversion! expects (Target, Mirror) or (Target, Mirror, from, to)").
			InScope(n.Chain.String()).Emit()
		return
	}
	target, err1 := typeref.Parse(args[0])
	mirror, err2 := typeref.Parse(args[1])
	if err1 != nil || err2 != nil || !target.IsPath() || !mirror.IsPath() {
		diag.ReportError(c.reporter, diag.SynBadAttribute, m.Span, "impl_custom_conversion! arguments must be type paths").
			InScope(n.Chain.String()).Emit()
		return
	}
	found, ok := c.Forest.ResolvePath(n, NormalizeStd(mirror.Names()), mirror.Global)
	if !ok || found.Decl == nil {
		diag.ReportError(c.reporter, diag.ResUnresolvedType, m.Span, "cannot resolve mirror `"+mirror.String()+"`").
			InScope(n.Chain.String()).Emit()
		return
	}
	e := c.byDecl[found.Decl]
	reg := &Registration{Target: c.resolveTarget(n, target), Mirror: e.Path, Entry: e, Span: m.Span}
	if len(args) == 4 {
		reg.From, reg.To = c.qualifyClosure(n, args[2]), c.qualifyClosure(n, args[3])
	}
	c.register(reg)
}

func (c *Context) register(reg *Registration) {
	key := reg.Key()
	if prev := c.registry.byTarget[key]; prev != nil {
		if !prev.Mirror.Equal(reg.Mirror) {
			diag.ReportError(c.reporter, diag.ClsRegistryConflict, reg.Span,
				"`"+key+"` is registered twice, by `"+prev.Mirror.String()+"` and `"+reg.Mirror.String()+"`").
				WithNote(prev.Span, "first registration").Emit()
			return
		}
		if prev.From != "" && reg.From != "" && (prev.From != reg.From || prev.To != reg.To) {
			diag.ReportError(c.reporter, diag.ClsRegistryConflict, reg.Span,
				"conflicting conversions for `"+key+"`").WithNote(prev.Span, "first conversion").Emit()
			return
		}
		if prev.From == "" {
			prev.From, prev.To = reg.From, reg.To
		}
		return
	}
	if other := c.registry.byMirror[reg.Mirror.String()]; other != nil {
		diag.ReportError(c.reporter, diag.ClsRegistryConflict, reg.Span,
			"`"+reg.Mirror.String()+"` is already the mirror of `"+other.Key()+"`").
			WithNote(other.Span, "first registration").Emit()
		return
	}
	c.registry.byTarget[key] = reg
	c.registry.byMirror[reg.Mirror.String()] = reg
}

// resolveTarget canonicalises a register target written in node n.
func (c *Context) resolveTarget(n *scope.Node, t typeref.TypeRef) typeref.TypeRef {
	names := NormalizeStd(t.Names())
	if found, ok := c.Forest.ResolvePath(n, names, t.Global); ok && found.Decl != nil {
		if e := c.byDecl[found.Decl]; e != nil {
			return typeref.Path(e.Path...)
		}
	}
	if len(names) == 1 {
		if full, ok := c.Forest.ImportPath(n, names[0]); ok {
			return typeref.Path(NormalizeStd(full)...)
		}
	}
	return typeref.Path(names...)
}

func hasReprC(it *syntax.Item) bool {
	for _, a := range it.Attrs {
		if a.Name() != "repr" {
			continue
		}
		for _, hint := range strings.Split(a.Args, ",") {
			if strings.TrimSpace(hint) == "C" {
				return true
			}
		}
	}
	return false
}
