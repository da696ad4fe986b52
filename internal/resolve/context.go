// Package resolve is the global context: a cross-crate index of declared
// items, traits and their implementors, generic bounds and user-registered
// conversions. Type references are qualified to canonical paths by a bounded
// refinement pass, after which the context is sealed and read-only.
package resolve

import (
	"context"
	"strconv"

	"ferment/internal/diag"
	"ferment/internal/scope"
	"ferment/internal/source"
	"ferment/internal/syntax"
	"ferment/internal/trace"
	"ferment/internal/typeref"
)

// Role says where a type reference occurs.
type Role uint8

const (
	RoleField Role = iota + 1
	RoleVariantField
	RoleAlias
	RoleParam
	RoleReturn
	RoleBound
	RoleSupertrait
	RoleImplFor
	RoleImplTrait
	RoleRegisterTarget
)

var roleNames = [...]string{
	RoleField:          "field",
	RoleVariantField:   "variant field",
	RoleAlias:          "alias",
	RoleParam:          "parameter",
	RoleReturn:         "return",
	RoleBound:          "bound",
	RoleSupertrait:     "supertrait",
	RoleImplFor:        "impl self type",
	RoleImplTrait:      "impl trait",
	RoleRegisterTarget: "register target",
}

func (r Role) String() string {
	if int(r) < len(roleNames) && roleNames[r] != "" {
		return roleNames[r]
	}
	return "use"
}

// Use is one occurrence of a type reference. Ref starts as written and is
// rewritten towards its canonical form during refinement.
type Use struct {
	Orig typeref.TypeRef
	Ref  typeref.TypeRef
	Role Role
	// Owner is the canonical path of the item the reference belongs to.
	Owner scope.Chain
	// Scope is the generic scope the reference is classified in.
	Scope scope.Chain
	Node  *scope.Node
	Span  source.Span
	// Generics lists the type parameters visible at the reference.
	Generics []string
	// Self is the impl self type for references inside impl blocks.
	Self *Use
}

// Method is a free function, an inherent method or a trait method.
type Method struct {
	Name     string
	Item     *syntax.Item
	Receiver syntax.Receiver
	Scope    scope.Chain
	// Generic is true when the method or its impl block has type parameters.
	Generic bool
	Params  []*Use
	Names   []string
	Ret     *Use
	Self    *Use
	// SelfSized marks `where Self: Sized` methods, which a trait object
	// cannot dispatch.
	SelfSized bool
}

// Entry is a declared type, trait or function known to the context.
type Entry struct {
	Decl *scope.Decl
	// Path is the canonical path, resolved after re-export linking.
	Path     scope.Chain
	Generics []string

	Fields   []*Use
	Variants [][]*Use
	Alias    *Use
	Fn       *Method
	Methods  []*Method
	// Supertraits and Impls are set for traits.
	Supertraits []*Use
	Impls       []ImplBinding

	Reachable bool
}

// Kind is the declaration kind.
func (e *Entry) Kind() syntax.ItemKind { return e.Decl.Kind }

// Item is the declaration syntax.
func (e *Entry) Item() *syntax.Item { return e.Decl.Item }

// Ann returns the ferment annotations of the declaration.
func (e *Entry) Ann() scope.Annotations { return e.Decl.Ann }

// ImplBinding is one implementor of a trait.
type ImplBinding struct {
	For   typeref.TypeRef
	Args  []typeref.TypeRef
	Scope scope.Chain
	Item  *syntax.Item
}

type implRecord struct {
	node  *scope.Node
	item  *syntax.Item
	scope scope.Chain
	trait *Use
	self  *Use
	funcs []*Method
}

// Context is the global context. It is built and refined by a single owner;
// after Seal every accessor is safe for concurrent use.
type Context struct {
	Forest   *scope.Forest
	reporter diag.Reporter

	entries []*Entry
	byDecl  map[*scope.Decl]*Entry
	items   map[string]*Entry
	fns     map[string]*Entry
	traits  map[string]*Entry
	bounds  map[string][]*Use
	impls   []*implRecord
	uses    []*Use

	registry *Registry
	passes   int
	sealed   bool

	// malformed type expressions wait for reachability before they are
	// reported; live is the liveness test of the item being indexed
	malformed []malformedType
	live      func() bool
}

type malformedType struct {
	span  source.Span
	msg   string
	owner scope.Chain
	live  func() bool
}

// New indexes every tree of the forest. Cross-crate re-exports are linked
// first so canonical paths see every public alias.
func New(ctx context.Context, forest *scope.Forest, reporter diag.Reporter) *Context {
	_, sp := trace.Start(ctx, trace.ScopeStage, "index")
	defer sp.End("")

	if reporter == nil {
		reporter = diag.NopReporter{}
	}
	forest.LinkReexports()
	c := &Context{
		Forest:   forest,
		reporter: reporter,
		byDecl:   make(map[*scope.Decl]*Entry),
		items:    make(map[string]*Entry),
		fns:      make(map[string]*Entry),
		traits:   make(map[string]*Entry),
		bounds:   make(map[string][]*Use),
		registry: newRegistry(),
	}
	for _, t := range forest.Trees {
		for _, d := range t.Decls() {
			c.declare(d)
		}
	}
	for _, t := range forest.Trees {
		t.Walk(c.indexImpls)
	}
	c.live = nil
	return c
}

func (c *Context) declare(d *scope.Decl) {
	e := &Entry{Decl: d, Path: d.Canonical()}
	c.live = func() bool { return e.Reachable }
	it := d.Item
	for _, p := range it.Generics.Params {
		e.Generics = append(e.Generics, p.Name)
	}
	c.byDecl[d] = e
	c.entries = append(c.entries, e)

	ns := c.items
	if d.Kind == syntax.ItemFunction || d.Kind == syntax.ItemConst {
		ns = c.fns
	}
	ns[d.Chain.String()] = e
	for _, r := range d.Reexports {
		if _, taken := ns[r.String()]; !taken {
			ns[r.String()] = e
		}
	}

	mk := func(role Role, t syntax.Type) *Use {
		return c.newUse(role, t, e.Path, e.Path, d.Node, e.Generics, nil)
	}
	if d.Kind != syntax.ItemFunction {
		// functions declare theirs through method
		c.declareBounds(e.Path, d.Node, it.Generics, e.Generics, nil)
	}

	switch d.Kind {
	case syntax.ItemStruct, syntax.ItemUnion:
		for _, f := range it.Fields {
			e.Fields = append(e.Fields, mk(RoleField, f.Type))
		}
	case syntax.ItemEnum:
		for _, v := range it.Variants {
			var vs []*Use
			for _, f := range v.Fields {
				vs = append(vs, mk(RoleVariantField, f.Type))
			}
			e.Variants = append(e.Variants, vs)
		}
	case syntax.ItemTypeAlias:
		if it.Type != nil {
			e.Alias = mk(RoleAlias, *it.Type)
		}
	case syntax.ItemFunction:
		if it.Fn != nil {
			e.Fn = c.method(it, e.Path, d.Node, nil, nil)
		}
	case syntax.ItemTrait:
		c.traits[d.Chain.String()] = e
		for _, r := range d.Reexports {
			if _, taken := c.traits[r.String()]; !taken {
				c.traits[r.String()] = e
			}
		}
		for _, st := range it.Supertraits {
			e.Supertraits = append(e.Supertraits, mk(RoleSupertrait, st))
		}
		for _, m := range it.Items {
			if m.Kind == syntax.ItemFunction && m.Fn != nil {
				e.Methods = append(e.Methods, c.method(m, e.Path.Child(m.Name), d.Node, e.Generics, nil))
			}
		}
	}
}

// method records the signature of fn. Methods get their own generic scope
// below owner.
func (c *Context) method(fn *syntax.Item, sc scope.Chain, node *scope.Node, outer []string, self *Use) *Method {
	generics := append([]string(nil), outer...)
	for _, p := range fn.Generics.Params {
		if p.Name != "Self" {
			generics = append(generics, p.Name)
		}
	}
	m := &Method{
		Name:      fn.Name,
		Item:      fn,
		Receiver:  fn.Fn.Receiver,
		Scope:     sc,
		Generic:   len(generics) > 0,
		Self:      self,
		SelfSized: boundsSized(fn.Generics.SelfBounds),
	}
	c.declareBounds(sc, node, fn.Generics, generics, self)
	for _, p := range fn.Fn.Params {
		m.Params = append(m.Params, c.newUse(RoleParam, p.Type, sc, sc, node, generics, self))
		m.Names = append(m.Names, p.Name)
	}
	if fn.Fn.Output != nil {
		m.Ret = c.newUse(RoleReturn, *fn.Fn.Output, sc, sc, node, generics, self)
	}
	return m
}

func boundsSized(bounds []syntax.Type) bool {
	for _, b := range bounds {
		if ref, err := typeref.Parse(b.Text); err == nil && ref.IsPath() && ref.Last().Name == "Sized" {
			return true
		}
	}
	return false
}

func (c *Context) declareBounds(sc scope.Chain, node *scope.Node, g syntax.Generics, visible []string, self *Use) {
	for _, p := range g.Params {
		if p.Name == "Self" {
			continue
		}
		key := boundKey(sc, p.Name)
		if _, ok := c.bounds[key]; !ok {
			c.bounds[key] = nil
		}
		for _, b := range p.Bounds {
			if typeref.IsRelaxedBound(b.Text) {
				continue
			}
			if u := c.newUse(RoleBound, b, sc, sc, node, visible, self); u != nil {
				c.bounds[key] = append(c.bounds[key], u)
			}
		}
	}
}

func boundKey(sc scope.Chain, param string) string { return sc.String() + "#" + param }

func (c *Context) indexImpls(n *scope.Node) {
	for i, it := range n.Impls {
		if it.Type == nil {
			continue
		}
		sc := n.Chain.Child("impl#" + strconv.Itoa(i))
		var generics []string
		for _, p := range it.Generics.Params {
			generics = append(generics, p.Name)
		}
		rec := &implRecord{node: n, item: it, scope: sc}
		c.live = nil
		rec.self = c.newUse(RoleImplFor, *it.Type, sc, sc, n, generics, nil)
		if rec.self == nil {
			continue
		}
		c.live = func() bool { return c.implLive(rec) }
		if it.Trait != nil {
			rec.trait = c.newUse(RoleImplTrait, *it.Trait, sc, sc, n, generics, rec.self)
		}
		c.declareBounds(sc, n, it.Generics, generics, rec.self)
		if it.Kind == syntax.ItemInherentImpl {
			for _, m := range it.Items {
				if m.Kind == syntax.ItemFunction && m.Fn != nil && m.Public {
					rec.funcs = append(rec.funcs, c.method(m, sc.Child(m.Name), n, generics, rec.self))
				}
			}
		}
		c.impls = append(c.impls, rec)
	}
}

func (c *Context) newUse(role Role, t syntax.Type, owner, sc scope.Chain, node *scope.Node, generics []string, self *Use) *Use {
	ref, err := typeref.Parse(t.Text)
	if err != nil {
		c.malformed = append(c.malformed, malformedType{span: t.Span, msg: err.Error(), owner: owner, live: c.live})
		return nil
	}
	u := &Use{
		Orig:     ref,
		Ref:      ref,
		Role:     role,
		Owner:    owner,
		Scope:    sc,
		Node:     node,
		Span:     t.Span,
		Generics: generics,
		Self:     self,
	}
	c.uses = append(c.uses, u)
	return u
}

// Entries returns every known declaration in forest walk order.
func (c *Context) Entries() []*Entry { return c.entries }

// EntryOf returns the entry of a scope declaration.
func (c *Context) EntryOf(d *scope.Decl) *Entry { return c.byDecl[d] }

// Item looks a type or trait up by any of its paths.
func (c *Context) Item(path string) *Entry { return c.items[path] }

// Function looks a free function up by any of its paths.
func (c *Context) Function(path string) *Entry { return c.fns[path] }

// Trait looks a trait up by any of its paths.
func (c *Context) Trait(path string) *Entry { return c.traits[path] }

// Bounds returns the resolved trait bounds of a type parameter visible in
// scope sc, walking outwards through enclosing scopes.
func (c *Context) Bounds(sc scope.Chain, param string) ([]typeref.TypeRef, bool) {
	for cur := sc; cur != nil; cur = cur.Parent() {
		uses, ok := c.bounds[boundKey(cur, param)]
		if !ok {
			continue
		}
		out := make([]typeref.TypeRef, 0, len(uses))
		for _, u := range uses {
			out = append(out, u.Ref)
		}
		return out, true
	}
	return nil, false
}

// Registry returns the custom conversion registry.
func (c *Context) Registry() *Registry { return c.registry }

// Uses returns every recorded type reference.
func (c *Context) Uses() []*Use { return c.uses }

// Passes reports how many refinement passes ran.
func (c *Context) Passes() int { return c.passes }

// Sealed reports whether refinement has finished.
func (c *Context) Sealed() bool { return c.sealed }

// Seal freezes the context. Any later mutation panics.
func (c *Context) Seal() { c.sealed = true }

func (c *Context) mustMutable(op string) {
	if c.sealed {
		panic("resolve: " + op + " on sealed context")
	}
}
