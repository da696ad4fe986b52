package scope

import (
	"slices"
)

// Forest is the set of scope trees seen by one run. Lookups cross crate
// boundaries through crate names and `extern crate` aliases.
type Forest struct {
	Trees   []*Tree
	byCrate map[string]*Tree
}

// NewForest indexes trees by crate name.
func NewForest(trees ...*Tree) *Forest {
	f := &Forest{Trees: trees, byCrate: make(map[string]*Tree, len(trees))}
	for _, t := range trees {
		f.byCrate[t.Crate] = t
	}
	return f
}

// Tree returns the tree of crate, or nil.
func (f *Forest) Tree(crate string) *Tree { return f.byCrate[crate] }

// Node returns the module node at chain, or nil.
func (f *Forest) Node(chain Chain) *Node {
	return f.Tree(chain.Crate()).Node(chain)
}

// Target is what a path resolved to: a module or a declared item.
type Target struct {
	Node *Node
	Decl *Decl
}

type lookup struct {
	f    *Forest
	seen map[string]bool
}

func (f *Forest) newLookup() *lookup {
	return &lookup{f: f, seen: make(map[string]bool)}
}

// ResolveName resolves a single identifier as seen from scope `from`:
// declarations, then direct imports, then globs, then crate roots and
// `extern crate` aliases, then enclosing scopes innermost first.
func (f *Forest) ResolveName(from *Node, name string) (Target, bool) {
	return f.newLookup().name(from, name)
}

// ResolvePath resolves a (possibly qualified) path written in `from`.
// global marks a leading `::`.
func (f *Forest) ResolvePath(from *Node, path []string, global bool) (Target, bool) {
	return f.newLookup().path(from, path, global)
}

func (l *lookup) name(from *Node, name string) (Target, bool) {
	if t, ok := l.member(from, name); ok {
		return t, true
	}
	if t, ok := l.crateRoot(from, name); ok {
		return t, true
	}
	for chain := from.Parent; chain != nil; chain = chain.Parent() {
		if n := l.f.Node(chain); n != nil {
			if t, ok := l.member(n, name); ok {
				return t, true
			}
		}
	}
	return Target{}, false
}

func (l *lookup) crateRoot(from *Node, name string) (Target, bool) {
	if t := l.f.Tree(name); t != nil {
		return Target{Node: t.Root}, true
	}
	for chain := from.Chain; chain != nil; chain = chain.Parent() {
		n := l.f.Node(chain)
		if n == nil {
			continue
		}
		if original, ok := n.CrateAliases[name]; ok {
			if t := l.f.Tree(original); t != nil {
				return Target{Node: t.Root}, true
			}
		}
	}
	return Target{}, false
}

// member looks name up inside module n without enclosing-scope fallback.
func (l *lookup) member(n *Node, name string) (Target, bool) {
	key := n.Chain.String() + "#" + name
	if l.seen[key] {
		return Target{}, false
	}
	l.seen[key] = true
	defer delete(l.seen, key)

	if d, ok := n.Types[name]; ok {
		return Target{Decl: d}, true
	}
	if c, ok := n.Children[name]; ok {
		return Target{Node: c}, true
	}
	for _, imp := range n.Imports {
		if imp.Alias == name {
			if t, ok := l.path(n, imp.Path, false); ok {
				return t, true
			}
		}
	}
	for _, g := range n.Globs {
		src, ok := l.path(n, g.Path, false)
		if !ok || src.Node == nil {
			continue
		}
		if t, ok := l.member(src.Node, name); ok {
			return t, true
		}
	}
	if d, ok := n.Values[name]; ok {
		return Target{Decl: d}, true
	}
	return Target{}, false
}

func (l *lookup) path(from *Node, path []string, global bool) (Target, bool) {
	if len(path) == 0 || from == nil {
		return Target{}, false
	}
	var cur Target
	rest := path
	switch {
	case global:
		t := l.f.Tree(path[0])
		if t == nil {
			return Target{}, false
		}
		cur, rest = Target{Node: t.Root}, path[1:]
	case path[0] == "crate":
		cur, rest = Target{Node: l.f.Tree(from.Chain.Crate()).Root}, path[1:]
	case path[0] == "self":
		cur, rest = Target{Node: from}, path[1:]
	case path[0] == "super":
		n := from
		for len(rest) > 0 && rest[0] == "super" {
			if n.Parent == nil {
				return Target{}, false
			}
			n = l.f.Node(n.Parent)
			rest = rest[1:]
		}
		cur = Target{Node: n}
	default:
		t, ok := l.name(from, path[0])
		if !ok {
			return Target{}, false
		}
		cur, rest = t, path[1:]
	}
	for _, seg := range rest {
		if cur.Node == nil {
			return Target{}, false
		}
		next, ok := l.member(cur.Node, seg)
		if !ok {
			return Target{}, false
		}
		cur = next
	}
	if cur.Node == nil && cur.Decl == nil {
		return Target{}, false
	}
	return cur, true
}

// LinkReexports records, on every declaration, the public paths that
// re-export it. Targets in crates outside the forest are skipped; calling it
// again on a larger forest adds the missing edges.
func (f *Forest) LinkReexports() {
	for _, t := range f.Trees {
		t.Walk(func(n *Node) {
			for _, imp := range n.Imports {
				if !imp.Public {
					continue
				}
				target, ok := f.ResolvePath(n, imp.Path, false)
				if !ok {
					continue
				}
				switch {
				case target.Decl != nil:
					target.Decl.addReexport(n.Chain.Child(imp.Alias))
				case target.Node != nil:
					via := n.Chain.Child(imp.Alias)
					for _, d := range target.Node.Decls {
						d.addReexport(via.Child(d.Name))
					}
				}
			}
			for _, g := range n.Globs {
				if !g.Public {
					continue
				}
				src, ok := f.ResolvePath(n, g.Path, false)
				if !ok || src.Node == nil || src.Node == n {
					continue
				}
				for _, d := range src.Node.Decls {
					if _, shadowed := n.Types[d.Name]; shadowed {
						continue
					}
					d.addReexport(n.Chain.Child(d.Name))
				}
			}
		})
	}
}

func (d *Decl) addReexport(c Chain) {
	if c.Equal(d.Chain) {
		return
	}
	if slices.ContainsFunc(d.Reexports, c.Equal) {
		return
	}
	d.Reexports = append(d.Reexports, c)
}

// Canonical returns the shortest path naming d, ties broken
// lexicographically.
func (d *Decl) Canonical() Chain {
	best := d.Chain
	for _, r := range d.Reexports {
		if r.Less(best) {
			best = r
		}
	}
	return best
}

// ImportPath returns the written path of a direct import named alias,
// searching from and then its enclosing scopes. It is used for imports whose
// target lies outside the forest, such as `use std::collections::BTreeMap;`.
func (f *Forest) ImportPath(from *Node, alias string) ([]string, bool) {
	for n := from; n != nil; n = f.Node(n.Parent) {
		for _, imp := range n.Imports {
			if imp.Alias == alias {
				return slices.Clone(imp.Path), true
			}
		}
		if n.Parent == nil {
			break
		}
	}
	return nil, false
}
