package scope

import (
	"context"

	"ferment/internal/diag"
	"ferment/internal/source"
	"ferment/internal/syntax"
	"ferment/internal/trace"
)

// Decl is an item declared directly in a scope node.
type Decl struct {
	Name  string
	Kind  syntax.ItemKind
	Item  *syntax.Item
	Chain Chain
	// Node is the module the item is declared in.
	Node *Node
	Ann  Annotations
	// Reexports lists the public paths under which the item is re-exported.
	Reexports []Chain
}

// Import is `use path as Alias;` (Alias defaults to the last segment).
type Import struct {
	Alias  string
	Path   []string
	Public bool
	Span   source.Span
}

// Glob is `use path::*;`, expanded lazily by lookups.
type Glob struct {
	Path   []string
	Public bool
	Span   source.Span
}

// Node is one module in the scope chain tree.
type Node struct {
	Chain Chain
	// Parent is the chain of the enclosing module, nil at the crate root.
	Parent Chain
	File   string
	Attrs  []syntax.Attr

	// Decls preserves declaration order; Types and Values index it by name.
	Decls  []*Decl
	Types  map[string]*Decl
	Values map[string]*Decl

	Children   map[string]*Node
	ChildOrder []string

	Imports []Import
	Globs   []Glob
	// CrateAliases maps `extern crate a as b;` aliases to crate names.
	CrateAliases map[string]string

	Impls  []*syntax.Item
	Macros []*syntax.Item
}

func newNode(chain Chain, file string) *Node {
	return &Node{
		Chain:    chain,
		Parent:   chain.Parent(),
		File:     file,
		Types:    make(map[string]*Decl),
		Values:   make(map[string]*Decl),
		Children: make(map[string]*Node),
	}
}

// Tree is the scope tree of one crate.
type Tree struct {
	Crate   string
	Primary bool
	Root    *Node
	index   map[string]*Node
}

// Node returns the module node for chain.
func (t *Tree) Node(chain Chain) *Node {
	if t == nil {
		return nil
	}
	return t.index[chain.String()]
}

// Walk visits every node, parents first, children in declaration order.
func (t *Tree) Walk(fn func(*Node)) {
	var walk func(*Node)
	walk = func(n *Node) {
		fn(n)
		for _, name := range n.ChildOrder {
			walk(n.Children[name])
		}
	}
	if t != nil && t.Root != nil {
		walk(t.Root)
	}
}

// Decls returns every declaration of the crate in walk order.
func (t *Tree) Decls() []*Decl {
	var out []*Decl
	t.Walk(func(n *Node) { out = append(out, n.Decls...) })
	return out
}

// Build walks a parsed crate into its scope tree and links intra-crate
// re-exports.
func Build(ctx context.Context, crate *syntax.Crate, reporter diag.Reporter) *Tree {
	_, sp := trace.Start(ctx, trace.ScopeCrate, "scope "+crate.Name)
	defer sp.End("")

	if reporter == nil {
		reporter = diag.NopReporter{}
	}
	b := &builder{reporter: reporter}
	t := &Tree{Crate: crate.Name, Primary: crate.Primary, index: make(map[string]*Node)}
	b.tree = t
	root := crate.Root
	if root == nil {
		root = &syntax.Module{Name: crate.Name}
	}
	t.Root = b.module(Chain{crate.Name}, root)
	NewForest(t).LinkReexports()
	return t
}

type builder struct {
	tree     *Tree
	reporter diag.Reporter
}

func (b *builder) module(chain Chain, m *syntax.Module) *Node {
	n := newNode(chain, m.File)
	n.Attrs = m.Attrs
	b.tree.index[chain.String()] = n
	for _, it := range m.Items {
		b.item(n, it)
	}
	return n
}

func (b *builder) item(n *Node, it *syntax.Item) {
	switch it.Kind {
	case syntax.ItemModule:
		if it.Module == nil {
			return
		}
		if _, dup := n.Children[it.Name]; dup {
			diag.ReportError(b.reporter, diag.ResMissingModule, it.Span, "module `"+it.Name+"` is defined twice").
				InScope(n.Chain.String()).Emit()
			return
		}
		child := b.module(n.Chain.Child(it.Name), it.Module)
		n.Children[it.Name] = child
		n.ChildOrder = append(n.ChildOrder, it.Name)
	case syntax.ItemUse:
		for _, u := range it.Uses {
			if u.Glob {
				n.Globs = append(n.Globs, Glob{Path: u.Path, Public: it.Public, Span: it.Span})
				continue
			}
			alias := u.Alias
			if alias == "" && len(u.Path) > 0 {
				alias = u.Path[len(u.Path)-1]
			}
			if alias == "_" || alias == "" {
				continue
			}
			n.Imports = append(n.Imports, Import{Alias: alias, Path: u.Path, Public: it.Public, Span: it.Span})
		}
	case syntax.ItemExternCrate:
		if n.CrateAliases == nil {
			n.CrateAliases = make(map[string]string)
		}
		n.CrateAliases[it.Name] = it.Original
	case syntax.ItemTraitImpl, syntax.ItemInherentImpl:
		n.Impls = append(n.Impls, it)
	case syntax.ItemMacroCall:
		n.Macros = append(n.Macros, it)
	case syntax.ItemExternBlock:
		for _, fn := range it.Items {
			b.declare(n, fn, n.Values)
		}
	case syntax.ItemFunction, syntax.ItemConst:
		b.declare(n, it, n.Values)
	default:
		if it.Kind.IsType() {
			b.declare(n, it, n.Types)
		}
	}
}

func (b *builder) declare(n *Node, it *syntax.Item, ns map[string]*Decl) {
	if it.Name == "" {
		return
	}
	d := &Decl{
		Name:  it.Name,
		Kind:  it.Kind,
		Item:  it,
		Chain: n.Chain.Child(it.Name),
		Node:  n,
		Ann:   ParseAnnotations(it.Attrs, b.reporter),
	}
	if prev, dup := ns[it.Name]; dup {
		diag.ReportWarning(b.reporter, diag.ResInfo, it.Span, "`"+it.Name+"` shadows an earlier declaration").
			WithNote(prev.Item.Span, "previous declaration").InScope(n.Chain.String()).Emit()
	}
	ns[it.Name] = d
	n.Decls = append(n.Decls, d)
}
