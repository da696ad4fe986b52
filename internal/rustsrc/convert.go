package rustsrc

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"ferment/internal/diag"
	"ferment/internal/source"
	"ferment/internal/syntax"
)

// converter turns one tree-sitter tree into syntax items.
type converter struct {
	src      []byte
	file     source.FileID
	reporter diag.Reporter
}

func (c *converter) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

func (c *converter) span(n *sitter.Node) source.Span {
	if n == nil {
		return source.Span{File: c.file}
	}
	return source.Span{File: c.file, Start: n.StartByte(), End: n.EndByte()}
}

func (c *converter) typ(n *sitter.Node) syntax.Type {
	return syntax.Type{Text: c.text(n), Span: c.span(n)}
}

func (c *converter) typPtr(n *sitter.Node) *syntax.Type {
	if n == nil {
		return nil
	}
	t := c.typ(n)
	return &t
}

func named(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	count := int(n.NamedChildCount())
	out := make([]*sitter.Node, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, n.NamedChild(i))
	}
	return out
}

func isPublic(n *sitter.Node, src []byte) bool {
	for _, ch := range named(n) {
		if ch.Type() == "visibility_modifier" {
			return strings.HasPrefix(ch.Content(src), "pub")
		}
	}
	return false
}

func childOfType(n *sitter.Node, kind string) *sitter.Node {
	for _, ch := range named(n) {
		if ch.Type() == kind {
			return ch
		}
	}
	return nil
}

// firstError finds the innermost ERROR or MISSING node.
func firstError(n *sitter.Node) *sitter.Node {
	if n == nil || !n.HasError() {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	count := int(n.ChildCount())
	for i := 0; i < count; i++ {
		if e := firstError(n.Child(i)); e != nil {
			return e
		}
	}
	return n
}

// items converts the statements of a source_file or declaration_list.
// Outer attributes are sibling nodes and attach to the next item; inner
// attributes are returned separately.
func (c *converter) items(container *sitter.Node) (inner []syntax.Attr, items []*syntax.Item) {
	var pending []syntax.Attr
	for _, n := range named(container) {
		switch n.Type() {
		case "attribute_item":
			if a, ok := parseAttr(c.text(n), c.span(n)); ok {
				pending = append(pending, a)
			}
			continue
		case "inner_attribute_item":
			if a, ok := parseAttr(c.text(n), c.span(n)); ok {
				inner = append(inner, a)
			}
			continue
		case "line_comment", "block_comment", "empty_statement":
			continue
		}
		it := c.item(n)
		if it == nil {
			pending = nil
			continue
		}
		it.Attrs = append(pending, it.Attrs...)
		pending = nil
		items = append(items, it)
	}
	return inner, items
}

func (c *converter) item(n *sitter.Node) *syntax.Item {
	switch n.Type() {
	case "struct_item":
		return c.structItem(n, syntax.ItemStruct)
	case "union_item":
		return c.structItem(n, syntax.ItemUnion)
	case "enum_item":
		return c.enumItem(n)
	case "type_item":
		it := c.base(n, syntax.ItemTypeAlias)
		it.Generics = c.generics(n)
		it.Type = c.typPtr(n.ChildByFieldName("type"))
		return it
	case "trait_item":
		return c.traitItem(n)
	case "impl_item":
		return c.implItem(n)
	case "function_item", "function_signature_item":
		it := c.base(n, syntax.ItemFunction)
		it.Generics = c.generics(n)
		it.Fn = c.fnSig(n)
		return it
	case "mod_item":
		it := c.base(n, syntax.ItemModule)
		if body := n.ChildByFieldName("body"); body != nil {
			attrs, items := c.items(body)
			it.Module = &syntax.Module{Name: it.Name, Inline: true, Attrs: attrs, Items: items, Span: c.span(body)}
		}
		return it
	case "use_declaration":
		it := c.base(n, syntax.ItemUse)
		arg := n.ChildByFieldName("argument")
		uses, err := flattenUse(c.text(arg))
		if err != nil {
			diag.ReportError(c.reporter, diag.SynParseError, c.span(arg), "malformed use tree: "+err.Error()).Emit()
			return nil
		}
		it.Uses = uses
		return it
	case "extern_crate_declaration":
		it := c.base(n, syntax.ItemExternCrate)
		it.Original = it.Name
		if alias := n.ChildByFieldName("alias"); alias != nil {
			it.Name = c.text(alias)
		}
		return it
	case "foreign_mod_item":
		it := c.base(n, syntax.ItemExternBlock)
		if body := n.ChildByFieldName("body"); body != nil {
			_, it.Items = c.items(body)
		}
		for _, fn := range it.Items {
			if fn.Fn != nil && fn.Fn.ABI == "" {
				fn.Fn.ABI = "C"
			}
		}
		return it
	case "const_item", "static_item":
		it := c.base(n, syntax.ItemConst)
		it.Type = c.typPtr(n.ChildByFieldName("type"))
		return it
	case "macro_invocation":
		return c.macroItem(n)
	case "expression_statement":
		if inner := n.NamedChild(0); inner != nil && inner.Type() == "macro_invocation" {
			return c.macroItem(inner)
		}
		return nil
	case "associated_type":
		it := c.base(n, syntax.ItemTypeAlias)
		it.Type = c.typPtr(n.ChildByFieldName("type"))
		return it
	case "macro_definition", "let_declaration":
		return nil
	}
	diag.ReportWarning(c.reporter, diag.SynUnsupportedItem, c.span(n), "skipping unsupported item `"+n.Type()+"`").Emit()
	return nil
}

func (c *converter) base(n *sitter.Node, kind syntax.ItemKind) *syntax.Item {
	return &syntax.Item{
		Kind:   kind,
		Name:   strings.TrimPrefix(c.text(n.ChildByFieldName("name")), "r#"),
		Public: isPublic(n, c.src),
		Span:   c.span(n),
	}
}

func (c *converter) structItem(n *sitter.Node, kind syntax.ItemKind) *syntax.Item {
	it := c.base(n, kind)
	it.Generics = c.generics(n)
	it.Style, it.Fields = c.fields(n.ChildByFieldName("body"))
	return it
}

func (c *converter) fields(body *sitter.Node) (syntax.FieldStyle, []syntax.Field) {
	if body == nil {
		return syntax.FieldsUnit, nil
	}
	var (
		out     []syntax.Field
		pending []syntax.Attr
		public  bool
	)
	switch body.Type() {
	case "field_declaration_list":
		for _, ch := range named(body) {
			switch ch.Type() {
			case "attribute_item":
				if a, ok := parseAttr(c.text(ch), c.span(ch)); ok {
					pending = append(pending, a)
				}
			case "field_declaration":
				out = append(out, syntax.Field{
					Name:   strings.TrimPrefix(c.text(ch.ChildByFieldName("name")), "r#"),
					Public: isPublic(ch, c.src),
					Type:   c.typ(ch.ChildByFieldName("type")),
					Attrs:  pending,
					Span:   c.span(ch),
				})
				pending = nil
			}
		}
		return syntax.FieldsNamed, out
	case "ordered_field_declaration_list":
		for _, ch := range named(body) {
			switch ch.Type() {
			case "attribute_item":
				if a, ok := parseAttr(c.text(ch), c.span(ch)); ok {
					pending = append(pending, a)
				}
			case "visibility_modifier":
				public = strings.HasPrefix(c.text(ch), "pub")
			case "line_comment", "block_comment":
			default:
				out = append(out, syntax.Field{Public: public, Type: c.typ(ch), Attrs: pending, Span: c.span(ch)})
				pending, public = nil, false
			}
		}
		return syntax.FieldsTuple, out
	}
	return syntax.FieldsUnit, nil
}

func (c *converter) enumItem(n *sitter.Node) *syntax.Item {
	it := c.base(n, syntax.ItemEnum)
	it.Generics = c.generics(n)
	var pending []syntax.Attr
	for _, ch := range named(n.ChildByFieldName("body")) {
		switch ch.Type() {
		case "attribute_item":
			if a, ok := parseAttr(c.text(ch), c.span(ch)); ok {
				pending = append(pending, a)
			}
		case "enum_variant":
			v := syntax.Variant{
				Name:  strings.TrimPrefix(c.text(ch.ChildByFieldName("name")), "r#"),
				Attrs: pending,
				Span:  c.span(ch),
			}
			v.Style, v.Fields = c.fields(ch.ChildByFieldName("body"))
			if val := ch.ChildByFieldName("value"); val != nil {
				v.Discriminant = c.text(val)
			}
			it.Variants = append(it.Variants, v)
			pending = nil
		}
	}
	return it
}

func (c *converter) traitItem(n *sitter.Node) *syntax.Item {
	it := c.base(n, syntax.ItemTrait)
	it.Generics = c.generics(n)
	it.Supertraits, _ = c.bounds(n.ChildByFieldName("bounds"))
	if body := n.ChildByFieldName("body"); body != nil {
		_, it.Items = c.items(body)
	}
	return it
}

func (c *converter) implItem(n *sitter.Node) *syntax.Item {
	kind := syntax.ItemInherentImpl
	trait := n.ChildByFieldName("trait")
	if trait != nil {
		kind = syntax.ItemTraitImpl
	}
	it := &syntax.Item{Kind: kind, Span: c.span(n)}
	it.Generics = c.generics(n)
	it.Trait = c.typPtr(trait)
	it.Type = c.typPtr(n.ChildByFieldName("type"))
	if it.Type != nil {
		it.Name = it.Type.Text
	}
	if body := n.ChildByFieldName("body"); body != nil {
		_, it.Items = c.items(body)
	}
	// Trait impl members are public whenever the trait is.
	if kind == syntax.ItemTraitImpl {
		for _, m := range it.Items {
			m.Public = true
		}
	}
	return it
}

func (c *converter) macroItem(n *sitter.Node) *syntax.Item {
	pathText := c.text(n.ChildByFieldName("macro"))
	path := splitPath(pathText)
	if len(path) == 0 {
		return nil
	}
	var args []string
	if tt := childOfType(n, "token_tree"); tt != nil {
		body := c.text(tt)
		if len(body) >= 2 {
			args = splitTopLevel(body[1 : len(body)-1])
		}
	}
	return &syntax.Item{
		Kind:  syntax.ItemMacroCall,
		Name:  path[len(path)-1],
		Span:  c.span(n),
		Macro: &syntax.MacroCall{Path: path, Args: args},
	}
}

func (c *converter) fnSig(n *sitter.Node) *syntax.FnSig {
	sig := &syntax.FnSig{
		Output:  c.typPtr(n.ChildByFieldName("return_type")),
		HasBody: n.ChildByFieldName("body") != nil,
	}
	if mods := childOfType(n, "function_modifiers"); mods != nil {
		text := c.text(mods)
		sig.Unsafe = strings.Contains(text, "unsafe")
		sig.Async = strings.Contains(text, "async")
		if ext := childOfType(mods, "extern_modifier"); ext != nil {
			sig.ABI = "C"
			if lit := childOfType(ext, "string_literal"); lit != nil {
				sig.ABI = strings.Trim(c.text(lit), `"`)
			}
		}
	}
	for _, p := range named(n.ChildByFieldName("parameters")) {
		switch p.Type() {
		case "self_parameter":
			text := c.text(p)
			switch {
			case strings.HasPrefix(text, "&") && strings.Contains(text, "mut"):
				sig.Receiver = syntax.ReceiverRefMut
			case strings.HasPrefix(text, "&"):
				sig.Receiver = syntax.ReceiverRef
			default:
				sig.Receiver = syntax.ReceiverValue
			}
		case "parameter":
			name := strings.TrimPrefix(c.text(p.ChildByFieldName("pattern")), "mut ")
			if name == "self" {
				// `self: Box<Self>` and friends
				sig.Receiver = syntax.ReceiverValue
				continue
			}
			sig.Params = append(sig.Params, syntax.Param{Name: name, Type: c.typ(p.ChildByFieldName("type"))})
		case "attribute_item", "line_comment", "block_comment":
		default:
			// bare type parameter, as in `fn(u32)` trait signatures
			sig.Params = append(sig.Params, syntax.Param{Name: "_", Type: c.typ(p)})
		}
	}
	return sig
}

// generics collects inline parameters and where-clause bounds.
func (c *converter) generics(n *sitter.Node) syntax.Generics {
	var g syntax.Generics
	index := map[string]int{}
	add := func(name string, bounds []syntax.Type, relaxed []string) {
		if i, ok := index[name]; ok {
			g.Params[i].Bounds = append(g.Params[i].Bounds, bounds...)
			g.Params[i].Relaxed = append(g.Params[i].Relaxed, relaxed...)
			return
		}
		index[name] = len(g.Params)
		g.Params = append(g.Params, syntax.TypeParam{Name: name, Bounds: bounds, Relaxed: relaxed})
	}
	for _, p := range named(n.ChildByFieldName("type_parameters")) {
		switch p.Type() {
		case "lifetime":
			g.Lifetimes = append(g.Lifetimes, c.text(p))
		case "type_identifier":
			add(c.text(p), nil, nil)
		case "constrained_type_parameter":
			left := p.ChildByFieldName("left")
			if left != nil && left.Type() == "lifetime" {
				g.Lifetimes = append(g.Lifetimes, c.text(left))
				continue
			}
			bounds, relaxed := c.bounds(p.ChildByFieldName("bounds"))
			add(c.text(left), bounds, relaxed)
		case "optional_type_parameter":
			name := p.ChildByFieldName("name")
			if name != nil && name.Type() == "constrained_type_parameter" {
				bounds, relaxed := c.bounds(name.ChildByFieldName("bounds"))
				add(c.text(name.ChildByFieldName("left")), bounds, relaxed)
			} else {
				add(c.text(name), nil, nil)
			}
		case "type_parameter":
			bounds, relaxed := c.bounds(p.ChildByFieldName("bounds"))
			add(c.text(p.ChildByFieldName("name")), bounds, relaxed)
		}
	}
	if where := childOfType(n, "where_clause"); where != nil {
		for _, pred := range named(where) {
			if pred.Type() != "where_predicate" {
				continue
			}
			left := pred.ChildByFieldName("left")
			if left == nil {
				continue
			}
			bounds, relaxed := c.bounds(pred.ChildByFieldName("bounds"))
			switch {
			case left.Type() == "self" || c.text(left) == "Self":
				g.SelfBounds = append(g.SelfBounds, bounds...)
			case left.Type() == "type_identifier":
				add(c.text(left), bounds, relaxed)
			}
			// lifetimes and predicates over compound types constrain nothing
			// the boundary can use
		}
	}
	return g
}

// bounds splits a bound list into trait bounds and the trait names of
// relaxed `?Trait` bounds. Lifetimes are dropped.
func (c *converter) bounds(n *sitter.Node) (out []syntax.Type, relaxed []string) {
	for _, b := range named(n) {
		switch b.Type() {
		case "lifetime", "line_comment", "block_comment":
			continue
		case "removed_trait_bound":
			relaxed = append(relaxed, strings.TrimSpace(strings.TrimPrefix(c.text(b), "?")))
			continue
		case "higher_ranked_trait_bound":
			if inner := b.ChildByFieldName("type"); inner != nil {
				out = append(out, c.typ(inner))
				continue
			}
		}
		if text := c.text(b); strings.HasPrefix(text, "?") {
			relaxed = append(relaxed, strings.TrimSpace(text[1:]))
			continue
		}
		out = append(out, c.typ(b))
	}
	return out, relaxed
}
