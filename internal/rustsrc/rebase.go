package rustsrc

import (
	"ferment/internal/source"
	"ferment/internal/syntax"
)

// Cached entries were written under another file id; point every span at
// the file they were just loaded for.

func rebaseSpan(sp *source.Span, id source.FileID) { sp.File = id }

func rebaseAttrs(attrs []syntax.Attr, id source.FileID) {
	for i := range attrs {
		rebaseSpan(&attrs[i].Span, id)
	}
}

func rebaseType(t *syntax.Type, id source.FileID) {
	if t != nil {
		rebaseSpan(&t.Span, id)
	}
}

func rebaseFields(fields []syntax.Field, id source.FileID) {
	for i := range fields {
		f := &fields[i]
		rebaseSpan(&f.Span, id)
		rebaseType(&f.Type, id)
		rebaseAttrs(f.Attrs, id)
	}
}

func rebaseItems(items []*syntax.Item, id source.FileID) {
	for _, it := range items {
		rebaseSpan(&it.Span, id)
		rebaseAttrs(it.Attrs, id)
		rebaseFields(it.Fields, id)
		for i := range it.Variants {
			v := &it.Variants[i]
			rebaseSpan(&v.Span, id)
			rebaseAttrs(v.Attrs, id)
			rebaseFields(v.Fields, id)
		}
		for i := range it.Generics.Params {
			for j := range it.Generics.Params[i].Bounds {
				rebaseType(&it.Generics.Params[i].Bounds[j], id)
			}
		}
		rebaseType(it.Type, id)
		rebaseType(it.Trait, id)
		for i := range it.Supertraits {
			rebaseType(&it.Supertraits[i], id)
		}
		if it.Fn != nil {
			for i := range it.Fn.Params {
				rebaseType(&it.Fn.Params[i].Type, id)
			}
			rebaseType(it.Fn.Output, id)
		}
		if it.Module != nil && it.Module.Inline {
			rebaseSpan(&it.Module.Span, id)
			rebaseAttrs(it.Module.Attrs, id)
			rebaseItems(it.Module.Items, id)
		}
		rebaseItems(it.Items, id)
	}
}
