package testkit

import (
	"fmt"

	"fortio.org/safecast"

	"ferment/internal/source"
	"ferment/internal/syntax"
)

// CheckSpanInvariants runs a minimal set of span invariants on a module read
// from one file:
// 1) the module span is non-empty and within the file content
// 2) every item span is non-empty, points at the file and lies inside the module span
// 3) inline module bodies satisfy the same rules recursively
func CheckSpanInvariants(m *syntax.Module, sf *source.File) error {
	if m == nil || sf == nil {
		return fmt.Errorf("nil module or file")
	}
	if m.Span.End <= m.Span.Start {
		return fmt.Errorf("module %s span is empty: %v", m.Name, m.Span)
	}
	if m.Span.File != sf.ID {
		return fmt.Errorf("module span points to different file id: got=%d want=%d", m.Span.File, sf.ID)
	}
	lenContent, err := safecast.Conv[uint32](len(sf.Content))
	if err != nil {
		return fmt.Errorf("len content overflow: %w", err)
	}
	if m.Span.End > lenContent {
		return fmt.Errorf("module span end beyond content: %d > %d", m.Span.End, lenContent)
	}
	return checkItems(m.Items, m.Span, sf)
}

func checkItems(items []*syntax.Item, outer source.Span, sf *source.File) error {
	for _, it := range items {
		sp := it.Span
		if sp.End <= sp.Start {
			return fmt.Errorf("empty span on %s %s: %v", it.Kind, it.Name, sp)
		}
		if sp.File != sf.ID {
			return fmt.Errorf("item span file mismatch: got=%d want=%d", sp.File, sf.ID)
		}
		if sp.Start < outer.Start || sp.End > outer.End {
			return fmt.Errorf("%s %s span %v is outside %v", it.Kind, it.Name, sp, outer)
		}
		for _, f := range it.Fields {
			if f.Type.Span.Start < sp.Start || f.Type.Span.End > sp.End {
				return fmt.Errorf("field %s of %s escapes its item", f.Name, it.Name)
			}
		}
		if it.Module != nil && it.Module.Inline {
			if err := checkItems(it.Module.Items, it.Module.Span, sf); err != nil {
				return err
			}
		}
		if err := checkItems(it.Items, sp, sf); err != nil {
			return err
		}
	}
	return nil
}
