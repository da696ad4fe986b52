package scope

import (
	"ferment/internal/diag"
	"ferment/internal/source"
	"ferment/internal/syntax"
	"ferment/internal/typeref"
)

// Annotations are the ferment attributes found on an item.
type Annotations struct {
	Export bool
	Opaque bool
	// Register is the target path of `#[register(Path)]`; zero when absent.
	Register     typeref.TypeRef
	RegisterSpan source.Span
}

// Registered reports whether the item is a user-supplied mirror.
func (a Annotations) Registered() bool { return !a.Register.IsZero() }

// Any reports whether any ferment annotation is present.
func (a Annotations) Any() bool { return a.Export || a.Opaque || a.Registered() }

// ParseAnnotations reads attributes whose last segment is export, opaque or
// register. Anything else is ignored.
func ParseAnnotations(attrs []syntax.Attr, reporter diag.Reporter) Annotations {
	var out Annotations
	for _, a := range attrs {
		switch a.Name() {
		case "export":
			out.Export = true
		case "opaque":
			out.Opaque = true
		case "register":
			if a.Args == "" {
				diag.ReportError(reporter, diag.SynBadAttribute, a.Span, "register requires a target path").
					WithHint("write #[register(path::To::Type)]").Emit()
				continue
			}
			target, err := typeref.Parse(a.Args)
			if err != nil || !target.IsPath() {
				diag.ReportError(reporter, diag.SynBadAttribute, a.Span, "register target `"+a.Args+"` is not a type path").Emit()
				continue
			}
			if out.Registered() {
				diag.ReportError(reporter, diag.ClsRegistryConflict, a.Span, "item registers more than one target").Emit()
				continue
			}
			out.Register = target
			out.RegisterSpan = a.Span
		}
	}
	return out
}
