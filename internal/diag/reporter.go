package diag

import (
	"sync"

	"ferment/internal/source"
)

// Reporter is the minimal contract stages use to emit diagnostics.
type Reporter interface {
	Report(d Diagnostic)
}

// ReportBuilder accumulates diagnostic details before emitting to Reporter.
type ReportBuilder struct {
	reporter Reporter
	diag     Diagnostic
	emitted  bool
}

// NewReportBuilder constructs a builder bound to Reporter.
func NewReportBuilder(r Reporter, sev Severity, code Code, primary source.Span, msg string) *ReportBuilder {
	return &ReportBuilder{reporter: r, diag: New(sev, code, primary, msg)}
}

// ReportError is a shortcut for SevError diagnostics.
func ReportError(r Reporter, code Code, primary source.Span, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevError, code, primary, msg)
}

// ReportWarning is a shortcut for SevWarning diagnostics.
func ReportWarning(r Reporter, code Code, primary source.Span, msg string) *ReportBuilder {
	return NewReportBuilder(r, SevWarning, code, primary, msg)
}

// WithNote appends a note to diagnostic.
func (b *ReportBuilder) WithNote(sp source.Span, msg string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag = b.diag.WithNote(sp, msg)
	return b
}

// InScope records the scope chain of the offending construct.
func (b *ReportBuilder) InScope(scope string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag.Scope = scope
	return b
}

// WithHint attaches user-facing advice.
func (b *ReportBuilder) WithHint(hint string) *ReportBuilder {
	if b == nil {
		return nil
	}
	b.diag.Hint = hint
	return b
}

// Emit sends diagnostic to underlying reporter exactly once.
func (b *ReportBuilder) Emit() {
	if b == nil || b.emitted {
		return
	}
	if b.reporter != nil {
		b.reporter.Report(b.diag)
	}
	b.emitted = true
}

// Diagnostic returns accumulated diagnostic without emitting.
func (b *ReportBuilder) Diagnostic() Diagnostic {
	if b == nil {
		return Diagnostic{}
	}
	return b.diag
}

// BagReporter writes into *Bag. It is safe for concurrent use so parallel
// crate parsing can share one bag.
type BagReporter struct {
	Bag *Bag
	mu  sync.Mutex
}

func (r *BagReporter) Report(d Diagnostic) {
	if r == nil || r.Bag == nil {
		return
	}
	r.mu.Lock()
	r.Bag.Add(d)
	r.mu.Unlock()
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(Diagnostic) {}
