// Package diag defines the diagnostic model shared by every generator stage.
//
// A Diagnostic records severity, a stable Code (rendered as SYN/RES/CLS/IO/
// PRJ/EMT plus four digits), a message, the primary source span, the scope
// chain the construct lives in, optional notes and a hint.
//
// Stages emit through a Reporter so they stay decoupled from storage:
// BagReporter collects into a Bag, DedupReporter drops repeats. Rendering
// lives in internal/diagfmt; FormatShort is the one-line form used by golden
// tests.
package diag
