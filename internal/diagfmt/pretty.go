package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"ferment/internal/diag"
	"ferment/internal/source"
)

type palette struct {
	err, warn, info, note, hint, gutter, caret *color.Color
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return palette{
		err:    mk(color.FgRed, color.Bold),
		warn:   mk(color.FgYellow, color.Bold),
		info:   mk(color.FgCyan),
		note:   mk(color.FgBlue, color.Bold),
		hint:   mk(color.FgGreen),
		gutter: mk(color.FgBlue),
		caret:  mk(color.FgRed, color.Bold),
	}
}

func (p palette) severity(sev diag.Severity) *color.Color {
	switch sev {
	case diag.SevError:
		return p.err
	case diag.SevWarning:
		return p.warn
	default:
		return p.info
	}
}

// Pretty renders bag.Items() (sorted by the caller) as
//
//	<path>:<line>:<col>: <sev> <CODE>: <message>
//	   | source line
//	   | ^^^^
//
// followed by scope, notes and hint lines.
func Pretty(w io.Writer, bag *diag.Bag, fs *source.FileSet, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for i, d := range bag.Items() {
		if opts.Max > 0 && i >= opts.Max {
			fmt.Fprintf(w, "... %d more diagnostics\n", bag.Len()-i)
			return
		}
		sev := strings.ToLower(d.Severity.String())
		fmt.Fprintf(w, "%s: %s %s: %s\n", location(fs, d.Primary), p.severity(d.Severity).Sprint(sev), d.Code.ID(), d.Message)
		writeSnippet(w, fs, d.Primary, opts.Context, p)
		if d.Scope != "" {
			fmt.Fprintf(w, "  %s in %s\n", p.gutter.Sprint("="), d.Scope)
		}
		if opts.ShowNotes {
			for _, n := range d.Notes {
				fmt.Fprintf(w, "  %s %s: %s\n", p.note.Sprint("note"), location(fs, n.Span), n.Msg)
			}
		}
		if d.Hint != "" {
			fmt.Fprintf(w, "  %s %s\n", p.hint.Sprint("hint:"), d.Hint)
		}
	}
}

func location(fs *source.FileSet, sp source.Span) string {
	if fs == nil || int(sp.File) >= fs.Len() {
		return "<generated>"
	}
	return fs.Position(sp)
}

func writeSnippet(w io.Writer, fs *source.FileSet, sp source.Span, context int, p palette) {
	if fs == nil || int(sp.File) >= fs.Len() {
		return
	}
	f := fs.Get(sp.File)
	start, end := fs.Resolve(sp)
	line := f.GetLine(start.Line)
	if line == "" && sp.Empty() {
		return
	}
	width := len(fmt.Sprint(start.Line))
	first := int(start.Line) - context
	if first < 1 {
		first = 1
	}
	for n := first; n < int(start.Line); n++ {
		fmt.Fprintf(w, " %*d %s %s\n", width, n, p.gutter.Sprint("|"), f.GetLine(uint32(n))) //nolint:gosec // n >= 1
	}
	fmt.Fprintf(w, " %*d %s %s\n", width, start.Line, p.gutter.Sprint("|"), line)

	prefix := byteCol(line, start.Col)
	lead := runewidth.StringWidth(expandTabs(line[:prefix]))
	caretEnd := len(line)
	if end.Line == start.Line {
		caretEnd = byteCol(line, end.Col)
	}
	span := runewidth.StringWidth(expandTabs(line[prefix:caretEnd]))
	if span < 1 {
		span = 1
	}
	fmt.Fprintf(w, " %s %s %s%s\n", strings.Repeat(" ", width), p.gutter.Sprint("|"),
		strings.Repeat(" ", lead), p.caret.Sprint(strings.Repeat("^", span)))
}

// byteCol converts a 1-based byte column into a clamped byte offset.
func byteCol(line string, col uint32) int {
	off := int(col) - 1
	if off < 0 {
		return 0
	}
	if off > len(line) {
		return len(line)
	}
	return off
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}
