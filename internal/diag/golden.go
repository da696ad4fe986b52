package diag

import (
	"fmt"
	"sort"
	"strings"

	"ferment/internal/source"
)

type shortLine struct {
	Severity string
	Code     string
	Pos      string
	Message  string
}

// FormatShort renders one line per diagnostic (`error RES3001 path:l:c msg`),
// sorted deterministically. Tests compare against it as a golden string.
func FormatShort(diags []Diagnostic, fs *source.FileSet, includeNotes bool) string {
	if len(diags) == 0 {
		return ""
	}
	lines := make([]shortLine, 0, len(diags))
	for _, d := range diags {
		lines = append(lines, shortLine{
			Severity: severityLabel(d.Severity),
			Code:     d.Code.ID(),
			Pos:      position(fs, d.Primary),
			Message:  sanitizeMessage(d.Message),
		})
		if !includeNotes {
			continue
		}
		for _, n := range d.Notes {
			lines = append(lines, shortLine{
				Severity: "note",
				Code:     d.Code.ID(),
				Pos:      position(fs, n.Span),
				Message:  sanitizeMessage(n.Msg),
			})
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		li, lj := lines[i], lines[j]
		if li.Pos != lj.Pos {
			return li.Pos < lj.Pos
		}
		if li.Code != lj.Code {
			return li.Code < lj.Code
		}
		return li.Message < lj.Message
	})

	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s %s", l.Severity, l.Code, l.Pos, l.Message)
	}
	return b.String()
}

func position(fs *source.FileSet, sp source.Span) string {
	if fs == nil {
		return "-"
	}
	return fs.Position(sp)
}

func severityLabel(sev Severity) string {
	switch sev {
	case SevError:
		return "error"
	case SevWarning:
		return "warning"
	default:
		return "info"
	}
}

func sanitizeMessage(msg string) string {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = strings.ReplaceAll(msg, "\n", " ")
	return strings.TrimSpace(msg)
}
