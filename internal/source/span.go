package source

import "strconv"

// Span locates a diagnostic or a syntax node: bytes [Start, End) of File.
// Spans of cached syntax are rebased onto the file's current ID on load.
type Span struct {
	File  FileID
	Start uint32
	End   uint32
}

// NoFile is the file of spans that point at no input, such as output-side
// diagnostics.
const NoFile = ^FileID(0)

// Generated is the span of diagnostics about emitted files; renderers print
// it as <generated>.
var Generated = Span{File: NoFile}

// Empty reports a zero-width span, as tree-sitter produces for missing
// nodes.
func (s Span) Empty() bool { return s.Start == s.End }

func (s Span) String() string {
	if s.File == NoFile {
		return "<generated>"
	}
	return strconv.FormatUint(uint64(s.File), 10) + ":" +
		strconv.FormatUint(uint64(s.Start), 10) + "-" + strconv.FormatUint(uint64(s.End), 10)
}
