package diagfmt

// PrettyOpts configures pretty-printing of diagnostics.
type PrettyOpts struct {
	Color     bool
	Context   int // extra source lines shown above the primary line
	ShowNotes bool
	Max       int // 0 means unlimited
}

// JSONOpts configures JSON output of diagnostics.
type JSONOpts struct {
	IncludePositions bool
	IncludeNotes     bool
	Max              int
}
