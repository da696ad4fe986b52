package diag

// Severity ranks a diagnostic. Errors keep the fermentate from being
// written; warnings and notes are printed and the run goes on.
type Severity uint8

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

var severityNames = [...]string{
	SevInfo:    "INFO",
	SevWarning: "WARNING",
	SevError:   "ERROR",
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "UNKNOWN"
}

// Blocks reports whether a diagnostic of this severity stops the pipeline
// before the writer.
func (s Severity) Blocks() bool { return s >= SevError }
