// Package ferr is the generator's error taxonomy. Every error that reaches
// the entry point carries exactly one Kind, recoverable with KindOf, plus
// optional hints and details from cockroachdb/errors.
package ferr

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"ferment/internal/diag"
	"ferment/internal/source"
)

// Kind classifies where in the pipeline an error originated.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIO
	KindParse
	KindResolution
	KindClassification
	KindEmission
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "input i/o error"
	case KindParse:
		return "parse error"
	case KindResolution:
		return "resolution error"
	case KindClassification:
		return "classification error"
	case KindEmission:
		return "emission error"
	}
	return "error"
}

// Marker errors; errors.Is(err, ErrResolution) works through any wrapping.
var (
	ErrIO             = errors.New("input i/o error")
	ErrParse          = errors.New("parse error")
	ErrResolution     = errors.New("resolution error")
	ErrClassification = errors.New("classification error")
	ErrEmission       = errors.New("emission error")
)

var markers = []struct {
	kind Kind
	ref  error
}{
	{KindIO, ErrIO},
	{KindParse, ErrParse},
	{KindResolution, ErrResolution},
	{KindClassification, ErrClassification},
	{KindEmission, ErrEmission},
}

func marker(k Kind) error {
	for _, m := range markers {
		if m.kind == k {
			return m.ref
		}
	}
	return nil
}

// Mark tags err with kind k.
func Mark(err error, k Kind) error {
	if err == nil {
		return nil
	}
	ref := marker(k)
	if ref == nil {
		return err
	}
	return errors.Mark(err, ref)
}

// Newf creates a new error of kind k.
func Newf(k Kind, format string, args ...any) error {
	return Mark(errors.NewWithDepthf(1, format, args...), k)
}

// Wrapf wraps err with context and tags it with kind k.
func Wrapf(k Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return Mark(errors.WrapWithDepthf(1, err, format, args...), k)
}

// KindOf returns the kind err was marked with.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, m := range markers {
		if errors.Is(err, m.ref) {
			return m.kind
		}
	}
	return KindUnknown
}

// KindForCode maps a diagnostic code range onto the error taxonomy.
func KindForCode(c diag.Code) Kind {
	switch id := int(c); {
	case id >= 2000 && id < 3000:
		return KindParse
	case id >= 3000 && id < 3100:
		return KindResolution
	case id >= 3100 && id < 4000:
		return KindClassification
	case id >= 4000 && id < 6000:
		return KindIO
	case id >= 6000 && id < 7000:
		return KindEmission
	}
	return KindUnknown
}

// FromDiagnostic turns the first error of a stage into a typed error naming
// the file position, scope and offending construct.
func FromDiagnostic(d diag.Diagnostic, fs *source.FileSet) error {
	pos := "<generated>"
	if fs != nil && int(d.Primary.File) < fs.Len() {
		pos = fs.Position(d.Primary)
	}
	err := errors.Newf("%s: %s %s", pos, d.Code.ID(), d.Message)
	if d.Scope != "" {
		err = errors.WithDetailf(err, "scope: %s", d.Scope)
	}
	if d.Hint != "" {
		err = errors.WithHint(err, d.Hint)
	}
	return Mark(err, KindForCode(d.Code))
}

// FromBag converts the first error diagnostic of bag, if any.
func FromBag(bag *diag.Bag, fs *source.FileSet) error {
	if bag == nil {
		return nil
	}
	d, ok := bag.FirstError()
	if !ok {
		return nil
	}
	err := FromDiagnostic(d, fs)
	if n := bag.ErrorCount(); n > 1 {
		err = errors.WithDetail(err, fmt.Sprintf("%d more errors", n-1))
	}
	return err
}

// Hints returns every hint attached to err.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}

// Details returns every detail attached to err.
func Details(err error) []string {
	return errors.GetAllDetails(err)
}
