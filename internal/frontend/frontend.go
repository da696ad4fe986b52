// Package frontend renders secondary language bindings on top of a composed
// fermentate. Every front-end reads the mirror plans and binding signatures
// and never looks at the Rust sources again.
package frontend

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"ferment/internal/compose"
	"ferment/internal/project"
	"ferment/internal/writer"
)

// Frontend renders one target language. Files are relative to the
// language's own output directory.
type Frontend interface {
	Lang() string
	Render(f *compose.Fermentate) ([]writer.File, error)
}

// record is a transparent mirror as seen by a front-end.
type record struct {
	info  *compose.Info
	class string
	// fields are struct slots or, for enums, variant payload slots.
	fields []field
}

type field struct {
	slot    string
	variant string
	name    string
	ctype   string
	conv    compose.Conv
}

// records lists the transparent structs and enums of f in key order.
func records(f *compose.Fermentate, prefix string) []record {
	var out []record
	for _, info := range f.Items {
		if info.Strategy != compose.StrategyStruct && info.Strategy != compose.StrategyEnum {
			continue
		}
		r := record{info: info, class: prefix + pascal(info.Name)}
		for _, st := range info.Plan {
			fd := field{slot: st.Slot, name: st.Slot, ctype: st.CType, conv: st.Conv}
			if v, n, ok := strings.Cut(st.Slot, "."); ok {
				fd.variant, fd.name = v, v+"_"+n
			}
			r.fields = append(r.fields, fd)
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].info.Key < out[j].info.Key })
	return out
}

// byMirror indexes records by the C name of their mirror.
func byMirror(rs []record) map[string]record {
	out := make(map[string]record, len(rs))
	for _, r := range rs {
		out[r.info.Name] = r
	}
	return out
}

// bindings lists every extern function of f: mirror bindings in item
// order, then generic instantiations, then free functions.
func bindings(f *compose.Fermentate) []compose.Binding {
	var out []compose.Binding
	for _, list := range [][]*compose.Info{f.Items, f.Generics} {
		for _, info := range list {
			out = append(out, info.Bindings...)
		}
	}
	for _, fb := range f.Functions {
		out = append(out, fb.Binding)
	}
	return out
}

// pascal turns a snake_case mirror or slot name into PascalCase.
// Casers keep state, so each call builds its own.
func pascal(s string) string {
	titler := cases.Title(language.Und, cases.NoLower)
	var b strings.Builder
	for _, part := range strings.Split(s, "_") {
		if part == "" {
			continue
		}
		b.WriteString(titler.String(part))
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}

// camel is pascal with a lower-case head.
func camel(s string) string {
	r := []rune(pascal(s))
	out := cases.Lower(language.Und).String(string(r[0])) + string(r[1:])
	if isDigit(out[0]) {
		return "_" + out
	}
	return out
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// mirrorTarget returns the mirror name a C type points at, if any.
func mirrorTarget(ctype string) (string, bool) {
	rest, ok := strings.CutPrefix(ctype, "*mut ")
	if !ok {
		rest, ok = strings.CutPrefix(ctype, "*const ")
	}
	if !ok || strings.HasPrefix(rest, "*") {
		return "", false
	}
	if i := strings.LastIndex(rest, "::"); i >= 0 {
		rest = rest[i+2:]
	}
	return rest, true
}

// cScalars maps Rust scalars onto C types.
var cScalars = map[string]string{
	"u8":    "uint8_t",
	"u16":   "uint16_t",
	"u32":   "uint32_t",
	"u64":   "uint64_t",
	"i8":    "int8_t",
	"i16":   "int16_t",
	"i32":   "int32_t",
	"i64":   "int64_t",
	"usize": "uintptr_t",
	"isize": "intptr_t",
	"f32":   "float",
	"f64":   "double",
	"bool":  "bool",
	"char":  "uint32_t",
}

// FromConfig returns the front-ends a manifest enables, Objective-C first.
// cheader names the C header the Objective-C classes import.
func FromConfig(langs project.LanguagesConfig, cheader string) []Frontend {
	var out []Frontend
	if o := langs.ObjC; o != nil {
		out = append(out, &ObjC{
			ClassPrefix:   o.ClassPrefix,
			FrameworkName: o.FrameworkName,
			HeaderName:    o.HeaderName,
			CHeader:       cheader,
		})
	}
	if j := langs.Java; j != nil {
		out = append(out, &Java{FrameworkName: j.FrameworkName})
	}
	return out
}
