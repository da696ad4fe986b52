package frontend

import (
	"fmt"
	"path"
	"strings"

	"ferment/internal/compose"
	"ferment/internal/writer"
)

// BindingsClass declares every native method.
const BindingsClass = "FermentBindings"

// Java renders one class per transparent mirror and a class of native
// method declarations. Objects wrap the mirror handle and read their fields
// through the generated getters.
type Java struct {
	FrameworkName string
	// Library is the native library loaded by the bindings class.
	Library string
}

func (j *Java) Lang() string { return "java" }

func (j *Java) Render(f *compose.Fermentate) ([]writer.File, error) {
	if j.FrameworkName == "" {
		return nil, fmt.Errorf("java: framework name is empty")
	}
	for _, part := range strings.Split(j.FrameworkName, ".") {
		if part == "" || javaKeywords[part] {
			return nil, fmt.Errorf("java: %q is not a valid package name", j.FrameworkName)
		}
	}
	dir := strings.ReplaceAll(j.FrameworkName, ".", "/")
	rs := records(f, "")
	known := byMirror(rs)
	getters := make(map[string]compose.Binding)
	for _, b := range bindings(f) {
		getters[b.Name] = b
	}

	var files []writer.File
	for _, r := range rs {
		files = append(files, writer.File{
			Path:    path.Join(dir, r.class+".java"),
			Content: j.class(r, known, getters),
		})
	}
	files = append(files, writer.File{
		Path:    path.Join(dir, BindingsClass+".java"),
		Content: j.natives(f),
	})
	return files, nil
}

func (j *Java) preamble(b *strings.Builder) {
	b.WriteString(writer.Banner + "\n")
	fmt.Fprintf(b, "package %s;\n\n", j.FrameworkName)
}

func (j *Java) class(r record, known map[string]record, getters map[string]compose.Binding) string {
	var b strings.Builder
	j.preamble(&b)
	fmt.Fprintf(&b, "public final class %s {\n", r.class)
	enum := r.info.Strategy == compose.StrategyEnum
	if enum {
		for _, t := range r.info.Tags {
			fmt.Fprintf(&b, "    public static final int TAG_%s = %d;\n", strings.ToUpper(t.Name), t.Value)
		}
		b.WriteString("\n")
	}

	type member struct {
		name, typ, init string
	}
	var members []member
	if enum {
		members = append(members, member{"tag", "int", BindingsClass + "." + r.info.Name + "_get_tag(handle)"})
	} else {
		for _, fd := range r.fields {
			g, ok := getters[r.info.Name+"_get_"+fd.slot]
			if !ok {
				continue
			}
			call := BindingsClass + "." + g.Name + "(handle)"
			typ := javaType(g.Ret)
			if target, isMirror := mirrorTarget(g.Ret); isMirror {
				if other, ok := known[target]; ok {
					typ = other.class
					call = "new " + other.class + "(" + call + ")"
				}
			}
			members = append(members, member{javaIdent(camel(fd.name)), typ, call})
		}
	}

	b.WriteString("    public final long handle;\n")
	for _, m := range members {
		fmt.Fprintf(&b, "    public final %s %s;\n", m.typ, m.name)
	}
	fmt.Fprintf(&b, "\n    public %s(long handle) {\n", r.class)
	b.WriteString("        this.handle = handle;\n")
	for _, m := range members {
		fmt.Fprintf(&b, "        this.%s = %s;\n", m.name, m.init)
	}
	b.WriteString("    }\n\n")
	b.WriteString("    public void destroy() {\n")
	fmt.Fprintf(&b, "        %s.%s_destroy(handle);\n", BindingsClass, r.info.Name)
	b.WriteString("    }\n}\n")
	return b.String()
}

func (j *Java) natives(f *compose.Fermentate) string {
	lib := j.Library
	if lib == "" {
		lib = f.Crate
	}
	var b strings.Builder
	j.preamble(&b)
	fmt.Fprintf(&b, "public final class %s {\n", BindingsClass)
	fmt.Fprintf(&b, "    static {\n        System.loadLibrary(%q);\n    }\n\n", lib)
	fmt.Fprintf(&b, "    private %s() {}\n", BindingsClass)
	for _, bd := range bindings(f) {
		params := make([]string, len(bd.Params))
		for i, p := range bd.Params {
			params[i] = javaType(p.Type) + " " + javaIdent(p.Name)
		}
		fmt.Fprintf(&b, "\n    public static native %s %s(%s);\n", javaType(bd.Ret), bd.Name, strings.Join(params, ", "))
	}
	b.WriteString("}\n")
	return b.String()
}

var javaScalars = map[string]string{
	"":                     "void",
	"()":                   "void",
	"u8":                   "byte",
	"i8":                   "byte",
	"u16":                  "short",
	"i16":                  "short",
	"u32":                  "int",
	"i32":                  "int",
	"char":                 "int",
	"u64":                  "long",
	"i64":                  "long",
	"usize":                "long",
	"isize":                "long",
	"f32":                  "float",
	"f64":                  "double",
	"bool":                 "boolean",
	"support::OwnedString": "String",
	"support::Duration":    "java.time.Duration",
}

// javaType maps a C-side Rust type onto Java. Pointers and aggregates
// travel as handles.
func javaType(rust string) string {
	if t, ok := javaScalars[rust]; ok {
		return t
	}
	return "long"
}

var javaKeywords = map[string]bool{
	"abstract": true, "assert": true, "boolean": true, "break": true, "byte": true,
	"case": true, "catch": true, "char": true, "class": true, "const": true,
	"continue": true, "default": true, "do": true, "double": true, "else": true,
	"enum": true, "extends": true, "final": true, "finally": true, "float": true,
	"for": true, "goto": true, "if": true, "implements": true, "import": true,
	"instanceof": true, "int": true, "interface": true, "long": true, "native": true,
	"new": true, "package": true, "private": true, "protected": true, "public": true,
	"return": true, "short": true, "static": true, "strictfp": true, "super": true,
	"switch": true, "synchronized": true, "this": true, "throw": true, "throws": true,
	"transient": true, "try": true, "void": true, "volatile": true, "while": true,
	"true": true, "false": true, "null": true,
}

// javaIdent keeps generated names clear of keywords and the handle field.
func javaIdent(s string) string {
	if javaKeywords[s] || s == "handle" {
		return s + "_"
	}
	return s
}
