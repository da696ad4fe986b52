// Package writer lays a fermentate out as Rust module files and puts them
// on disk in one step, or compares them with what is already there.
package writer

import (
	"path"
	"sort"
	"strings"

	"ferment/internal/compose"
	"ferment/internal/scope"
)

// Banner opens every generated file.
const Banner = "// Generated by ferment. Do not edit."

// File is one rendered file, slash-separated and relative to the
// fermentate root.
type File struct {
	Path    string
	Content string
}

// Layout renders f as `mod.rs`, `support.rs`, `types/<crate>/<mods>/mod.rs`
// and `generics/mod.rs`, sorted by path.
func Layout(f *compose.Fermentate) []File {
	var files []File
	files = append(files,
		File{Path: "mod.rs", Content: Banner + "\n\npub mod support;\npub mod types;\npub mod generics;\n"},
		File{Path: "support.rs", Content: Banner + "\n\n" + f.Support},
	)

	items := make(map[string][]*compose.Info)
	funcs := make(map[string][]compose.FunctionBinding)
	for _, i := range f.Items {
		items[i.Module.String()] = append(items[i.Module.String()], i)
	}
	for _, fb := range f.Functions {
		funcs[fb.Module.String()] = append(funcs[fb.Module.String()], fb)
	}

	// every ancestor of a populated module needs a mod.rs declaring it
	children := map[string]map[string]bool{"": {}}
	chains := map[string]scope.Chain{}
	for _, m := range f.Modules() {
		for i := 1; i <= len(m); i++ {
			ch := m[:i]
			parent := ch.Parent().String()
			if children[parent] == nil {
				children[parent] = map[string]bool{}
			}
			children[parent][ch.Last()] = true
			chains[ch.String()] = ch
		}
	}

	files = append(files, File{Path: "types/mod.rs", Content: Banner + "\n\n" + modDecls(children[""])})
	for key, ch := range chains {
		var b strings.Builder
		b.WriteString(Banner + "\n")
		b.WriteString(f.Header())
		if decls := modDecls(children[key]); decls != "" {
			b.WriteString("\n" + decls)
		}
		for _, i := range items[key] {
			b.WriteString("\n" + i.Render())
		}
		for _, fb := range funcs[key] {
			b.WriteString("\n" + fb.Binding.Render())
		}
		files = append(files, File{Path: path.Join(append([]string{"types"}, ch...)...) + "/mod.rs", Content: b.String()})
	}

	var g strings.Builder
	g.WriteString(Banner + "\n")
	g.WriteString(f.Header())
	for _, i := range f.Generics {
		g.WriteString("\n" + i.Render())
	}
	files = append(files, File{Path: "generics/mod.rs", Content: g.String()})

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

func modDecls(names map[string]bool) string {
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)
	var b strings.Builder
	for _, n := range sorted {
		b.WriteString("pub mod " + n + ";\n")
	}
	return b.String()
}
