package compose

import (
	"fmt"
	"hash/fnv"
	"slices"
	"sort"
	"strings"

	"ferment/internal/diag"
	"ferment/internal/scope"
	"ferment/internal/source"
	"ferment/internal/typeref"
)

// Symbolic references are written while composing and replaced by link.
// pathMark introduces a fully qualified mirror path, nameMark a bare name.
const (
	pathMark = "\x01"
	nameMark = "\x03"
	endMark  = "\x02"
)

func mirrorRef(key string) string  { return pathMark + key + endMark }
func mirrorName(key string) string { return nameMark + key + endMark }

// fnKey is the symbolic key of a free function binding.
func fnKey(path scope.Chain) string { return "fn " + path.String() }

// rustPath renders a canonical path as seen from inside the primary crate.
func (c *Composer) rustPath(ch scope.Chain) string {
	if len(ch) > 0 && ch[0] == c.cfg.Crate {
		return strings.Join(append([]string{"crate"}, ch[1:]...), "::")
	}
	return ch.String()
}

// rustType renders a canonical type reference as Rust source.
func (c *Composer) rustType(t typeref.TypeRef) string {
	return typeref.Rewrite(t, func(p typeref.TypeRef) typeref.TypeRef {
		names := p.Names()
		if len(names) > 1 && names[0] == c.cfg.Crate {
			return p.WithSegments(append([]string{"crate"}, names[1:]...))
		}
		return p
	}).String()
}

// modPath is the Rust path of the fermentate root.
func (c *Composer) modPath() string { return "crate::" + c.cfg.ModName }

// linker assigns final names to every symbolic key.
type linker struct {
	names map[string]string
	paths map[string]string
}

type linkable struct {
	key    string
	base   string
	module scope.Chain
	span   source.Span
	fn     bool
}

// link assigns mangled names; keys whose mangled names collide keep them
// apart with a hash suffix of the canonical key.
func (c *Composer) link(all []linkable, reporter diag.Reporter) *linker {
	l := &linker{names: make(map[string]string), paths: make(map[string]string)}
	groups := make(map[string][]linkable)
	var bases []string
	for _, it := range all {
		if _, ok := groups[it.base]; !ok {
			bases = append(bases, it.base)
		}
		groups[it.base] = append(groups[it.base], it)
	}
	sort.Strings(bases)
	for _, base := range bases {
		group := groups[base]
		if len(group) > 1 {
			keys := make([]string, len(group))
			for i, it := range group {
				keys[i] = it.key
			}
			slices.Sort(keys)
			diag.ReportWarning(reporter, diag.EmtNameCollision, group[0].span,
				fmt.Sprintf("generated name `%s` is shared by %s; hash suffixes keep them apart", base, strings.Join(keys, ", "))).
				Emit()
		}
		for _, it := range group {
			name := base
			if len(group) > 1 {
				name = fmt.Sprintf("%s_h%08x", base, keyHash(it.key))
			}
			l.names[it.key] = name
			switch {
			case it.fn:
				l.paths[it.key] = name
			case it.module == nil:
				l.paths[it.key] = c.modPath() + "::generics::" + name
			default:
				l.paths[it.key] = c.modPath() + "::types::" + it.module.String() + "::" + name
			}
		}
	}
	return l
}

func keyHash(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32()
}

// text replaces every symbolic reference in s.
func (l *linker) text(s string) string {
	if !strings.ContainsAny(s, pathMark+nameMark) {
		return s
	}
	var b strings.Builder
	for {
		i := strings.IndexAny(s, pathMark+nameMark)
		if i < 0 {
			b.WriteString(s)
			return b.String()
		}
		b.WriteString(s[:i])
		mark := s[i]
		rest := s[i+1:]
		j := strings.Index(rest, endMark)
		if j < 0 {
			b.WriteString(rest)
			return b.String()
		}
		key := rest[:j]
		if mark == pathMark[0] {
			b.WriteString(l.paths[key])
		} else {
			b.WriteString(l.names[key])
		}
		s = rest[j+1:]
	}
}

func (l *linker) lines(in []string) []string {
	for i, s := range in {
		in[i] = l.text(s)
	}
	return in
}

func (l *linker) binding(b *Binding) {
	b.Name = l.text(b.Name)
	b.Ret = l.text(b.Ret)
	for i := range b.Params {
		b.Params[i].Type = l.text(b.Params[i].Type)
	}
	l.lines(b.Body)
}

func (l *linker) info(i *Info) {
	if name, ok := l.names[i.Key]; ok {
		i.Name = name
	}
	i.Target = l.text(i.Target)
	l.lines(i.Decl)
	l.lines(i.From)
	l.lines(i.To)
	l.lines(i.Destroy)
	for k := range i.Bindings {
		l.binding(&i.Bindings[k])
	}
	for k := range i.Plan {
		i.Plan[k].CType = l.text(i.Plan[k].CType)
	}
}

// identOrPositional returns name when it is a plain identifier.
func identOrPositional(name string, i int) string {
	if isIdent(name) {
		return name
	}
	return fmt.Sprintf("o_%d", i)
}

func isIdent(s string) bool {
	s = strings.TrimPrefix(s, "r#")
	if s == "" || s == "_" || s == "self" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch == '_', ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func sortChains(cs []scope.Chain) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}
