package resolve

import (
	"strings"

	"ferment/internal/scope"
)

var keywords = map[string]bool{
	"as": true, "async": true, "await": true, "break": true, "const": true, "continue": true,
	"crate": true, "dyn": true, "else": true, "enum": true, "extern": true, "false": true,
	"fn": true, "for": true, "if": true, "impl": true, "in": true, "let": true, "loop": true,
	"match": true, "mod": true, "move": true, "mut": true, "pub": true, "ref": true,
	"return": true, "self": true, "Self": true, "static": true, "struct": true, "super": true,
	"trait": true, "true": true, "type": true, "unsafe": true, "use": true, "where": true,
	"while": true,
}

// qualifyClosure rewrites the head of every path in a conversion closure to
// the absolute path it names at the macro site. The closure is emitted into
// the generated module, which sees none of the site's imports.
func (c *Context) qualifyClosure(n *scope.Node, src string) string {
	locals := closureLocals(src)
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); {
		ch := src[i]
		switch {
		case ch == '"':
			j := skipString(src, i)
			b.WriteString(src[i:j])
			i = j
		case ch == '\'':
			j := skipQuote(src, i)
			b.WriteString(src[i:j])
			i = j
		case ch >= '0' && ch <= '9':
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			b.WriteString(src[i:j])
			i = j
		case isWordByte(ch):
			j := i
			for j < len(src) && isWordByte(src[j]) {
				j++
			}
			word := src[i:j]
			if path, ok := c.pathHead(n, src, i, j, locals); ok {
				word = path
			}
			b.WriteString(word)
			i = j
		default:
			b.WriteByte(ch)
			i++
		}
	}
	return b.String()
}

// pathHead returns the absolute path of the identifier src[i:j] when it
// starts a path that resolves at n.
func (c *Context) pathHead(n *scope.Node, src string, i, j int, locals map[string]bool) (string, bool) {
	word := src[i:j]
	if locals[word] || keywords[word] || IsPrimitive(word) {
		return "", false
	}
	if p := prevByte(src, i); p >= 0 {
		if src[p] == '.' || src[p] == ':' && p > 0 && src[p-1] == ':' {
			return "", false
		}
	}
	if k := nextByte(src, j); k < len(src) {
		switch {
		case src[k] == '!' && (k+1 >= len(src) || src[k+1] != '='):
			return "", false
		case src[k] == ':' && (k+1 >= len(src) || src[k+1] != ':'):
			return "", false
		}
	}
	if n == nil {
		return "", false
	}
	if t, ok := c.Forest.ResolveName(n, word); ok {
		var chain scope.Chain
		switch {
		case t.Decl != nil:
			chain = t.Decl.Canonical()
			if e := c.byDecl[t.Decl]; e != nil {
				chain = e.Path
			}
		case t.Node != nil:
			chain = t.Node.Chain
		}
		if len(chain) == 0 {
			return "", false
		}
		return c.absolute(chain), true
	}
	if full, ok := c.Forest.ImportPath(n, word); ok && len(full) > 0 {
		switch full[0] {
		case "crate", "self", "super":
			return "", false
		}
		return "::" + strings.Join(full, "::"), true
	}
	return "", false
}

// absolute renders a canonical chain as a path valid anywhere in the
// primary crate.
func (c *Context) absolute(chain scope.Chain) string {
	if t := c.Forest.Tree(chain.Crate()); t != nil && t.Primary {
		return strings.Join(append([]string{"crate"}, chain[1:]...), "::")
	}
	return "::" + chain.String()
}

// closureLocals collects the names a closure binds: its parameters and its
// let bindings.
func closureLocals(src string) map[string]bool {
	locals := make(map[string]bool)
	s := strings.TrimSpace(src)
	s = strings.TrimSpace(strings.TrimPrefix(s, "move"))
	if strings.HasPrefix(s, "|") {
		if end := strings.IndexByte(s[1:], '|'); end >= 0 {
			for _, param := range splitDepth(s[1:1+end], ',') {
				pattern, _, _ := cutTypeColon(param)
				addWords(locals, pattern)
			}
		}
	}
	for rest := s; ; {
		k := indexWord(rest, "let")
		if k < 0 {
			break
		}
		rest = rest[k+3:]
		end := strings.IndexAny(rest, "=;")
		if end < 0 {
			end = len(rest)
		}
		pattern, _, _ := cutTypeColon(rest[:end])
		addWords(locals, pattern)
	}
	return locals
}

func addWords(set map[string]bool, s string) {
	for i := 0; i < len(s); {
		if !isWordByte(s[i]) {
			i++
			continue
		}
		j := i
		for j < len(s) && isWordByte(s[j]) {
			j++
		}
		if w := s[i:j]; !keywords[w] && (w[0] < '0' || w[0] > '9') {
			set[w] = true
		}
		i = j
	}
}

// cutTypeColon splits `pattern: Type` at the first single colon outside
// brackets.
func cutTypeColon(s string) (pattern, typ string, found bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '<', '{':
			depth++
		case ')', ']', '>', '}':
			depth--
		case ':':
			if i+1 < len(s) && s[i+1] == ':' {
				i++
				continue
			}
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return s, "", false
}

func splitDepth(s string, sep byte) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '<', '{':
			depth++
		case ')', ']', '>', '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func indexWord(s, word string) int {
	for off := 0; ; {
		k := strings.Index(s[off:], word)
		if k < 0 {
			return -1
		}
		k += off
		before := k == 0 || !isWordByte(s[k-1])
		after := k+len(word) >= len(s) || !isWordByte(s[k+len(word)])
		if before && after {
			return k
		}
		off = k + len(word)
	}
}

func skipString(s string, i int) int {
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '"':
			return j + 1
		}
	}
	return len(s)
}

// skipQuote consumes a char literal or a lifetime starting at s[i].
func skipQuote(s string, i int) int {
	switch {
	case i+1 < len(s) && s[i+1] == '\\':
		if end := strings.IndexByte(s[i+2:], '\''); end >= 0 {
			return i + 2 + end + 1
		}
		return len(s)
	case i+2 < len(s) && s[i+2] == '\'':
		return i + 3
	}
	j := i + 1
	for j < len(s) && isWordByte(s[j]) {
		j++
	}
	return j
}

func prevByte(s string, i int) int {
	for i--; i >= 0 && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n'); i-- {
	}
	return i
}

func nextByte(s string, j int) int {
	for j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
		j++
	}
	return j
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
