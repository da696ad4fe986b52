package rustsrc

import (
	"strings"

	"ferment/internal/source"
	"ferment/internal/syntax"
)

// parseAttr splits `#[a::b(args)]`, `#[a = "v"]` or `#![inner]` into path
// and argument text.
func parseAttr(text string, sp source.Span) (syntax.Attr, bool) {
	body := strings.TrimSpace(text)
	body = strings.TrimPrefix(body, "#")
	body = strings.TrimPrefix(body, "!")
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "[") || !strings.HasSuffix(body, "]") {
		return syntax.Attr{}, false
	}
	body = strings.TrimSpace(body[1 : len(body)-1])

	end := strings.IndexAny(body, "([{= \t\n")
	pathText, rest := body, ""
	if end >= 0 {
		pathText, rest = body[:end], strings.TrimSpace(body[end:])
	}
	path := splitPath(pathText)
	if len(path) == 0 {
		return syntax.Attr{}, false
	}
	attr := syntax.Attr{Path: path, Span: sp}
	switch {
	case rest == "":
	case strings.HasPrefix(rest, "="):
		attr.Args = strings.TrimSpace(rest[1:])
	case len(rest) >= 2:
		attr.Args = strings.TrimSpace(rest[1 : len(rest)-1])
	}
	return attr, true
}

func splitPath(text string) []string {
	var out []string
	for _, seg := range strings.Split(strings.TrimSpace(text), "::") {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		out = append(out, strings.TrimPrefix(seg, "r#"))
	}
	return out
}

// splitTopLevel splits s on commas that are not nested in any bracket pair.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			if s[i] == '>' && i > 0 && s[i-1] == '-' {
				continue
			}
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}
