package rustsrc

import (
	"fmt"
	"strings"
	"unicode"

	"ferment/internal/syntax"
)

// flattenUse expands a use tree such as `a::{b, c::d as e, f::*}` into one
// entry per leaf.
func flattenUse(text string) ([]syntax.UseEntry, error) {
	p := &useParser{toks: tokenizeUse(text)}
	var out []syntax.UseEntry
	if err := p.tree(nil, &out); err != nil {
		return nil, err
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("unexpected %q in use tree", p.toks[p.pos])
	}
	return out, nil
}

type useParser struct {
	toks []string
	pos  int
}

func (p *useParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *useParser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *useParser) tree(prefix []string, out *[]syntax.UseEntry) error {
	path := append([]string(nil), prefix...)
	if p.peek() == "::" {
		p.next()
	}
	for {
		switch t := p.peek(); {
		case t == "*":
			p.next()
			*out = append(*out, syntax.UseEntry{Path: path, Glob: true})
			return nil
		case t == "{":
			p.next()
			for p.peek() != "}" {
				if p.peek() == "" {
					return fmt.Errorf("unterminated use list")
				}
				if err := p.tree(path, out); err != nil {
					return err
				}
				if p.peek() == "," {
					p.next()
				}
			}
			p.next()
			return nil
		case isUseIdent(t):
			p.next()
			path = append(path, strings.TrimPrefix(t, "r#"))
			if p.peek() == "::" {
				p.next()
				continue
			}
			entry := syntax.UseEntry{Path: path}
			if p.peek() == "as" {
				p.next()
				entry.Alias = strings.TrimPrefix(p.next(), "r#")
				if entry.Alias == "" {
					return fmt.Errorf("missing alias after 'as'")
				}
			}
			// `use a::{self}` imports `a` itself.
			if n := len(entry.Path); n > 1 && entry.Path[n-1] == "self" {
				entry.Path = entry.Path[:n-1]
			}
			*out = append(*out, entry)
			return nil
		default:
			return fmt.Errorf("unexpected %q in use tree", t)
		}
	}
}

func isUseIdent(t string) bool {
	if t == "" || t == "as" {
		return false
	}
	r := rune(t[0])
	return r == '_' || unicode.IsLetter(r)
}

func tokenizeUse(text string) []string {
	var toks []string
	for i := 0; i < len(text); {
		c := text[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == ':' && i+1 < len(text) && text[i+1] == ':':
			toks = append(toks, "::")
			i += 2
		case c == '{' || c == '}' || c == ',' || c == '*':
			toks = append(toks, string(c))
			i++
		case c == '/' && i+1 < len(text) && text[i+1] == '/':
			for i < len(text) && text[i] != '\n' {
				i++
			}
		default:
			j := i
			for j < len(text) && (text[j] == '_' || text[j] == '#' || isAlnum(text[j])) {
				j++
			}
			if j == i {
				j++
			}
			toks = append(toks, text[i:j])
			i = j
		}
	}
	return toks
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c >= 0x80
}
