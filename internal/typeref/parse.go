package typeref

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseError reports a malformed type expression.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid type %q at offset %d: %s", e.Input, e.Offset, e.Msg)
}

// IsRelaxedBound reports whether a bound opts out of a default trait,
// as `?Sized` does. Such bounds add no requirement.
func IsRelaxedBound(src string) bool {
	return strings.HasPrefix(strings.TrimSpace(src), "?")
}

// Parse reads a type expression as it appears in source.
func Parse(src string) (TypeRef, error) {
	p := &parser{src: src}
	p.toks = lexType(src)
	t, err := p.parseType()
	if err != nil {
		return TypeRef{}, err
	}
	if !p.at(tokEOF) {
		return TypeRef{}, p.errorf("unexpected %q", p.peek().text)
	}
	return t, nil
}

// MustParse is Parse for literals in tests and built-in tables.
func MustParse(src string) TypeRef {
	t, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return t
}

type tokKind uint8

const (
	tokEOF tokKind = iota
	tokIdent
	tokLifetime
	tokString
	tokNumber
	tokPunct
)

type token struct {
	kind tokKind
	text string
	off  int
}

func lexType(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		r, w := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += w
		case r == '\'':
			j := i + 1
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokLifetime, text: src[i:j], off: i})
			i = j
		case r == '"':
			j := i + 1
			for j < len(src) && src[j] != '"' {
				j++
			}
			end := min(j+1, len(src))
			toks = append(toks, token{kind: tokString, text: strings.Trim(src[i:end], `"`), off: i})
			i = end
		case r == '_' || unicode.IsLetter(r):
			j := i
			for j < len(src) {
				rr, ww := utf8.DecodeRuneInString(src[j:])
				if rr != '_' && !unicode.IsLetter(rr) && !unicode.IsDigit(rr) {
					break
				}
				j += ww
			}
			text := src[i:j]
			// raw identifiers: r#type
			if text == "r" && j < len(src) && src[j] == '#' {
				k := j + 1
				for k < len(src) && isIdentByte(src[k]) {
					k++
				}
				text = src[j+1 : k]
				j = k
			}
			toks = append(toks, token{kind: tokIdent, text: text, off: i})
			i = j
		case unicode.IsDigit(r):
			j := i
			for j < len(src) && isIdentByte(src[j]) {
				j++
			}
			toks = append(toks, token{kind: tokNumber, text: src[i:j], off: i})
			i = j
		default:
			if i+1 < len(src) {
				two := src[i : i+2]
				if two == "::" || two == "->" {
					toks = append(toks, token{kind: tokPunct, text: two, off: i})
					i += 2
					continue
				}
			}
			toks = append(toks, token{kind: tokPunct, text: string(r), off: i})
			i += w
		}
	}
	toks = append(toks, token{kind: tokEOF, off: len(src)})
	return toks
}

func isIdentByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) at(k tokKind) bool { return p.toks[p.pos].kind == k }

func (p *parser) atPunct(s string) bool {
	t := p.toks[p.pos]
	return t.kind == tokPunct && t.text == s
}

func (p *parser) atIdent(s string) bool {
	t := p.toks[p.pos]
	return t.kind == tokIdent && t.text == s
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) eatPunct(s string) bool {
	if p.atPunct(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) eatIdent(s string) bool {
	if p.atIdent(s) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectPunct(s string) error {
	if !p.eatPunct(s) {
		return p.errorf("expected %q, found %q", s, p.peek().text)
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Input: p.src, Offset: p.peek().off, Msg: fmt.Sprintf(format, args...)}
}

// closeAngle consumes one `>` even when the lexer produced `>>` or `>=`.
func (p *parser) closeAngle() error {
	return p.expectPunct(">")
}

func (p *parser) parseType() (TypeRef, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokPunct && tok.text == "&":
		p.next()
		ref := TypeRef{Kind: KindReference}
		if p.at(tokLifetime) {
			ref.Lifetime = p.next().text
		}
		if p.eatIdent("mut") {
			ref.Mutable = true
		}
		elem, err := p.parseNoBounds()
		if err != nil {
			return TypeRef{}, err
		}
		ref.Elem = &elem
		return ref, nil
	case tok.kind == tokPunct && tok.text == "*":
		p.next()
		ptr := TypeRef{Kind: KindPointer}
		switch {
		case p.eatIdent("mut"):
			ptr.Mutable = true
		case p.eatIdent("const"):
		default:
			return TypeRef{}, p.errorf("expected const or mut after *")
		}
		elem, err := p.parseNoBounds()
		if err != nil {
			return TypeRef{}, err
		}
		ptr.Elem = &elem
		return ptr, nil
	case tok.kind == tokPunct && tok.text == "[":
		p.next()
		elem, err := p.parseType()
		if err != nil {
			return TypeRef{}, err
		}
		if p.eatPunct("]") {
			return TypeRef{Kind: KindSlice, Elem: &elem}, nil
		}
		if err := p.expectPunct(";"); err != nil {
			return TypeRef{}, err
		}
		n, err := p.rawUntilBracket()
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindArray, Elem: &elem, Len: n}, nil
	case tok.kind == tokPunct && tok.text == "(":
		p.next()
		if p.eatPunct(")") {
			return TypeRef{Kind: KindUnit}, nil
		}
		first, err := p.parseType()
		if err != nil {
			return TypeRef{}, err
		}
		if p.eatPunct(")") {
			// parenthesised type, not a tuple
			return first, nil
		}
		elems := []TypeRef{first}
		for p.eatPunct(",") {
			if p.atPunct(")") {
				break
			}
			t, err := p.parseType()
			if err != nil {
				return TypeRef{}, err
			}
			elems = append(elems, t)
		}
		if err := p.expectPunct(")"); err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: KindTuple, Elems: elems}, nil
	case tok.kind == tokPunct && tok.text == "!":
		p.next()
		return TypeRef{Kind: KindNever}, nil
	case tok.kind == tokIdent && tok.text == "_":
		p.next()
		return TypeRef{Kind: KindInfer}, nil
	case tok.kind == tokIdent && (tok.text == "dyn" || tok.text == "impl"):
		p.next()
		kind := KindTraitObject
		if tok.text == "impl" {
			kind = KindImplTrait
		}
		bounds, err := p.parseBounds()
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: kind, Bounds: bounds}, nil
	case tok.kind == tokIdent && (tok.text == "fn" || tok.text == "unsafe" || tok.text == "extern" || tok.text == "for"):
		return p.parseFnPointer()
	case tok.kind == tokIdent || tok.kind == tokPunct && tok.text == "::":
		return p.parsePath()
	}
	return TypeRef{}, p.errorf("unexpected %q", tok.text)
}

// parseNoBounds parses the operand of & and *; `&dyn A + B` is not valid
// without parentheses so the bound list stops at the first `+`.
func (p *parser) parseNoBounds() (TypeRef, error) {
	if p.atIdent("dyn") || p.atIdent("impl") {
		kind := KindTraitObject
		if p.next().text == "impl" {
			kind = KindImplTrait
		}
		b, err := p.parseBound()
		if err != nil {
			return TypeRef{}, err
		}
		return TypeRef{Kind: kind, Bounds: []TypeRef{b}}, nil
	}
	return p.parseType()
}

func (p *parser) rawUntilBracket() (string, error) {
	var b strings.Builder
	depth := 0
	for {
		t := p.peek()
		switch {
		case t.kind == tokEOF:
			return "", p.errorf("unterminated array length")
		case t.kind == tokPunct && t.text == "]" && depth == 0:
			p.next()
			if b.Len() == 0 {
				return "", p.errorf("empty array length")
			}
			return b.String(), nil
		case t.kind == tokPunct && (t.text == "[" || t.text == "("):
			depth++
		case t.kind == tokPunct && (t.text == "]" || t.text == ")"):
			depth--
		}
		b.WriteString(t.text)
		p.next()
	}
}

func (p *parser) parseBounds() ([]TypeRef, error) {
	var bounds []TypeRef
	for {
		if p.at(tokLifetime) {
			p.next()
		} else if p.eatPunct("?") {
			// ?Sized carries no information for the boundary
			if _, err := p.parsePath(); err != nil {
				return nil, err
			}
		} else {
			b, err := p.parseBound()
			if err != nil {
				return nil, err
			}
			bounds = append(bounds, b)
		}
		if !p.eatPunct("+") {
			break
		}
	}
	if len(bounds) == 0 {
		return nil, p.errorf("expected trait bound")
	}
	return bounds, nil
}

func (p *parser) parseBound() (TypeRef, error) {
	if p.eatPunct("(") {
		b, err := p.parseBound()
		if err != nil {
			return TypeRef{}, err
		}
		return b, p.expectPunct(")")
	}
	p.skipHigherRanked()
	return p.parsePath()
}

// skipHigherRanked drops `for<'a>` binders.
func (p *parser) skipHigherRanked() {
	if !p.atIdent("for") {
		return
	}
	p.next()
	if !p.eatPunct("<") {
		return
	}
	for !p.at(tokEOF) && !p.eatPunct(">") {
		p.next()
	}
}

func (p *parser) parseFnPointer() (TypeRef, error) {
	p.skipHigherRanked()
	fn := TypeRef{Kind: KindFn}
	if p.eatIdent("unsafe") {
		fn.Unsafe = true
	}
	if p.eatIdent("extern") {
		fn.ABI = "C"
		if p.at(tokString) {
			fn.ABI = p.next().text
		}
	}
	if !p.eatIdent("fn") {
		return TypeRef{}, p.errorf("expected fn")
	}
	params, err := p.parseFnParams()
	if err != nil {
		return TypeRef{}, err
	}
	fn.Elems = params
	if p.eatPunct("->") {
		ret, err := p.parseType()
		if err != nil {
			return TypeRef{}, err
		}
		fn.Ret = &ret
	}
	return fn, nil
}

// parseFnParams reads `(a: A, B, ...)`; parameter names are discarded.
func (p *parser) parseFnParams() ([]TypeRef, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var params []TypeRef
	for !p.atPunct(")") {
		if p.at(tokIdent) && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == ":" {
			p.pos += 2
		}
		t, err := p.parseType()
		if err != nil {
			return nil, err
		}
		params = append(params, t)
		if !p.eatPunct(",") {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *parser) parsePath() (TypeRef, error) {
	t := TypeRef{Kind: KindPath}
	if p.eatPunct("::") {
		t.Global = true
	}
	for {
		if !p.at(tokIdent) {
			return TypeRef{}, p.errorf("expected identifier, found %q", p.peek().text)
		}
		seg := Segment{Name: p.next().text}
		// turbofish form Vec::<T>
		if p.atPunct("::") && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "<" {
			p.next()
		}
		switch {
		case p.atPunct("<"):
			if err := p.parseAngleArgs(&seg); err != nil {
				return TypeRef{}, err
			}
		case p.atPunct("(") && isFnTrait(seg.Name):
			inputs, err := p.parseFnParams()
			if err != nil {
				return TypeRef{}, err
			}
			seg.Paren = true
			seg.Inputs = inputs
			if p.eatPunct("->") {
				out, err := p.parseType()
				if err != nil {
					return TypeRef{}, err
				}
				seg.Output = &out
			}
		}
		t.Segments = append(t.Segments, seg)
		if !p.eatPunct("::") {
			return t, nil
		}
	}
}

func isFnTrait(name string) bool {
	return name == "Fn" || name == "FnMut" || name == "FnOnce"
}

func (p *parser) parseAngleArgs(seg *Segment) error {
	if err := p.expectPunct("<"); err != nil {
		return err
	}
	for !p.atPunct(">") {
		switch {
		case p.at(tokLifetime):
			seg.Lifetimes = append(seg.Lifetimes, p.next().text)
		case p.at(tokIdent) && p.toks[p.pos+1].kind == tokPunct && p.toks[p.pos+1].text == "=":
			name := p.next().text
			p.next()
			ty, err := p.parseType()
			if err != nil {
				return err
			}
			seg.Bindings = append(seg.Bindings, Binding{Name: name, Type: ty})
		case p.at(tokNumber):
			// const generic argument
			seg.Args = append(seg.Args, Path(p.next().text))
		default:
			ty, err := p.parseType()
			if err != nil {
				return err
			}
			seg.Args = append(seg.Args, ty)
		}
		if !p.eatPunct(",") {
			break
		}
	}
	return p.closeAngle()
}
