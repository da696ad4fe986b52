package compose

import (
	"fmt"
	"strconv"
	"strings"
)

const indentUnit = "    "

// code accumulates indented Rust lines.
type code struct {
	lines []string
	depth int
}

func (c *code) line(format string, args ...any) {
	text := format
	if len(args) > 0 {
		text = fmt.Sprintf(format, args...)
	}
	c.raw(text)
}

// raw appends text verbatim at the current depth.
func (c *code) raw(text string) {
	if text == "" {
		c.lines = append(c.lines, "")
		return
	}
	c.lines = append(c.lines, strings.Repeat(indentUnit, c.depth)+text)
}

func (c *code) open(format string, args ...any) {
	c.line(format, args...)
	c.depth++
}

func (c *code) close(text string) {
	if c.depth > 0 {
		c.depth--
	}
	c.raw(text)
}

// block appends pre-rendered lines at the current depth.
func (c *code) block(lines []string) {
	for _, l := range lines {
		c.raw(l)
	}
}

func (c *code) String() string {
	if len(c.lines) == 0 {
		return ""
	}
	return strings.Join(c.lines, "\n") + "\n"
}

// fill substitutes the value placeholder of a conversion template.
func fill(tmpl, v string) string {
	return strings.ReplaceAll(tmpl, "$v", v)
}

func itoa(i int) string { return strconv.Itoa(i) }
