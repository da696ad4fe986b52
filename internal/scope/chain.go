// Package scope builds the scope chain tree of each crate: one node per
// module holding its declared items, child modules and import environment.
package scope

import (
	"slices"
	"strings"
)

// Chain is a qualified path from a crate root, e.g. `example::model::Item`.
// The first segment is always the crate name.
type Chain []string

// ParseChain splits `a::b::c`.
func ParseChain(s string) Chain {
	if s == "" {
		return nil
	}
	return Chain(strings.Split(s, "::"))
}

func (c Chain) String() string { return strings.Join(c, "::") }

// Crate returns the first segment.
func (c Chain) Crate() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Last returns the final segment.
func (c Chain) Last() string {
	if len(c) == 0 {
		return ""
	}
	return c[len(c)-1]
}

// Parent drops the final segment. The parent of a root is nil.
func (c Chain) Parent() Chain {
	if len(c) <= 1 {
		return nil
	}
	return slices.Clone(c[:len(c)-1])
}

// Child appends name without aliasing c's backing array.
func (c Chain) Child(name string) Chain {
	out := make(Chain, 0, len(c)+1)
	out = append(out, c...)
	return append(out, name)
}

func (c Chain) Equal(other Chain) bool { return slices.Equal(c, other) }

// Less orders chains shortest first, then lexicographically by rendered
// path.
func (c Chain) Less(other Chain) bool {
	if len(c) != len(other) {
		return len(c) < len(other)
	}
	return c.String() < other.String()
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) c.
func (c Chain) HasPrefix(prefix Chain) bool {
	return len(prefix) <= len(c) && slices.Equal(c[:len(prefix)], prefix)
}
