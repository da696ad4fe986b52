// Package rustsrc is the source reader: it parses `.rs` files with
// tree-sitter and crawls a crate's module tree into a syntax.Crate.
//
// Only the declaration surface is kept. Function bodies, expressions and
// macro definitions are skipped; types are captured as text and left for
// typeref.Parse.
package rustsrc
