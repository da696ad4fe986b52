// Package compose turns the sealed global context into the fermentate: one
// ComposerInfo per reachable item and per distinct generic instantiation,
// each holding a repr(C) mirror, its conversions both ways, its destructor
// and the extern "C" bindings that mention it. Output is Rust source text.
//
// Every mirror is named by mangling its canonical type. Names are written as
// symbolic references while composing and linked once all mirrors are known,
// so mangling collisions can be resolved without recomposing.
package compose
