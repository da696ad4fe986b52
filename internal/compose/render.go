package compose

import "strings"

// fileHeader opens every generated module file.
func fileHeader(modName string) []string {
	return []string{
		"#![allow(non_snake_case, non_camel_case_types, non_upper_case_globals, unused_imports, unused_variables, clippy::all)]",
		"",
		"use crate::" + modName + "::support::{self, FFIConversion};",
	}
}

// Header returns the preamble of a generated module file.
func (f *Fermentate) Header() string {
	return strings.Join(fileHeader(f.ModName), "\n") + "\n"
}

// Render writes the mirror, its FFIConversion impl and its bindings.
func (i *Info) Render() string {
	var c code
	c.block(i.Decl)
	if i.Target != "" && len(i.From) > 0 {
		self := i.ImplFor
		if self == "" {
			self = i.Name
		}
		c.open("impl FFIConversion<%s> for %s {", i.Target, self)
		c.open("unsafe fn ffi_from(ffi: *mut Self) -> %s {", i.Target)
		c.block(i.From)
		c.close("}")
		c.open("unsafe fn ffi_to(obj: %s) -> *mut Self {", i.Target)
		c.block(i.To)
		c.close("}")
		c.open("unsafe fn destroy(ffi: *mut Self) {")
		c.block(i.Destroy)
		c.close("}")
		c.close("}")
	}
	for _, b := range i.Bindings {
		b.render(&c)
	}
	return c.String()
}

// Render writes the extern "C" function.
func (b Binding) Render() string {
	var c code
	b.render(&c)
	return c.String()
}

func (b Binding) render(c *code) {
	c.line("#[no_mangle]")
	c.open("%s {", b.signature())
	c.block(b.Body)
	c.close("}")
}
