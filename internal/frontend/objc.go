package frontend

import (
	"fmt"
	"strings"

	"ferment/internal/compose"
	"ferment/internal/writer"
)

// ObjC renders Objective-C classes wrapping the transparent mirrors.
type ObjC struct {
	ClassPrefix   string
	FrameworkName string
	HeaderName    string
	// CHeader is the generated C header the classes import.
	CHeader string
}

func (o *ObjC) Lang() string { return "objc" }

func (o *ObjC) Render(f *compose.Fermentate) ([]writer.File, error) {
	if o.HeaderName == "" {
		return nil, fmt.Errorf("objc: header name is empty")
	}
	rs := records(f, o.ClassPrefix)
	known := byMirror(rs)
	cheader := o.CHeader
	if cheader == "" {
		cheader = f.Crate + ".h"
	}

	var h, m strings.Builder
	h.WriteString(writer.Banner + "\n")
	h.WriteString("#import <Foundation/Foundation.h>\n")
	fmt.Fprintf(&h, "#import \"%s\"\n\n", cheader)
	h.WriteString("NS_ASSUME_NONNULL_BEGIN\n\n")
	for _, r := range rs {
		fmt.Fprintf(&h, "@class %s;\n", r.class)
	}
	if len(rs) > 0 {
		h.WriteString("\n")
	}

	m.WriteString(writer.Banner + "\n")
	fmt.Fprintf(&m, "#import \"%s.h\"\n\n", o.HeaderName)

	for _, r := range rs {
		props := make([]objcProp, len(r.fields))
		for i, fd := range r.fields {
			props[i] = o.prop(fd, known)
		}
		o.declare(&h, r, props)
		o.implement(&m, r, props)
	}
	h.WriteString("NS_ASSUME_NONNULL_END\n")

	return []writer.File{
		{Path: o.HeaderName + ".h", Content: h.String()},
		{Path: o.HeaderName + ".m", Content: m.String()},
	}, nil
}

// objcProp is one property and its conversions. from reads $f out of the C
// mirror; to turns self.$p back into the C value.
type objcProp struct {
	field
	name  string
	decl  string
	attrs string
	from  string
	to    string
}

func (o *ObjC) prop(fd field, known map[string]record) objcProp {
	p := objcProp{field: fd, name: camel(fd.name)}
	handle := func() {
		p.decl, p.attrs = "void *", "nonatomic, assign, nullable"
		p.from, p.to = "(void *)$f", "$p"
	}
	switch fd.conv {
	case compose.ConvCopy:
		switch c, ok := cScalars[fd.ctype]; {
		case fd.ctype == "bool":
			p.decl, p.attrs = "BOOL", "nonatomic, assign"
			p.from, p.to = "$f", "(bool)$p"
		case ok:
			p.decl, p.attrs = c, "nonatomic, assign"
			p.from, p.to = "$f", "$p"
		case strings.HasPrefix(fd.ctype, "["):
			p.decl, p.attrs = "NSData *", "nonatomic, copy"
			p.from, p.to = "[NSData dataWithBytes:$f length:sizeof($f)]", "(void *)$p.bytes"
		default:
			handle()
		}
	case compose.ConvString:
		p.decl, p.attrs = "NSString *", "nonatomic, copy"
		p.from = "[[NSString alloc] initWithBytes:$f.data length:$f.len encoding:NSUTF8StringEncoding]"
		p.to = "ferment_string_new($p.UTF8String, strlen($p.UTF8String))"
	case compose.ConvDuration:
		p.decl, p.attrs = "NSTimeInterval", "nonatomic, assign"
		p.from = "((NSTimeInterval)$f.secs + (NSTimeInterval)$f.nanos / 1e9)"
		p.to = "(Duration){ .secs = (uint64_t)$p, .nanos = (uint32_t)(($p - floor($p)) * 1e9) }"
	case compose.ConvMirror:
		target, _ := mirrorTarget(fd.ctype)
		if r, ok := known[target]; ok {
			p.decl, p.attrs = r.class+" *", "nonatomic, strong, nullable"
			p.from, p.to = "["+r.class+" ffi_from:$f]", "[$p ffi_to]"
			break
		}
		handle()
	default:
		handle()
	}
	return p
}

func (p objcProp) read(src string) string { return strings.ReplaceAll(p.from, "$f", src) }

func (p objcProp) write() string { return strings.ReplaceAll(p.to, "$p", "self."+p.name) }

func (o *ObjC) declare(h *strings.Builder, r record, props []objcProp) {
	mirror := r.info.Name
	if r.info.Strategy == compose.StrategyEnum {
		fmt.Fprintf(h, "typedef NS_ENUM(uint32_t, %sTag) {\n", r.class)
		for _, t := range r.info.Tags {
			fmt.Fprintf(h, "    %sTag%s = %d,\n", r.class, pascal(t.Name), t.Value)
		}
		h.WriteString("};\n\n")
	}
	fmt.Fprintf(h, "@interface %s : NSObject\n", r.class)
	if r.info.Strategy == compose.StrategyEnum {
		fmt.Fprintf(h, "@property (nonatomic, assign) %sTag tag;\n", r.class)
	}
	for _, p := range props {
		sep := " "
		if strings.HasSuffix(p.decl, "*") {
			sep = ""
		}
		fmt.Fprintf(h, "@property (%s) %s%s%s;\n", p.attrs, p.decl, sep, p.name)
	}
	fmt.Fprintf(h, "+ (nullable instancetype)ffi_from:(%s *)ffi;\n", mirror)
	fmt.Fprintf(h, "- (%s *)ffi_to;\n", mirror)
	fmt.Fprintf(h, "+ (void)ffi_destroy:(%s *)ffi;\n", mirror)
	h.WriteString("@end\n\n")
}

func (o *ObjC) implement(m *strings.Builder, r record, props []objcProp) {
	mirror := r.info.Name
	enum := r.info.Strategy == compose.StrategyEnum
	fmt.Fprintf(m, "@implementation %s\n\n", r.class)

	fmt.Fprintf(m, "+ (nullable instancetype)ffi_from:(%s *)ffi {\n", mirror)
	m.WriteString("    if (ffi == NULL) {\n        return nil;\n    }\n")
	fmt.Fprintf(m, "    %s *obj = [[self alloc] init];\n", r.class)
	if enum {
		m.WriteString("    obj.tag = ffi->tag;\n")
		o.byVariant(m, r, props, "ffi->tag", func(p objcProp) string {
			src := "ffi->payload." + p.variant + "." + strings.TrimPrefix(p.slot, p.variant+".")
			return "obj." + p.name + " = " + p.read(src) + ";"
		})
	} else {
		for _, p := range props {
			fmt.Fprintf(m, "    obj.%s = %s;\n", p.name, p.read("ffi->"+p.slot))
		}
	}
	m.WriteString("    return obj;\n}\n\n")

	fmt.Fprintf(m, "- (%s *)ffi_to {\n", mirror)
	if enum {
		if len(props) == 0 {
			fmt.Fprintf(m, "    return %s_ctor(self.tag);\n", mirror)
		} else {
			fmt.Fprintf(m, "    %s_Payload payload;\n", mirror)
			m.WriteString("    memset(&payload, 0, sizeof(payload));\n")
			o.byVariant(m, r, props, "self.tag", func(p objcProp) string {
				return "payload." + p.variant + "." + strings.TrimPrefix(p.slot, p.variant+".") + " = " + p.write() + ";"
			})
			fmt.Fprintf(m, "    return %s_ctor(self.tag, payload);\n", mirror)
		}
	} else {
		args := make([]string, len(props))
		for i, p := range props {
			args[i] = p.write()
		}
		fmt.Fprintf(m, "    return %s_ctor(%s);\n", mirror, strings.Join(args, ", "))
	}
	m.WriteString("}\n\n")

	fmt.Fprintf(m, "+ (void)ffi_destroy:(%s *)ffi {\n", mirror)
	fmt.Fprintf(m, "    %s_destroy(ffi);\n", mirror)
	m.WriteString("}\n\n@end\n\n")
}

// byVariant writes a switch over the tag with one statement per payload
// slot of each variant.
func (o *ObjC) byVariant(m *strings.Builder, r record, props []objcProp, tag string, stmt func(objcProp) string) {
	if len(props) == 0 {
		return
	}
	fmt.Fprintf(m, "    switch (%s) {\n", tag)
	for _, t := range r.info.Tags {
		var body []string
		for _, p := range props {
			if p.variant == t.Name {
				body = append(body, stmt(p))
			}
		}
		if len(body) == 0 {
			continue
		}
		fmt.Fprintf(m, "        case %d:\n", t.Value)
		for _, s := range body {
			fmt.Fprintf(m, "            %s\n", s)
		}
		m.WriteString("            break;\n")
	}
	m.WriteString("        default:\n            break;\n    }\n")
}
