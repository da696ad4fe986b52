package resolve

var primitives = map[string]bool{
	"u8": true, "u16": true, "u32": true, "u64": true, "u128": true, "usize": true,
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true, "isize": true,
	"f32": true, "f64": true, "bool": true, "char": true,
}

// IsPrimitive reports whether name is a fixed-size scalar.
func IsPrimitive(name string) bool { return primitives[name] }

var rawTypes = map[string]string{
	"c_char":      "i8",
	"c_schar":     "i8",
	"c_uchar":     "u8",
	"c_short":     "i16",
	"c_ushort":    "u16",
	"c_int":       "i32",
	"c_uint":      "u32",
	"c_long":      "i64",
	"c_ulong":     "u64",
	"c_longlong":  "i64",
	"c_ulonglong": "u64",
	"c_float":     "f32",
	"c_double":    "f64",
	"c_void":      "c_void",
}

// RawCType maps `std::os::raw` and `std::ffi` scalars to their fixed-size
// equivalent.
func RawCType(names []string) (string, bool) {
	if len(names) == 0 {
		return "", false
	}
	last := names[len(names)-1]
	mapped, ok := rawTypes[last]
	if !ok {
		return "", false
	}
	switch {
	case len(names) == 1:
	case len(names) == 3 && names[0] == "std" && names[1] == "ffi":
	case len(names) == 4 && names[0] == "std" && names[1] == "os" && names[2] == "raw":
	default:
		return "", false
	}
	return mapped, true
}
