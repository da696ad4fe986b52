package typeref

import "testing"

func TestParseCanonicalForm(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"u32", "u32"},
		{"Vec < example :: LLMQSnapshot >", "Vec<example::LLMQSnapshot>"},
		{"&'a mut  [u8; 32]", "&mut [u8; 32]"},
		{"*const   std::os::raw::c_void", "*const std::os::raw::c_void"},
		{"HashMap<u32, Vec<Option<String>>>", "HashMap<u32, Vec<Option<String>>>"},
		{"(u8, String)", "(u8, String)"},
		{"(u8,)", "(u8,)"},
		{"(u8)", "u8"},
		{"()", "()"},
		{"Box<dyn Fn(u32, &str) -> bool + Send + 'static>", "Box<dyn Fn(u32, &str) -> bool + Send>"},
		{"extern \"C\" fn(a: u32) -> u8", "extern \"C\" fn(u32) -> u8"},
		{"unsafe extern fn()", "unsafe extern \"C\" fn()"},
		{"impl Iterator<Item = u8>", "impl Iterator<Item = u8>"},
		{"Cow<'a, str>", "Cow<str>"},
		{"::core::time::Duration", "::core::time::Duration"},
		{"[T; N * 2]", "[T; N*2]"},
		{"&dyn Provider", "&dyn Provider"},
		{"Vec::<u8>", "Vec<u8>"},
		{"r#type::Foo", "type::Foo"},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tc.in, err)
		}
		if got.String() != tc.want {
			t.Fatalf("Parse(%q) = %q, want %q", tc.in, got.String(), tc.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "Vec<", "[u8;]", "*u8", "dyn", "a::", "(u8"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) succeeded, want error", in)
		}
	}
}

func TestEqualIgnoresLifetimesAndSpacing(t *testing.T) {
	a := MustParse("&'static  Vec<Option<'x, u8>>")
	b := MustParse("&Vec<Option<u8>>")
	if !Equal(a, b) {
		t.Fatalf("expected %q == %q", a, b)
	}
	if Equal(MustParse("&u8"), MustParse("&mut u8")) {
		t.Fatalf("&u8 and &mut u8 must differ")
	}
}

func TestMangle(t *testing.T) {
	cases := map[string]string{
		"Vec<example::LLMQSnapshot>":                 "Vec_example_LLMQSnapshot",
		"std::collections::BTreeMap<u32, [u8; 32]>": "std_collections_BTreeMap_u32_Arr_u8_32",
		"&'a Option<String>":                         "Option_String",
		"(u32, String)":                              "Tuple_u32_String",
		"Result<Vec<u8>, crate::Error>":              "Result_Vec_u8_crate_Error",
		"Box<dyn Fn(u32) -> bool>":                   "Box_dyn_Fn_ARGS_u32_RTRN_bool",
	}
	for in, want := range cases {
		if got := Mangle(MustParse(in)); got != want {
			t.Fatalf("Mangle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMangleIsStable(t *testing.T) {
	a := Mangle(MustParse("HashMap<String, Vec<Option<u64>>>"))
	b := Mangle(MustParse("HashMap< String , Vec< Option<u64> > >"))
	if a != b {
		t.Fatalf("mangled names differ: %q vs %q", a, b)
	}
}

func TestSubstitute(t *testing.T) {
	src := MustParse("Result<Vec<T>, E>")
	got := Substitute(src, map[string]TypeRef{
		"T": MustParse("u8"),
		"E": MustParse("crate::Error"),
	})
	if want := "Result<Vec<u8>, crate::Error>"; got.String() != want {
		t.Fatalf("Substitute = %q, want %q", got, want)
	}
	if src.String() != "Result<Vec<T>, E>" {
		t.Fatalf("Substitute mutated its input: %q", src)
	}
}

func TestRewriteQualifiesPaths(t *testing.T) {
	src := MustParse("Option<Bar>")
	got := Rewrite(src, func(p TypeRef) TypeRef {
		if p.PathString() == "Bar" {
			return p.WithSegments([]string{"crate", "foo", "Bar"})
		}
		return p
	})
	if want := "Option<crate::foo::Bar>"; got.String() != want {
		t.Fatalf("Rewrite = %q, want %q", got, want)
	}
}

func TestPeel(t *testing.T) {
	inner, wrappers := MustParse("&mut *const u8").Peel()
	if inner.String() != "u8" {
		t.Fatalf("inner = %q", inner)
	}
	if len(wrappers) != 2 || wrappers[0] != WrapRefMut || wrappers[1] != WrapPtrConst {
		t.Fatalf("wrappers = %v", wrappers)
	}
}

func TestWalkVisitsNested(t *testing.T) {
	var seen []string
	Walk(MustParse("HashMap<K, Vec<V>>"), func(t TypeRef) bool {
		if t.Kind == KindPath {
			seen = append(seen, t.PathString())
		}
		return true
	})
	want := []string{"HashMap", "K", "Vec", "V"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}
