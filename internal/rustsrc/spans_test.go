package rustsrc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ferment/internal/rustsrc"
	"ferment/internal/source"
	"ferment/internal/testkit"
)

func TestItemSpansStayInsideTheirFile(t *testing.T) {
	dir := testkit.WriteCrate(t, map[string]string{
		"lib.rs": "pub mod a;\nmod b { pub struct Inner { pub x: u8 } }\n\npub struct S { pub a: u32 }\nimpl S { pub fn new() -> Self { S { a: 0 } } }\n",
		"a.rs":   "pub enum E { A(u8), B }\n",
	})
	fs := source.NewFileSet()
	r := rustsrc.NewReader(fs, nil, nil)
	defer r.Close()
	crate, err := r.ReadCrate(context.Background(), "example", dir, true)
	require.NoError(t, err)

	root := crate.Root
	require.NoError(t, testkit.CheckSpanInvariants(root, fs.Get(root.Span.File)))
	for _, it := range root.Items {
		if it.Module != nil && !it.Module.Inline {
			require.NoError(t, testkit.CheckSpanInvariants(it.Module, fs.Get(it.Module.Span.File)))
		}
	}
}
