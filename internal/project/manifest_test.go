package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ManifestName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFindsManifestUpward(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, `
[crate]
name = "example"

[[external]]
name = "dep"
path = "../dep/src"

[header]
config = "cbindgen.toml"
output = "target/example.h"

[languages.objc]
class_prefix = "DS"
framework_name = "Example"
header_name = "example"

[languages.java]
framework_name = "org.example"
`)
	nested := filepath.Join(root, "src", "nested")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	m, ok, err := Load(nested)
	require.NoError(t, err)
	require.True(t, ok)

	c := m.Config
	assert.Equal(t, "example", c.Crate.Name)
	assert.Equal(t, DefaultModName, c.Crate.ModName)
	assert.Equal(t, filepath.Join(root, "src"), c.Crate.Path)
	assert.Equal(t, filepath.Join(root, "src"), c.Output.Dir)
	assert.Equal(t, filepath.Join(root, "..", "dep", "src"), c.External[0].Path)
	assert.Equal(t, "cbindgen", c.Header.Command)
	assert.Equal(t, filepath.Join(root, "cbindgen.toml"), c.Header.Config)
	require.NotNil(t, c.Languages.ObjC)
	assert.Equal(t, "DS", c.Languages.ObjC.ClassPrefix)
	require.NotNil(t, c.Languages.Java)
	assert.Equal(t, "org.example", c.Languages.Java.FrameworkName)
}

func TestLoadNoManifest(t *testing.T) {
	_, ok, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLoadFileErrors(t *testing.T) {
	cases := map[string]string{
		"missing name":   "[crate]\npath = \"src\"\n",
		"bad mod name":   "[crate]\nname = \"x\"\nmod_name = \"1bad\"\n",
		"unknown key":    "[crate]\nname = \"x\"\ncolour = true\n",
		"duplicate ext":  "[crate]\nname = \"x\"\n[[external]]\nname = \"x\"\npath = \"p\"\n",
		"objc no header": "[crate]\nname = \"x\"\n[languages.objc]\nclass_prefix = \"DS\"\n",
		"broken toml":    "[crate\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeManifest(t, t.TempDir(), body)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestCrateIdent(t *testing.T) {
	assert.Equal(t, "dash_spv_masternode_processor", CrateIdent("dash-spv-masternode-processor"))
	assert.True(t, IsValidIdent("_x1"))
	assert.False(t, IsValidIdent("a-b"))
}
