package project

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
)

// DefaultModName is the emitted top-level module when mod_name is unset.
const DefaultModName = "fermented"

// Manifest is the decoded ferment.toml plus where it was found.
type Manifest struct {
	Path   string
	Root   string
	Config Config
}

// Config mirrors the ferment.toml schema.
type Config struct {
	Crate     CrateConfig      `toml:"crate"`
	External  []ExternalConfig `toml:"external"`
	Output    OutputConfig     `toml:"output"`
	Header    HeaderConfig     `toml:"header"`
	Languages LanguagesConfig  `toml:"languages"`
	Cache     CacheConfig      `toml:"cache"`
}

type CrateConfig struct {
	Name    string `toml:"name"`
	Path    string `toml:"path"`
	ModName string `toml:"mod_name"`
}

type ExternalConfig struct {
	Name string `toml:"name"`
	Path string `toml:"path"`
}

type OutputConfig struct {
	Dir string `toml:"dir"`
}

type HeaderConfig struct {
	Config  string `toml:"config"`
	Output  string `toml:"output"`
	Command string `toml:"command"`
}

type LanguagesConfig struct {
	ObjC *ObjCConfig `toml:"objc"`
	Java *JavaConfig `toml:"java"`
}

type ObjCConfig struct {
	ClassPrefix   string `toml:"class_prefix"`
	FrameworkName string `toml:"framework_name"`
	HeaderName    string `toml:"header_name"`
}

type JavaConfig struct {
	FrameworkName string `toml:"framework_name"`
}

type CacheConfig struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Load finds ferment.toml from startDir upward and decodes it.
func Load(startDir string) (*Manifest, bool, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return nil, ok, err
	}
	m, err := LoadFile(path)
	return m, true, err
}

// LoadFile decodes and validates one manifest. Relative paths are resolved
// against the manifest's directory.
func LoadFile(path string) (*Manifest, error) {
	var cfg Config
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if !meta.IsDefined("crate", "name") || strings.TrimSpace(cfg.Crate.Name) == "" {
		return nil, fmt.Errorf("%s: missing [crate].name", path)
	}
	root := filepath.Dir(path)
	m := &Manifest{Path: path, Root: root, Config: cfg}
	m.applyDefaults()
	if err := m.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.resolvePaths()
	return m, nil
}

func (m *Manifest) applyDefaults() {
	c := &m.Config
	if c.Crate.Path == "" {
		c.Crate.Path = "src"
	}
	if c.Crate.ModName == "" {
		c.Crate.ModName = DefaultModName
	}
	if c.Output.Dir == "" {
		c.Output.Dir = c.Crate.Path
	}
	if c.Header.Config != "" && c.Header.Command == "" {
		c.Header.Command = "cbindgen"
	}
}

func (m *Manifest) resolvePaths() {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(m.Root, filepath.FromSlash(p))
	}
	c := &m.Config
	c.Crate.Path = abs(c.Crate.Path)
	c.Output.Dir = abs(c.Output.Dir)
	c.Header.Config = abs(c.Header.Config)
	c.Header.Output = abs(c.Header.Output)
	c.Cache.Dir = abs(c.Cache.Dir)
	for i := range c.External {
		c.External[i].Path = abs(c.External[i].Path)
	}
}

// Validate checks identifiers and uniqueness.
func (c *Config) Validate() error {
	if !IsValidIdent(CrateIdent(c.Crate.Name)) {
		return fmt.Errorf("[crate].name %q is not a valid identifier", c.Crate.Name)
	}
	if !IsValidIdent(c.Crate.ModName) {
		return fmt.Errorf("[crate].mod_name %q is not a valid identifier", c.Crate.ModName)
	}
	seen := map[string]bool{CrateIdent(c.Crate.Name): true}
	for i, ext := range c.External {
		if !IsValidIdent(CrateIdent(ext.Name)) {
			return fmt.Errorf("[[external]] #%d: name %q is not a valid identifier", i+1, ext.Name)
		}
		if ext.Path == "" {
			return fmt.Errorf("[[external]] %s: missing path", ext.Name)
		}
		if seen[CrateIdent(ext.Name)] {
			return fmt.Errorf("[[external]] %s: duplicate crate name", ext.Name)
		}
		seen[CrateIdent(ext.Name)] = true
	}
	if o := c.Languages.ObjC; o != nil && o.HeaderName == "" {
		return fmt.Errorf("[languages.objc] missing header_name")
	}
	if j := c.Languages.Java; j != nil && j.FrameworkName == "" {
		return fmt.Errorf("[languages.java] missing framework_name")
	}
	return nil
}

// IsValidIdent reports whether name is an ASCII identifier usable as a
// crate or module name. Crate names with dashes are normalised by callers.
func IsValidIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if r > unicode.MaxASCII {
			return false
		}
		if i == 0 && r != '_' && !unicode.IsLetter(r) {
			return false
		}
		if i > 0 && r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// CrateIdent converts a package name such as `dash-spv` to its identifier form.
func CrateIdent(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}
