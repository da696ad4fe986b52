// Package driver is the generator's entry surface. A Builder collects the
// configuration and Generate runs the pipeline: parse, scope, resolve,
// classify, compose, write, then the header generator and front-ends.
package driver

import (
	"path/filepath"

	"ferment/internal/buildpipeline"
	"ferment/internal/frontend"
	"ferment/internal/header"
	"ferment/internal/project"
)

// External is an extra package scanned for types alongside the primary one.
type External struct {
	Name string
	Dir  string
}

// Options is the complete pipeline configuration.
type Options struct {
	// Crate is the primary package name; CrateDir holds its lib.rs.
	Crate    string
	CrateDir string
	// ModName is the emitted top-level module, "fermented" when empty.
	ModName  string
	External []External
	// OutDir receives <ModName>/ and one directory per front-end.
	OutDir string
	// Header runs the C header generator after writing; nil skips it.
	Header *header.Config
	// Runner executes the header generator; header.ExecRunner when nil.
	Runner    header.Runner
	Frontends []frontend.Frontend
	// CacheDir enables the parse cache when set.
	CacheDir       string
	MaxDiagnostics int
	// Jobs bounds parallel parsing and composition; zero means GOMAXPROCS.
	Jobs     int
	Progress buildpipeline.ProgressSink
}

func (o *Options) modName() string {
	if o.ModName == "" {
		return project.DefaultModName
	}
	return o.ModName
}

// Units lists the packages in parse order, primary first.
func (o *Options) Units() []string {
	out := []string{o.Crate}
	for _, e := range o.External {
		out = append(out, e.Name)
	}
	return out
}

// Builder assembles Options step by step.
type Builder struct {
	opts Options
}

// NewBuilder starts a configuration for the crate rooted at dir. Output goes
// next to the sources unless WithOutDir says otherwise.
func NewBuilder(crate, dir string) *Builder {
	return &Builder{opts: Options{Crate: project.CrateIdent(crate), CrateDir: dir, OutDir: dir}}
}

// FromManifest configures a builder from a decoded ferment.toml.
func FromManifest(m *project.Manifest) *Builder {
	c := m.Config
	b := NewBuilder(c.Crate.Name, c.Crate.Path).
		WithModName(c.Crate.ModName).
		WithOutDir(c.Output.Dir)
	for _, e := range c.External {
		b.WithExternal(e.Name, e.Path)
	}
	if c.Header.Config != "" {
		b.WithHeader(header.Config{
			Command:    c.Header.Command,
			ConfigPath: c.Header.Config,
			Output:     c.Header.Output,
			CrateDir:   m.Root,
			Crate:      c.Crate.Name,
		})
	}
	cheader := ""
	if c.Header.Output != "" {
		cheader = filepath.Base(c.Header.Output)
	}
	for _, fe := range frontend.FromConfig(c.Languages, cheader) {
		b.WithLanguage(fe)
	}
	if c.Cache.Enabled {
		dir := c.Cache.Dir
		if dir == "" {
			dir = filepath.Join(m.Root, "target", "ferment-cache")
		}
		b.WithCache(dir)
	}
	return b
}

func (b *Builder) WithModName(name string) *Builder {
	b.opts.ModName = name
	return b
}

func (b *Builder) WithExternal(name, dir string) *Builder {
	b.opts.External = append(b.opts.External, External{Name: project.CrateIdent(name), Dir: dir})
	return b
}

func (b *Builder) WithOutDir(dir string) *Builder {
	b.opts.OutDir = dir
	return b
}

func (b *Builder) WithHeader(cfg header.Config) *Builder {
	b.opts.Header = &cfg
	return b
}

func (b *Builder) WithRunner(run header.Runner) *Builder {
	b.opts.Runner = run
	return b
}

func (b *Builder) WithLanguage(fe frontend.Frontend) *Builder {
	b.opts.Frontends = append(b.opts.Frontends, fe)
	return b
}

func (b *Builder) WithCache(dir string) *Builder {
	b.opts.CacheDir = dir
	return b
}

func (b *Builder) WithMaxDiagnostics(n int) *Builder {
	b.opts.MaxDiagnostics = n
	return b
}

func (b *Builder) WithJobs(n int) *Builder {
	b.opts.Jobs = n
	return b
}

func (b *Builder) WithProgress(sink buildpipeline.ProgressSink) *Builder {
	b.opts.Progress = sink
	return b
}

// Options returns a copy of the collected configuration.
func (b *Builder) Options() Options {
	out := b.opts
	out.External = append([]External(nil), b.opts.External...)
	out.Frontends = append([]frontend.Frontend(nil), b.opts.Frontends...)
	return out
}
