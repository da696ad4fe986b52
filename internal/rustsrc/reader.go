package rustsrc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"

	"ferment/internal/cache"
	"ferment/internal/diag"
	"ferment/internal/ferr"
	"ferment/internal/source"
	"ferment/internal/syntax"
	"ferment/internal/trace"
)

// Reader parses files of one crate. It owns a tree-sitter parser and is not
// safe for concurrent use; create one per goroutine.
type Reader struct {
	fs       *source.FileSet
	cache    *cache.Disk
	reporter diag.Reporter
	parser   *sitter.Parser
	skip     string

	hits, misses int
}

// NewReader returns a reader loading files into fs. cache may be nil.
func NewReader(fs *source.FileSet, c *cache.Disk, reporter diag.Reporter) *Reader {
	p := sitter.NewParser()
	p.SetLanguage(rust.GetLanguage())
	if reporter == nil {
		reporter = diag.NopReporter{}
	}
	return &Reader{fs: fs, cache: c, reporter: reporter, parser: p}
}

// Close releases the tree-sitter parser.
func (r *Reader) Close() {
	if r.parser != nil {
		r.parser.Close()
		r.parser = nil
	}
}

// SkipModule makes ReadCrate drop the root declaration `mod name;` of a
// primary crate, along with any file behind it. Generated output is declared
// there and is not input.
func (r *Reader) SkipModule(name string) { r.skip = name }

// CacheStats reports cache hits and misses since the reader was created.
func (r *Reader) CacheStats() (hits, misses int) {
	return r.hits, r.misses
}

// ParseFile parses a file already present in the file set. Syntax errors are
// reported and yield ok=false.
func (r *Reader) ParseFile(ctx context.Context, id source.FileID) (attrs []syntax.Attr, items []*syntax.Item, ok bool, err error) {
	f := r.fs.Get(id)
	if f == nil {
		return nil, nil, false, fmt.Errorf("unknown file id %d", id)
	}
	key := cache.Key(f.Hash)
	if entry, hit, cerr := r.cache.Get(key); cerr != nil {
		diag.ReportWarning(r.reporter, diag.IOCacheCorrupt, source.Span{File: id}, "ignoring unreadable cache entry: "+cerr.Error()).Emit()
	} else if hit {
		r.hits++
		rebaseAttrs(entry.Attrs, id)
		rebaseItems(entry.Items, id)
		return entry.Attrs, entry.Items, true, nil
	}
	r.misses++

	tree, err := r.parser.ParseCtx(ctx, nil, f.Content)
	if err != nil {
		return nil, nil, false, err
	}
	defer tree.Close()
	root := tree.RootNode()

	if bad := firstError(root); bad != nil {
		sp := source.Span{File: id, Start: bad.StartByte(), End: bad.EndByte()}
		if sp.Empty() && sp.End < uint32(len(f.Content)) {
			sp.End++
		}
		diag.ReportError(r.reporter, diag.SynParseError, sp, "syntax error near `"+snippet(bad.Content(f.Content))+"`").Emit()
		return nil, nil, false, nil
	}

	conv := &converter{src: f.Content, file: id, reporter: r.reporter}
	attrs, items = conv.items(root)
	if perr := r.cache.Put(key, &cache.Entry{Path: f.Path, Hash: f.Hash, Attrs: attrs, Items: items}); perr != nil {
		trace.Point(ctx, trace.ScopeItem, "cache-put-failed", perr.Error())
	}
	return attrs, items, true, nil
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return s
}

// ReadCrate loads a crate rooted at dir (lib.rs, then main.rs) or at a
// single file. Missing root files are IO errors; syntax errors are reported
// and the crate is still returned with what could be read.
func (r *Reader) ReadCrate(ctx context.Context, name, dir string, primary bool) (*syntax.Crate, error) {
	ctx, sp := trace.Start(ctx, trace.ScopeCrate, "read "+name)
	defer sp.End("")

	rootFile, err := crateRoot(dir)
	if err != nil {
		return nil, ferr.Wrapf(ferr.KindIO, err, "crate %s", name)
	}
	id, err := r.fs.Load(rootFile)
	if err != nil {
		return nil, ferr.Wrapf(ferr.KindIO, err, "crate %s", name)
	}
	attrs, items, _, err := r.ParseFile(ctx, id)
	if err != nil {
		return nil, err
	}
	root := &syntax.Module{
		Name:  name,
		File:  rootFile,
		Attrs: attrs,
		Items: items,
		Span:  source.Span{File: id, End: uint32(len(r.fs.Get(id).Content))},
	}
	if primary && r.skip != "" {
		root.Items = slices.DeleteFunc(root.Items, func(it *syntax.Item) bool {
			return it.Kind == syntax.ItemModule && it.Name == r.skip
		})
	}
	if err := r.loadChildren(ctx, root, filepath.Dir(rootFile), filepath.Dir(rootFile)); err != nil {
		return nil, err
	}
	return &syntax.Crate{Name: name, Primary: primary, Root: root}, nil
}

func crateRoot(dir string) (string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return dir, nil
	}
	for _, candidate := range []string{"lib.rs", "main.rs"} {
		p := filepath.Join(dir, candidate)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: no lib.rs or main.rs", dir)
}

// loadChildren resolves `mod x;` declarations of m. childDir is where
// children of m live; fileDir is the directory of the file m was read from.
func (r *Reader) loadChildren(ctx context.Context, m *syntax.Module, childDir, fileDir string) error {
	for _, it := range m.Items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if it.Kind != syntax.ItemModule {
			continue
		}
		if it.Module != nil {
			// inline body; its own children live one level deeper
			if err := r.loadChildren(ctx, it.Module, filepath.Join(childDir, it.Name), fileDir); err != nil {
				return err
			}
			continue
		}
		path, ok := r.moduleFile(it, childDir, fileDir)
		if !ok {
			diag.ReportError(r.reporter, diag.ResMissingModule, it.Span, "file not found for module `"+it.Name+"`").
				WithHint(fmt.Sprintf("create %s.rs or %s/mod.rs", filepath.Join(childDir, it.Name), filepath.Join(childDir, it.Name))).
				Emit()
			continue
		}
		id, err := r.fs.Load(path)
		if err != nil {
			diag.ReportError(r.reporter, diag.IOReadFailed, it.Span, err.Error()).Emit()
			continue
		}
		attrs, items, _, err := r.ParseFile(ctx, id)
		if err != nil {
			return err
		}
		it.Module = &syntax.Module{
			Name:  it.Name,
			File:  path,
			Attrs: attrs,
			Items: items,
			Span:  source.Span{File: id, End: uint32(len(r.fs.Get(id).Content))},
		}
		next := filepath.Join(filepath.Dir(path), it.Name)
		if base := filepath.Base(path); base == "mod.rs" {
			next = filepath.Dir(path)
		}
		if err := r.loadChildren(ctx, it.Module, next, filepath.Dir(path)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reader) moduleFile(it *syntax.Item, childDir, fileDir string) (string, bool) {
	for _, a := range it.Attrs {
		if len(a.Path) == 1 && a.Path[0] == "path" {
			p := strings.Trim(a.Args, `"`)
			if !filepath.IsAbs(p) {
				p = filepath.Join(fileDir, p)
			}
			return p, exists(p)
		}
	}
	for _, p := range []string{
		filepath.Join(childDir, it.Name+".rs"),
		filepath.Join(childDir, it.Name, "mod.rs"),
	} {
		if exists(p) {
			return p, true
		}
	}
	return "", false
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil || !errors.Is(err, os.ErrNotExist)
}
