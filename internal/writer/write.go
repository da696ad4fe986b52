package writer

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pmezard/go-difflib/difflib"

	"ferment/internal/ferr"
	"ferment/internal/trace"
)

// Write replaces <outDir>/<modName> with files. Everything is written to a
// temporary sibling first; on failure that sibling is removed and the
// previous output stays untouched.
func Write(ctx context.Context, outDir, modName string, files []File) (err error) {
	ctx, sp := trace.Start(ctx, trace.ScopeStage, "write")
	defer func() { sp.End(errText(err)) }()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return ferr.Wrapf(ferr.KindEmission, err, "create %s", outDir)
	}
	tmp, err := os.MkdirTemp(outDir, "."+modName+"-tmp-*")
	if err != nil {
		return ferr.Wrapf(ferr.KindEmission, err, "create temporary directory in %s", outDir)
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(tmp)
		}
	}()

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := filepath.Join(tmp, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return ferr.Wrapf(ferr.KindEmission, err, "create %s", filepath.Dir(p))
		}
		if err := os.WriteFile(p, []byte(f.Content), 0o644); err != nil {
			return ferr.Wrapf(ferr.KindEmission, err, "write %s", f.Path)
		}
	}
	trace.Point(ctx, trace.ScopeStage, "write-files", strconv.Itoa(len(files))+" files")

	target := filepath.Join(outDir, modName)
	var old string
	if _, statErr := os.Stat(target); statErr == nil {
		old = tmp + ".old"
		if err := os.Rename(target, old); err != nil {
			return ferr.Wrapf(ferr.KindEmission, err, "move aside %s", target)
		}
	}
	if err := os.Rename(tmp, target); err != nil {
		if old != "" {
			_ = os.Rename(old, target)
		}
		return ferr.Wrapf(ferr.KindEmission, err, "replace %s", target)
	}
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

// Stale is one file whose on-disk content differs from the rendered one.
type Stale struct {
	Path string
	// Diff is a unified diff from disk to rendered output.
	Diff string
}

// Check compares files with <outDir>/<modName> without writing. Missing,
// changed and leftover files are all stale.
func Check(ctx context.Context, outDir, modName string, files []File) (stale []Stale, err error) {
	_, sp := trace.Start(ctx, trace.ScopeStage, "check")
	defer func() { sp.End(errText(err)) }()

	root := filepath.Join(outDir, modName)
	want := make(map[string]bool, len(files))
	for _, f := range files {
		want[f.Path] = true
		have, readErr := os.ReadFile(filepath.Join(root, filepath.FromSlash(f.Path)))
		if readErr != nil && !os.IsNotExist(readErr) {
			return nil, ferr.Wrapf(ferr.KindIO, readErr, "read %s", f.Path)
		}
		if readErr == nil && bytes.Equal(have, []byte(f.Content)) {
			continue
		}
		d, err := unified(f.Path, string(have), f.Content)
		if err != nil {
			return nil, err
		}
		stale = append(stale, Stale{Path: f.Path, Diff: d})
	}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if want[rel] {
			return nil
		}
		have, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		diff, err := unified(rel, string(have), "")
		if err != nil {
			return err
		}
		stale = append(stale, Stale{Path: rel, Diff: diff})
		return nil
	})
	if walkErr != nil {
		return nil, ferr.Wrapf(ferr.KindIO, walkErr, "scan %s", root)
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].Path < stale[j].Path })
	return stale, nil
}

func unified(name, from, to string) (string, error) {
	d, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(from),
		B:        difflib.SplitLines(to),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  3,
	})
	if err != nil {
		return "", ferr.Wrapf(ferr.KindEmission, err, "diff %s", name)
	}
	return d, nil
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
