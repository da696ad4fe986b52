// Package cache stores parsed source files on disk, keyed by content hash,
// so unchanged files skip the tree-sitter pass on the next run.
package cache

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"ferment/internal/project"
	"ferment/internal/syntax"
)

// SchemaVersion is bumped whenever the syntax model or Entry layout changes.
const SchemaVersion uint16 = 2

// Disk holds cached entries under one directory. A nil *Disk is a valid,
// always-missing cache. Safe for concurrent use.
type Disk struct {
	mu  sync.RWMutex
	dir string
}

// Entry is the cached result of parsing one file.
type Entry struct {
	Schema uint16
	Path   string
	Hash   project.Digest
	Attrs  []syntax.Attr
	Items  []*syntax.Item
}

// Open returns a cache rooted at dir, or at $XDG_CACHE_HOME/ferment when dir
// is empty.
func Open(dir string) (*Disk, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, "ferment")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Disk{dir: dir}, nil
}

// Dir reports the cache directory.
func (c *Disk) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

// Key derives the lookup key for a file's content hash.
func Key(content project.Digest) project.Digest {
	return project.Combine(content, project.DigestString("ferment-syntax"), schemaDigest())
}

func schemaDigest() project.Digest {
	var d project.Digest
	d[0] = byte(SchemaVersion >> 8)
	d[1] = byte(SchemaVersion)
	return d
}

func (c *Disk) pathFor(key project.Digest) string {
	return filepath.Join(c.dir, "files", hex.EncodeToString(key[:])+".mp")
}

// Put writes e atomically.
func (c *Disk) Put(key project.Digest, e *Entry) (err error) {
	if c == nil || e == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	e.Schema = SchemaVersion
	if err = msgpack.NewEncoder(f).Encode(e); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get loads the entry for key. A missing entry, or one written by another
// schema, reports false without error.
func (c *Disk) Get(key project.Digest) (*Entry, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer f.Close()

	var e Entry
	if err := msgpack.NewDecoder(f).Decode(&e); err != nil {
		return nil, false, err
	}
	if e.Schema != SchemaVersion {
		return nil, false, nil
	}
	return &e, true, nil
}

// DropAll removes every cached entry.
func (c *Disk) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(filepath.Join(c.dir, "files"))
}
