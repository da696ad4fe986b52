package source

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"fortio.org/safecast"
)

// FileSet owns every file read during a run. Crates are parsed in parallel,
// so all methods are safe for concurrent use.
type FileSet struct {
	mu      sync.RWMutex
	files   []*File
	index   map[string]FileID // path -> id
	baseDir string
}

// NewFileSet creates a new empty FileSet.
func NewFileSet() *FileSet {
	return &FileSet{index: make(map[string]FileID)}
}

// NewFileSetWithBase creates a FileSet that prints paths relative to baseDir.
func NewFileSetWithBase(baseDir string) *FileSet {
	fs := NewFileSet()
	fs.baseDir = baseDir
	return fs
}

// BaseDir returns the directory used to shorten printed paths.
func (fileSet *FileSet) BaseDir() string {
	return fileSet.baseDir
}

// Add stores already-normalised content and returns a new FileID.
// Re-adding a path creates a new version; the index points at the latest.
func (fileSet *FileSet) Add(path string, content []byte, flags FileFlags) FileID {
	if _, err := safecast.Conv[uint32](len(content)); err != nil {
		panic(fmt.Errorf("file %s too large: %w", path, err))
	}
	f := &File{
		Path:    normalizePath(path),
		Content: content,
		LineIdx: buildLineIndex(content),
		Hash:    sha256.Sum256(content),
		Flags:   flags,
	}

	fileSet.mu.Lock()
	defer fileSet.mu.Unlock()
	n, err := safecast.Conv[uint32](len(fileSet.files))
	if err != nil {
		panic(fmt.Errorf("len files overflow: %w", err))
	}
	f.ID = FileID(n)
	fileSet.files = append(fileSet.files, f)
	fileSet.index[f.Path] = f.ID
	return f.ID
}

// Load reads a file from disk, strips a BOM, normalises CRLF and calls Add.
func (fileSet *FileSet) Load(path string) (FileID, error) {
	// #nosec G304 -- path comes from the crate crawler
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	content, hadBOM := removeBOM(content)
	content, hadCRLF := normalizeCRLF(content)

	var flags FileFlags
	if hadBOM {
		flags |= FileHadBOM
	}
	if hadCRLF {
		flags |= FileNormalizedCRLF
	}
	return fileSet.Add(path, content, flags), nil
}

// AddVirtual adds an in-memory file with the FileVirtual flag.
func (fileSet *FileSet) AddVirtual(name string, content []byte) FileID {
	return fileSet.Add(name, content, FileVirtual)
}

// Get returns the file for id.
func (fileSet *FileSet) Get(id FileID) *File {
	fileSet.mu.RLock()
	defer fileSet.mu.RUnlock()
	return fileSet.files[id]
}

// Len reports how many file versions were added.
func (fileSet *FileSet) Len() int {
	fileSet.mu.RLock()
	defer fileSet.mu.RUnlock()
	return len(fileSet.files)
}

// GetLatest returns the latest file ID for the given path.
func (fileSet *FileSet) GetLatest(path string) (FileID, bool) {
	fileSet.mu.RLock()
	defer fileSet.mu.RUnlock()
	id, ok := fileSet.index[normalizePath(path)]
	return id, ok
}

// Resolve converts a span into line and column positions.
func (fileSet *FileSet) Resolve(span Span) (start, end LineCol) {
	f := fileSet.Get(span.File)
	return toLineCol(f.LineIdx, span.Start), toLineCol(f.LineIdx, span.End)
}

// Position renders `path:line:col` for the start of span.
func (fileSet *FileSet) Position(span Span) string {
	if int(span.File) >= fileSet.Len() {
		return "<unknown>"
	}
	f := fileSet.Get(span.File)
	start, _ := fileSet.Resolve(span)
	return fmt.Sprintf("%s:%d:%d", fileSet.DisplayPath(f), start.Line, start.Col)
}

// DisplayPath shortens f.Path relative to the base directory when possible.
func (fileSet *FileSet) DisplayPath(f *File) string {
	if fileSet.baseDir == "" || !filepath.IsAbs(f.Path) {
		return f.Path
	}
	rel, err := filepath.Rel(fileSet.baseDir, f.Path)
	if err != nil || len(rel) >= 2 && rel[:2] == ".." {
		return f.Path
	}
	return filepath.ToSlash(rel)
}

// GetLine returns line lineNum (1-based) without its trailing newline.
func (f *File) GetLine(lineNum uint32) string {
	if lineNum == 0 {
		return ""
	}
	n := uint32(len(f.LineIdx)) //nolint:gosec // bounded by content length
	var start uint32
	if lineNum > 1 {
		if lineNum-2 >= n {
			return ""
		}
		start = f.LineIdx[lineNum-2] + 1
	}
	end := uint32(len(f.Content)) //nolint:gosec // checked in Add
	if lineNum-1 < n {
		end = f.LineIdx[lineNum-1]
	}
	if start > end {
		return ""
	}
	return string(f.Content[start:end])
}
