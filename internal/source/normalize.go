package source

import (
	"path/filepath"
	"slices"
)

// normalizeCRLF rewrites \r\n to \n and leaves lone \r alone.
func normalizeCRLF(content []byte) ([]byte, bool) {
	if !slices.Contains(content, '\r') {
		return content, false
	}
	out := make([]byte, 0, len(content))
	changed := false
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' && i+1 < len(content) && content[i+1] == '\n' {
			changed = true
			continue
		}
		out = append(out, content[i])
	}
	return out, changed
}

func removeBOM(content []byte) ([]byte, bool) {
	if len(content) >= 3 && content[0] == 0xEF && content[1] == 0xBB && content[2] == 0xBF {
		return content[3:], true
	}
	return content, false
}

func buildLineIndex(content []byte) []uint32 {
	var out []uint32
	for i, b := range content {
		if b == '\n' {
			out = append(out, uint32(i)) //nolint:gosec // file size is bounded by Add
		}
	}
	return out
}

// toLineCol maps a byte offset to a 1-based line/column via binary search
// over newline offsets.
func toLineCol(lineIdx []uint32, off uint32) LineCol {
	line, _ := slices.BinarySearch(lineIdx, off)
	var start uint32
	if line > 0 {
		start = lineIdx[line-1] + 1
	}
	return LineCol{Line: uint32(line + 1), Col: off - start + 1} //nolint:gosec // line < len(lineIdx)+1
}

func normalizePath(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}
