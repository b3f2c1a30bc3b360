package fs

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// IgnoreFileName is the per-directory ignore file honored by directory uploads.
const IgnoreFileName = ".docchatignore"

// defaultIgnorePatterns are always applied regardless of config or the ignore file.
var defaultIgnorePatterns = []string{IgnoreFileName}

// IgnoreMatcher decides which entries of an upload directory are skipped.
//
// A pattern containing '/' is matched against the slash-separated path relative to the
// directory being uploaded ("drafts/*.docx"). Any other pattern is matched against the
// entry's own name at every depth ("~$*").
type IgnoreMatcher struct {
	names []string
	paths []string
}

// NewIgnoreMatcher builds a matcher from raw pattern lines.
// Blank lines and '#' comments are dropped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	m.add(lines)
	return m
}

// With returns a copy of m extended by lines. m itself is left unchanged.
func (m *IgnoreMatcher) With(lines []string) *IgnoreMatcher {
	cp := &IgnoreMatcher{
		names: append([]string(nil), m.names...),
		paths: append([]string(nil), m.paths...),
	}
	cp.add(lines)
	return cp
}

func (m *IgnoreMatcher) add(lines []string) {
	for _, line := range lines {
		p := strings.TrimSpace(line)
		switch {
		case p == "", strings.HasPrefix(p, "#"):
		case strings.Contains(p, "/"):
			m.paths = append(m.paths, p)
		default:
			m.names = append(m.names, p)
		}
	}
}

// Len returns the number of active patterns.
func (m *IgnoreMatcher) Len() int {
	return len(m.names) + len(m.paths)
}

// Match reports whether rel, a path relative to the upload directory, is ignored.
// Malformed patterns never match.
func (m *IgnoreMatcher) Match(rel string) bool {
	if rel == "" {
		return false
	}
	slashed := filepath.ToSlash(rel)
	name := path.Base(slashed)

	for _, p := range m.names {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	for _, p := range m.paths {
		if ok, err := path.Match(p, slashed); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile returns the raw lines of an ignore file, comments included.
// A missing file yields no lines and no error.
func ParseIgnoreFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file %s: %w", filename, err)
	}
	return lines, nil
}
