package testutil

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docchat/internal/docchat"
)

// MockFile represents a file in the mock filesystem.
type MockFile struct {
	// Content is served by Open. When nil, Size bytes of filler are served instead,
	// so large files cost no memory.
	Content     []byte
	Size        int64
	MimeType    string
	ModTime     time.Time
	IsDirectory bool
}

// MockFilesystemManager is an in-memory filesystem for testing. Safe for concurrent use.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile
	opens map[string]int
}

// NewMockFilesystemManager creates a new mock filesystem.
func NewMockFilesystemManager() *MockFilesystemManager {
	return &MockFilesystemManager{
		files: make(map[string]*MockFile),
		opens: make(map[string]int),
	}
}

func abs(path string) string {
	p, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return p
}

// AddFile adds a file with the given content and no MIME type.
func (m *MockFilesystemManager) AddFile(path string, content []byte) {
	m.AddFileWithType(path, content, "")
}

// AddFileWithType adds a file with the given content and MIME type.
func (m *MockFilesystemManager) AddFileWithType(path string, content []byte, mimeType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[abs(path)] = &MockFile{
		Content:  content,
		Size:     int64(len(content)),
		MimeType: mimeType,
		ModTime:  time.Now(),
	}
}

// AddSizedFile adds a file of size bytes whose content is generated on Open.
func (m *MockFilesystemManager) AddSizedFile(path string, size int64, mimeType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[abs(path)] = &MockFile{
		Size:     size,
		MimeType: mimeType,
		ModTime:  time.Now(),
	}
}

// AddDirectory adds a directory to the mock filesystem.
func (m *MockFilesystemManager) AddDirectory(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[abs(path)] = &MockFile{
		ModTime:     time.Now(),
		IsDirectory: true,
	}
}

func (m *MockFilesystemManager) Resolve(rawPath string) (*docchat.LocalFile, error) {
	absPath := abs(rawPath)

	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[absPath]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", absPath)
	}
	return describe(absPath, file), nil
}

func describe(absPath string, file *MockFile) *docchat.LocalFile {
	return &docchat.LocalFile{
		Path:     absPath,
		Name:     filepath.Base(absPath),
		Size:     file.Size,
		MimeType: file.MimeType,
		ModTime:  file.ModTime,
		IsDir:    file.IsDirectory,
	}
}

func (m *MockFilesystemManager) Open(f *docchat.LocalFile) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[f.Path]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", f.Path)
	}
	if file.IsDirectory {
		return nil, fmt.Errorf("cannot open directory: %s", f.Path)
	}
	m.opens[f.Path]++
	if file.Content != nil {
		return io.NopCloser(bytes.NewReader(file.Content)), nil
	}
	return io.NopCloser(io.LimitReader(filler{}, file.Size)), nil
}

// Opens reports how many times the file at path was opened.
func (m *MockFilesystemManager) Opens(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[abs(path)]
}

// FindFiles lists regular files under dir in lexical order.
func (m *MockFilesystemManager) FindFiles(dir *docchat.LocalFile, recursive bool) ([]*docchat.LocalFile, error) {
	if !dir.IsDir {
		return nil, fmt.Errorf("path is not a directory: %s", dir.Path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := dir.Path + string(filepath.Separator)
	var paths []string
	for p, f := range m.files {
		if f.IsDirectory || !strings.HasPrefix(p, prefix) {
			continue
		}
		if !recursive && filepath.Dir(p) != dir.Path {
			continue
		}
		paths = append(paths, p)
	}
	sort.Strings(paths)

	out := make([]*docchat.LocalFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, describe(p, m.files[p]))
	}
	return out, nil
}

// filler is an endless stream of 'x'.
type filler struct{}

func (filler) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'x'
	}
	return len(p), nil
}

// Compile-time check
var _ docchat.FilesystemManager = (*MockFilesystemManager)(nil)
