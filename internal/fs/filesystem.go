package fs

import (
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"docchat/internal/docchat"
)

// sniffLen is how many leading bytes are inspected when the extension has no known MIME type.
const sniffLen = 512

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
// It performs actual filesystem operations using the os package.
type OSFilesystemManager struct {
	ignore *IgnoreMatcher
}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
// ignorePatterns apply to directory listings, in addition to each directory's ignore file.
func NewOSFilesystemManager(ignorePatterns []string) *OSFilesystemManager {
	patterns := append(append([]string{}, defaultIgnorePatterns...), ignorePatterns...)
	return &OSFilesystemManager{ignore: NewIgnoreMatcher(patterns)}
}

// Resolve validates a raw path and describes the file or directory it names.
func (m *OSFilesystemManager) Resolve(rawPath string) (*docchat.LocalFile, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}

	// Check for special file types we don't support
	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("device files not supported: %s", absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("named pipes not supported: %s", absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("sockets not supported: %s", absPath)
	}

	return m.describe(absPath, info), nil
}

func (m *OSFilesystemManager) describe(absPath string, info fs.FileInfo) *docchat.LocalFile {
	f := &docchat.LocalFile{
		Path:    absPath,
		Name:    info.Name(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}
	if !f.IsDir {
		f.MimeType = detectMimeType(absPath, f.Name)
	}
	return f
}

// detectMimeType prefers the extension's registered type and falls back to content sniffing.
func detectMimeType(path, name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}

	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF {
		return ""
	}
	return http.DetectContentType(buf[:n])
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(file *docchat.LocalFile) (io.ReadCloser, error) {
	if file.IsDir {
		return nil, fmt.Errorf("cannot open directory as file: %s", file.Path)
	}
	return os.Open(file.Path)
}

// FindFiles discovers regular files under the given directory, skipping anything matched
// by the configured patterns or by the directory's ignore file.
func (m *OSFilesystemManager) FindFiles(dir *docchat.LocalFile, recursive bool) ([]*docchat.LocalFile, error) {
	if !dir.IsDir {
		return nil, fmt.Errorf("path is not a directory: %s", dir.Path)
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(dir.Path, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	ignore := m.ignore.With(filePatterns)

	var files []*docchat.LocalFile

	if recursive {
		err := filepath.WalkDir(dir.Path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == dir.Path {
				return nil
			}
			rel, err := filepath.Rel(dir.Path, p)
			if err != nil {
				return err
			}
			if ignore.Match(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return fmt.Errorf("stat %s: %w", p, err)
			}
			files = append(files, m.describe(p, info))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking directory: %w", err)
		}
	} else {
		entries, err := os.ReadDir(dir.Path)
		if err != nil {
			return nil, fmt.Errorf("reading directory: %w", err)
		}
		for _, entry := range entries {
			if !entry.Type().IsRegular() || ignore.Match(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
			}
			files = append(files, m.describe(filepath.Join(dir.Path, entry.Name()), info))
		}
	}

	return files, nil
}

// Compile-time check that OSFilesystemManager implements docchat.FilesystemManager interface
var _ docchat.FilesystemManager = (*OSFilesystemManager)(nil)
