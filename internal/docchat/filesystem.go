package docchat

import (
	"io"
	"path/filepath"
	"strings"
	"time"
)

// LocalFile is a document on the local disk, inspected before upload.
// LocalFile values are created by FilesystemManager.Resolve or FindFiles.
type LocalFile struct {
	Path     string
	Name     string
	Size     int64
	MimeType string
	ModTime  time.Time
	IsDir    bool
}

// Ext returns the lower-cased extension including the dot, e.g. ".pdf".
func (f *LocalFile) Ext() string {
	return lowerExt(f.Name)
}

// FilesystemManager provides access to local documents.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve makes rawPath absolute, stats it, and rejects special files.
	Resolve(rawPath string) (*LocalFile, error)

	// Open opens a resolved file for reading.
	Open(file *LocalFile) (io.ReadCloser, error)

	// FindFiles discovers regular files under a resolved directory.
	// When recursive is false only the top level is listed.
	FindFiles(dir *LocalFile, recursive bool) ([]*LocalFile, error)
}

func lowerExt(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
