package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"docchat/internal/docchat"
)

// snapshotFile is the on-disk layout of a FileStateStore: every slot in one msgpack document.
type snapshotFile struct {
	Slots map[string]*docchat.PersistedState `msgpack:"slots"`
}

// FileStateStore implements docchat.StateStore as a msgpack snapshot file.
// Writes go to a temporary file that is renamed over the target, so a crash never
// leaves a half-written snapshot behind.
type FileStateStore struct {
	path string
	slot string
	mu   sync.Mutex
}

var _ docchat.StateStore = (*FileStateStore)(nil)

// NewFileStateStore creates a store for slot in the snapshot file at path.
// The file and its directory are created on first Save.
func NewFileStateStore(path, slot string) *FileStateStore {
	return &FileStateStore{path: path, slot: slot}
}

func (s *FileStateStore) read() (*snapshotFile, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &snapshotFile{Slots: map[string]*docchat.PersistedState{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}

	var sf snapshotFile
	if err := msgpack.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("decoding state file %s: %w", s.path, err)
	}
	if sf.Slots == nil {
		sf.Slots = map[string]*docchat.PersistedState{}
	}
	return &sf, nil
}

// Load reads the slot. A missing file or slot yields a fresh state.
func (s *FileStateStore) Load() (*docchat.PersistedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.read()
	if err != nil {
		return nil, err
	}
	ps, ok := sf.Slots[s.slot]
	if !ok || ps == nil {
		return docchat.NewPersistedState(), nil
	}
	if err := ps.Upgrade(); err != nil {
		return nil, err
	}
	for i := range ps.Files {
		ps.Files[i].CreatedAt = ps.Files[i].CreatedAt.UTC()
	}
	return ps, nil
}

// Save replaces the slot, keeping any other slots in the file.
func (s *FileStateStore) Save(state *docchat.PersistedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sf, err := s.read()
	if err != nil {
		return err
	}

	cp := *state
	if cp.Version == 0 {
		cp.Version = docchat.CurrentStateVersion
	}
	sf.Slots[s.slot] = &cp

	data, err := msgpack.Marshal(sf)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	return writeFileAtomic(s.path, data)
}

// Path returns the snapshot file path.
func (s *FileStateStore) Path() string {
	return s.path
}

// Close is a no-op; the file is only open during Load and Save.
func (s *FileStateStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replacing state file: %w", err)
	}
	return nil
}
