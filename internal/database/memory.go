package database

import (
	"sync"

	"docchat/internal/docchat"
)

// MemoryStateStore keeps the persisted state in memory. Nothing survives the process;
// it backs the "memory" state type and tests.
type MemoryStateStore struct {
	mu    sync.Mutex
	state *docchat.PersistedState
	saves int
}

var _ docchat.StateStore = (*MemoryStateStore)(nil)

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) Load() (*docchat.PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return docchat.NewPersistedState(), nil
	}
	ps := clone(m.state)
	if err := ps.Upgrade(); err != nil {
		return nil, err
	}
	return ps, nil
}

func (m *MemoryStateStore) Save(state *docchat.PersistedState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = clone(state)
	m.saves++
	return nil
}

// Saves reports how many times Save was called.
func (m *MemoryStateStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *MemoryStateStore) Close() error { return nil }

func clone(ps *docchat.PersistedState) *docchat.PersistedState {
	cp := *ps
	cp.Files = append([]docchat.FileRecord(nil), ps.Files...)
	return &cp
}
