package docchat

// StateStore persists the PersistedState subset across process restarts.
// Implementations hold exactly one named slot.
type StateStore interface {
	// Load returns the saved state, or a fresh NewPersistedState when nothing was saved yet.
	// States written by a newer schema version are rejected.
	Load() (*PersistedState, error)

	// Save replaces the slot contents atomically.
	Save(state *PersistedState) error

	// Close releases any underlying resources.
	Close() error
}
