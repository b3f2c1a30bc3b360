package testutil

import (
	"testing"

	"docchat/internal/database"
	"docchat/internal/docchat"
)

// NewTestStateStore creates an in-memory SQLite state store with the schema applied.
// The store is automatically closed when the test completes.
func NewTestStateStore(t *testing.T) docchat.StateStore {
	t.Helper()

	store, err := database.NewSQLiteStateStore(":memory:", "chat-storage", FixedClock())
	if err != nil {
		t.Fatalf("failed to open state store: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
