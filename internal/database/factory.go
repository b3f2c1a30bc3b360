package database

import (
	"fmt"

	"docchat/internal/config"
	"docchat/internal/docchat"
)

// NewStateStoreFromConfig creates a StateStore implementation based on the state config type.
func NewStateStoreFromConfig(cfg config.StateConfig, clock docchat.Clock) (docchat.StateStore, error) {
	slot := cfg.Slot
	if slot == "" {
		slot = config.DefaultSlot
	}

	switch cfg.Type {
	case "sqlite":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for sqlite state store")
		}
		store, err := NewSQLiteStateStore(cfg.Path, slot, clock)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("path required for file state store")
		}
		return NewFileStateStore(cfg.Path, slot), nil
	case "memory":
		return NewMemoryStateStore(), nil
	default:
		return nil, fmt.Errorf("unknown state store type: %s", cfg.Type)
	}
}
