package docchat

import (
	"context"
	"fmt"
)

// Library coordinates the file inventory with the remote service: selection,
// deletion and refreshing from the server listing.
type Library struct {
	store   *Store
	service RemoteService
	logger  Logger
}

// NewLibrary creates a Library.
func NewLibrary(store *Store, service RemoteService, logger Logger) *Library {
	return &Library{
		store:   store,
		service: service,
		logger:  logger,
	}
}

// Select makes sessionID the active document and starts a fresh transcript.
func (l *Library) Select(sessionID string) error {
	if sessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "session id is empty"}
	}
	if err := l.store.SelectFile(sessionID); err != nil {
		return err
	}
	l.logger.Info("file selected", "session_id", sessionID)
	return nil
}

// Deselect returns to general-knowledge mode and starts a fresh transcript.
func (l *Library) Deselect() {
	_ = l.store.SelectFile("")
	l.logger.Info("selection cleared")
}

// Delete removes a document on the server, then locally. A 404 from the server means
// it is already gone and is treated as success. Any other failure leaves local state
// untouched.
func (l *Library) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return &ValidationError{Field: "session_id", Reason: "session id is empty"}
	}

	if err := l.service.DeleteFile(ctx, sessionID); err != nil {
		if !IsNotFound(err) {
			l.logger.Error("delete failed", "session_id", sessionID, "error", err)
			return fmt.Errorf("deleting %s: %w", sessionID, err)
		}
		l.logger.Warn("file already deleted on server", "session_id", sessionID)
	}

	removed := l.store.DeleteFile(sessionID)
	l.logger.Info("file deleted", "session_id", sessionID, "was_local", removed)
	return nil
}

// Refresh replaces the local inventory with the server's listing.
func (l *Library) Refresh(ctx context.Context) error {
	files, err := l.service.ListFiles(ctx)
	if err != nil {
		l.logger.Error("listing files failed", "error", err)
		return fmt.Errorf("listing files: %w", err)
	}
	l.store.SetFiles(files)
	l.logger.Info("inventory refreshed", "count", len(files))
	return nil
}

// RemoteFiles returns the server's listing without touching the local inventory.
func (l *Library) RemoteFiles(ctx context.Context) ([]FileRecord, error) {
	files, err := l.service.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// Track adds a record the server listed to the local inventory, leaving the selection,
// transcript and every other record alone. It reports whether the record was new.
func (l *Library) Track(rec FileRecord) bool {
	added := l.store.AddFile(rec)
	if added {
		l.logger.Info("tracking server file", "session_id", rec.SessionID, "filename", rec.Filename)
	}
	return added
}

// Health probes the remote service.
func (l *Library) Health(ctx context.Context) error {
	if err := l.service.Health(ctx); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	return nil
}
