package docchat

import (
	"context"
	"fmt"
)

// Options configures an Engine.
type Options struct {
	Upload UploaderOptions
	Chat   ChatOptions
}

// Engine is the orchestration layer the CLI talks to. It owns the Store and routes
// every user action through the orchestrator responsible for it.
type Engine struct {
	store    *Store
	fsmgr    FilesystemManager
	logger   Logger
	uploader *Uploader
	chat     *Chat
	library  *Library
}

// NewEngine wires a Store to a remote service and the local filesystem.
func NewEngine(store *Store, service RemoteService, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator, opts Options) *Engine {
	return &Engine{
		store:    store,
		fsmgr:    fsmgr,
		logger:   logger,
		uploader: NewUploader(store, service, fsmgr, logger, clock, idgen, opts.Upload),
		chat:     NewChat(store, service, logger, opts.Chat),
		library:  NewLibrary(store, service, logger),
	}
}

// Store returns the state store. Presentation reads it; it never mutates it directly.
func (e *Engine) Store() *Store {
	return e.store
}

// UploadPaths resolves raw paths and uploads the files they name, one at a time.
// Directories expand to the supported files they contain (recursively if asked);
// explicitly named files are always attempted so that rejections are reported.
func (e *Engine) UploadPaths(ctx context.Context, rawPaths []string, recursive bool) []UploadResult {
	var (
		results []UploadResult
		files   []*LocalFile
	)
	policy := e.uploader.Policy()

	for _, raw := range rawPaths {
		f, err := e.fsmgr.Resolve(raw)
		if err != nil {
			results = append(results, UploadResult{File: &LocalFile{Path: raw, Name: raw}, Err: fmt.Errorf("resolving path: %w", err)})
			continue
		}
		if !f.IsDir {
			files = append(files, f)
			continue
		}
		found, err := e.fsmgr.FindFiles(f, recursive)
		if err != nil {
			results = append(results, UploadResult{File: f, Err: fmt.Errorf("finding files: %w", err)})
			continue
		}
		for _, ff := range found {
			if !policy.Supports(ff.Name) {
				e.logger.Debug("skipping unsupported file", "path", ff.Path)
				continue
			}
			files = append(files, ff)
		}
	}

	return append(results, e.uploader.UploadAll(ctx, files)...)
}

// Upload uploads already-resolved files.
func (e *Engine) Upload(ctx context.Context, files []*LocalFile) []UploadResult {
	return e.uploader.UploadAll(ctx, files)
}

// Ask sends a question about the current selection (or general knowledge).
func (e *Engine) Ask(ctx context.Context, text string) (*Exchange, error) {
	return e.chat.Send(ctx, text)
}

// Select makes a file the active document.
func (e *Engine) Select(sessionID string) error {
	return e.library.Select(sessionID)
}

// Deselect returns to general-knowledge mode.
func (e *Engine) Deselect() {
	e.library.Deselect()
}

// Delete removes a file remotely and locally.
func (e *Engine) Delete(ctx context.Context, sessionID string) error {
	return e.library.Delete(ctx, sessionID)
}

// Refresh reloads the inventory from the server.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.library.Refresh(ctx)
}

// RemoteFiles fetches the server's listing without applying it.
func (e *Engine) RemoteFiles(ctx context.Context) ([]FileRecord, error) {
	return e.library.RemoteFiles(ctx)
}

// Track adds a server-listed record to the local inventory if it is missing.
func (e *Engine) Track(rec FileRecord) bool {
	return e.library.Track(rec)
}

// SetLanguage parses and applies a language preference.
func (e *Engine) SetLanguage(raw string) (Language, error) {
	lang, err := ParseLanguage(raw)
	if err != nil {
		return "", err
	}
	e.store.SetLanguage(lang)
	e.logger.Info("language set", "language", string(lang))
	return lang, nil
}

// ClearChat empties the transcript without changing the selection.
func (e *Engine) ClearChat() {
	e.store.ClearChat()
}

// Health probes the remote service.
func (e *Engine) Health(ctx context.Context) error {
	return e.library.Health(ctx)
}
