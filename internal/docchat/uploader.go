package docchat

import (
	"context"
	"fmt"
	"mime"
	"sort"
	"strings"
	"time"
)

// DefaultMaxUploadSize is the largest file accepted for upload (50 MiB).
const DefaultMaxUploadSize int64 = 50 * 1024 * 1024

// DefaultSettleDelay is how long a finished upload keeps showing 100%.
const DefaultSettleDelay = time.Second

// UploadPolicy decides which local files may be uploaded.
// Types maps a lower-cased extension (".pdf") to the MIME types accepted for it;
// the first entry is the content type sent to the server.
type UploadPolicy struct {
	MaxSize int64
	Types   map[string][]string
}

// DefaultUploadPolicy accepts PDF, DOCX, TXT and XLSX documents up to 50 MiB.
// Office formats are zip containers, so sniffed zip/octet-stream types are accepted for them.
func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxSize: DefaultMaxUploadSize,
		Types: map[string][]string{
			".pdf":  {"application/pdf"},
			".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip", "application/octet-stream"},
			".txt":  {"text/plain"},
			".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip", "application/octet-stream"},
		},
	}
}

// Supports reports whether the extension of name is uploadable at all.
func (p UploadPolicy) Supports(name string) bool {
	_, ok := p.Types[lowerExt(name)]
	return ok
}

// Extensions lists the supported extensions, sorted.
func (p UploadPolicy) Extensions() []string {
	exts := make([]string, 0, len(p.Types))
	for ext := range p.Types {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ContentType returns the canonical MIME type for f.
func (p UploadPolicy) ContentType(f *LocalFile) string {
	if types := p.Types[f.Ext()]; len(types) > 0 {
		return types[0]
	}
	return "application/octet-stream"
}

// Validate rejects files that must never reach the network.
func (p UploadPolicy) Validate(f *LocalFile) error {
	if f.IsDir {
		return &ValidationError{Field: "file", Reason: fmt.Sprintf("%s is a directory", f.Name)}
	}
	if f.Size <= 0 {
		return &ValidationError{Field: "file_size", Reason: fmt.Sprintf("%s is empty", f.Name)}
	}
	if p.MaxSize > 0 && f.Size > p.MaxSize {
		return &ValidationError{Field: "file_size", Reason: fmt.Sprintf("%s is %d bytes, limit is %d", f.Name, f.Size, p.MaxSize)}
	}
	accepted, ok := p.Types[f.Ext()]
	if !ok {
		return &ValidationError{Field: "file_type", Reason: fmt.Sprintf("%s: unsupported file type (supported: %s)", f.Name, strings.Join(p.Extensions(), ", "))}
	}
	if f.MimeType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(f.MimeType)
	if err != nil {
		mediaType = f.MimeType
	}
	for _, t := range accepted {
		if strings.EqualFold(mediaType, t) {
			return nil
		}
	}
	return &ValidationError{Field: "file_type", Reason: fmt.Sprintf("%s: content type %s does not match extension %s", f.Name, mediaType, f.Ext())}
}

// InferFileType derives the short type label shown for a file: the extension without
// the dot, else the MIME subtype, else "unknown". The result is lower-cased.
func InferFileType(name, mimeType string) string {
	if ext := strings.TrimPrefix(lowerExt(name), "."); ext != "" {
		return ext
	}
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil {
		if _, sub, ok := strings.Cut(mediaType, "/"); ok && sub != "" {
			return strings.ToLower(sub)
		}
	}
	return "unknown"
}

// UploaderOptions tunes the upload orchestrator.
type UploaderOptions struct {
	Policy UploadPolicy
	// SettleDelay keeps a finished upload at 100% before clearing it. Zero clears immediately.
	SettleDelay time.Duration
	// Reconcile replaces the locally synthesized record with the server's listing when available.
	Reconcile bool
}

// UploadResult is the outcome for one file of a batch.
type UploadResult struct {
	File   *LocalFile
	Record *FileRecord
	Err    error
}

// Uploader drives the per-file upload lifecycle:
// idle → uploading(0) → uploading(n) → succeeded | failed.
type Uploader struct {
	store   *Store
	service RemoteService
	fsmgr   FilesystemManager
	logger  Logger
	clock   Clock
	idgen   IDGenerator
	opts    UploaderOptions
}

// NewUploader creates an Uploader. A zero Policy is replaced by DefaultUploadPolicy.
func NewUploader(store *Store, service RemoteService, fsmgr FilesystemManager, logger Logger, clock Clock, idgen IDGenerator, opts UploaderOptions) *Uploader {
	if opts.Policy.Types == nil {
		opts.Policy = DefaultUploadPolicy()
	}
	return &Uploader{
		store:   store,
		service: service,
		fsmgr:   fsmgr,
		logger:  logger,
		clock:   clock,
		idgen:   idgen,
		opts:    opts,
	}
}

// Policy returns the active upload policy.
func (u *Uploader) Policy() UploadPolicy {
	return u.opts.Policy
}

// UploadAll uploads files one at a time, in order, so that at most one upload is in
// flight. A failure does not stop the batch; cancellation of ctx does.
func (u *Uploader) UploadAll(ctx context.Context, files []*LocalFile) []UploadResult {
	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			results = append(results, UploadResult{File: f, Err: err})
			continue
		}
		rec, err := u.Upload(ctx, f)
		results = append(results, UploadResult{File: f, Record: rec, Err: err})
	}
	return results
}

// Upload validates and uploads a single file. On success the new record is added to
// the inventory and selected, which clears the transcript.
func (u *Uploader) Upload(ctx context.Context, f *LocalFile) (*FileRecord, error) {
	if err := u.opts.Policy.Validate(f); err != nil {
		u.logger.Warn("upload rejected", "file", f.Name, "error", err)
		return nil, err
	}

	attempt := u.idgen.New()
	u.store.SetUploadProgress(attempt, 0)
	u.logger.Info("upload started", "file", f.Name, "size", f.Size, "attempt", attempt)

	rc, err := u.fsmgr.Open(f)
	if err != nil {
		u.store.ClearUploadProgress(attempt)
		return nil, fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer rc.Close()

	resp, err := u.service.UploadFile(ctx, UploadRequest{
		Filename: f.Name,
		MimeType: u.opts.Policy.ContentType(f),
		Size:     f.Size,
		Content:  rc,
		Progress: func(percent int) {
			// 100 is reserved for a confirmed upload.
			if percent > 99 {
				percent = 99
			}
			u.store.SetUploadProgress(attempt, percent)
		},
	})
	if err != nil {
		u.store.ClearUploadProgress(attempt)
		u.logger.Error("upload failed", "file", f.Name, "error", err)
		return nil, fmt.Errorf("uploading %s: %w", f.Name, err)
	}
	if resp.SessionID == "" {
		u.store.ClearUploadProgress(attempt)
		return nil, fmt.Errorf("uploading %s: response carried no session id", f.Name)
	}

	u.store.SetUploadProgress(attempt, 100)

	rec := FileRecord{
		SessionID: resp.SessionID,
		Filename:  f.Name,
		FileType:  InferFileType(f.Name, f.MimeType),
		FileSize:  f.Size,
		CreatedAt: u.clock.Now(),
	}
	u.store.AddFile(rec)
	if err := u.store.SelectFile(rec.SessionID); err != nil {
		u.logger.Warn("selecting uploaded file", "session_id", rec.SessionID, "error", err)
	}
	u.logger.Info("upload complete", "file", f.Name, "session_id", rec.SessionID)

	u.settle(attempt)

	if u.opts.Reconcile {
		if server, ok := u.reconcile(ctx, rec.SessionID); ok {
			rec = server
		}
	}
	return &rec, nil
}

func (u *Uploader) settle(attempt string) {
	if u.opts.SettleDelay <= 0 {
		u.store.ClearUploadProgress(attempt)
		return
	}
	time.AfterFunc(u.opts.SettleDelay, func() {
		u.store.ClearUploadProgress(attempt)
	})
}

// reconcile swaps the synthesized record for the server's copy. The server indexes
// uploads in the background, so a missing entry is expected and not an error.
func (u *Uploader) reconcile(ctx context.Context, sessionID string) (FileRecord, bool) {
	files, err := u.service.ListFiles(ctx)
	if err != nil {
		u.logger.Warn("reconcile listing failed, keeping local record", "session_id", sessionID, "error", err)
		return FileRecord{}, false
	}
	for _, f := range files {
		if f.SessionID == sessionID {
			u.store.ReconcileFile(f)
			return f, true
		}
	}
	u.logger.Debug("server has not listed upload yet", "session_id", sessionID)
	return FileRecord{}, false
}
