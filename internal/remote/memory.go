package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"docchat/internal/docchat"
)

// MaxUploadSize is the largest body MemoryService accepts, matching the real backend.
const MaxUploadSize int64 = 50 * 1024 * 1024

// previewLength is how much of a document is quoted as an answer source.
const previewLength = 100

// MemoryService is an in-memory implementation of docchat.RemoteService.
// It keeps uploaded documents in memory and answers questions deterministically,
// which makes it useful for tests and for running the client without a backend.
// This implementation is safe for concurrent use.
type MemoryService struct {
	clock docchat.Clock
	idgen docchat.IDGenerator

	mu       sync.RWMutex
	files    []docchat.FileRecord
	contents map[string][]byte // session id -> document bytes
}

var _ docchat.RemoteService = (*MemoryService)(nil)

// NewMemoryService creates an empty in-memory backend.
func NewMemoryService(clock docchat.Clock, idgen docchat.IDGenerator) *MemoryService {
	return &MemoryService{
		clock:    clock,
		idgen:    idgen,
		files:    []docchat.FileRecord{},
		contents: make(map[string][]byte),
	}
}

// UploadFile stores the document under a new session id.
func (m *MemoryService) UploadFile(ctx context.Context, req docchat.UploadRequest) (*docchat.UploadResponse, error) {
	const op = "upload file"

	if err := ctx.Err(); err != nil {
		return nil, &docchat.NetworkError{Op: op, Err: err}
	}

	data, err := io.ReadAll(io.LimitReader(newProgressReader(req.Content, req.Size, req.Progress), MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read content: %w", op, err)
	}
	if int64(len(data)) > MaxUploadSize {
		return nil, &docchat.ServerError{Op: op, Status: http.StatusBadRequest, Message: "File too large (max 50MB)"}
	}

	sessionID := m.idgen.New()
	rec := docchat.FileRecord{
		SessionID: sessionID,
		Filename:  req.Filename,
		FileType:  strings.TrimPrefix(strings.ToLower(filepath.Ext(req.Filename)), "."),
		FileSize:  int64(len(data)),
		CreatedAt: m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.files = append(m.files, rec)
	m.contents[sessionID] = data
	return &docchat.UploadResponse{
		SessionID: sessionID,
		Filename:  req.Filename,
		Message:   "File uploaded successfully",
	}, nil
}

// ListFiles returns every stored document in upload order.
func (m *MemoryService) ListFiles(ctx context.Context) ([]docchat.FileRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, &docchat.NetworkError{Op: "list files", Err: err}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]docchat.FileRecord, len(m.files))
	copy(out, m.files)
	return out, nil
}

// DeleteFile removes a document. Unknown ids return a 404 ServerError.
func (m *MemoryService) DeleteFile(ctx context.Context, sessionID string) error {
	const op = "delete file"

	if err := ctx.Err(); err != nil {
		return &docchat.NetworkError{Op: op, Err: err}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for i, f := range m.files {
		if f.SessionID == sessionID {
			m.files = append(m.files[:i:i], m.files[i+1:]...)
			delete(m.contents, sessionID)
			return nil
		}
	}
	return &docchat.ServerError{Op: op, Status: http.StatusNotFound, Message: "File not found"}
}

// Ask answers from the selected document's text, or from "general knowledge"
// when no known document is selected.
func (m *MemoryService) Ask(ctx context.Context, req docchat.AskRequest) (*docchat.AskResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, &docchat.NetworkError{Op: "ask", Err: err}
	}

	lang := req.Language
	if lang == "" {
		lang = docchat.DefaultLanguage
	}
	resp := &docchat.AskResponse{
		Language:  lang,
		SessionID: req.SessionID,
		Sources:   []docchat.Source{},
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc := "General knowledge"
	if req.SessionID != "" {
		if data, ok := m.contents[req.SessionID]; ok {
			for _, f := range m.files {
				if f.SessionID == req.SessionID {
					doc = f.Filename
				}
			}
			resp.Sources = append(resp.Sources, docchat.Source{Source: doc, ContentPreview: preview(data)})
		}
	}

	switch lang {
	case docchat.LanguageMalay:
		resp.Answer = fmt.Sprintf("Jawapan (%s): %s", doc, req.Text)
	default:
		resp.Answer = fmt.Sprintf("Answer (%s): %s", doc, req.Text)
	}
	return resp, nil
}

// Health always succeeds unless ctx is done.
func (m *MemoryService) Health(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &docchat.NetworkError{Op: "health", Err: err}
	}
	return nil
}

func preview(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) <= previewLength {
		return s
	}
	return s[:previewLength] + "..."
}
