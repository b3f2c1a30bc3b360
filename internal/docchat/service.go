package docchat

import (
	"context"
	"io"
)

// RemoteService is the file/chat backend the engine talks to.
// Every method is a single network round trip: no retries, no batching, no caching.
// Transport failures are reported as *NetworkError and non-2xx responses as *ServerError.
type RemoteService interface {
	// UploadFile sends one document as a multipart body and returns the server-issued session.
	UploadFile(ctx context.Context, req UploadRequest) (*UploadResponse, error)

	// ListFiles returns every document the server knows about.
	ListFiles(ctx context.Context) ([]FileRecord, error)

	// DeleteFile removes a document and its embeddings on the server.
	// Unknown ids produce a 404 ServerError; callers treat that as already deleted.
	DeleteFile(ctx context.Context, sessionID string) error

	// Ask sends a question, optionally scoped to a document session.
	// No timeout is enforced here; callers may bound ctx.
	Ask(ctx context.Context, req AskRequest) (*AskResponse, error)

	// Health probes service liveness.
	Health(ctx context.Context) error
}

// UploadRequest carries one file to UploadFile.
// Progress, when set, receives monotonically increasing percentages of bytes sent.
type UploadRequest struct {
	Filename string
	MimeType string
	Size     int64
	Content  io.Reader
	Progress func(percent int)
}

// UploadResponse is the server's acknowledgement of an upload.
type UploadResponse struct {
	SessionID string
	Filename  string
	Message   string
}

// AskRequest is a question for the assistant. An empty SessionID asks from general knowledge.
type AskRequest struct {
	Text      string
	SessionID string
	Language  Language
}

// AskResponse is the assistant's answer.
type AskResponse struct {
	Answer    string
	Sources   []Source
	Language  Language
	SessionID string
}

// Source is a document excerpt the backend used to ground an answer.
type Source struct {
	Source         string  `json:"source" yaml:"source"`
	ContentPreview string  `json:"content_preview" yaml:"content_preview"`
	RelevanceScore float64 `json:"relevance_score,omitempty" yaml:"relevance_score,omitempty"`
}
