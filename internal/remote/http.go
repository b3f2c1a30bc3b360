package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docchat/internal/docchat"
)

// maxErrorBody caps how much of an error response is read for its message.
const maxErrorBody = 64 * 1024

// HTTPService is a docchat.RemoteService speaking the document chat backend's JSON API.
// It performs exactly one request per call and enforces no timeout of its own.
type HTTPService struct {
	baseURL string
	client  *http.Client
	logger  docchat.Logger
}

var _ docchat.RemoteService = (*HTTPService)(nil)

// NewHTTPService creates a client rooted at baseURL (e.g. "http://localhost:8000/api").
// A nil client uses a default one without a timeout.
func NewHTTPService(baseURL string, client *http.Client, logger docchat.Logger) *HTTPService {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPService{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// BaseURL returns the root all endpoints are resolved against.
func (s *HTTPService) BaseURL() string {
	return s.baseURL
}

type uploadResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
	Message   string `json:"message"`
}

// UploadFile streams req.Content as the "file" field of a multipart body.
func (s *HTTPService) UploadFile(ctx context.Context, req docchat.UploadRequest) (*docchat.UploadResponse, error) {
	const op = "upload file"

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreatePart(fileHeader(req.Filename, req.MimeType))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, newProgressReader(req.Content, req.Size, req.Progress)); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/files/upload", pr)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadResponse
	if err := s.do(httpReq, op, &out); err != nil {
		return nil, err
	}
	return &docchat.UploadResponse{
		SessionID: out.SessionID,
		Filename:  out.Filename,
		Message:   out.Message,
	}, nil
}

func fileHeader(filename, mimeType string) textproto.MIMEHeader {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	h.Set("Content-Type", mimeType)
	return h
}

type wireFile struct {
	SessionID string `json:"session_id"`
	Filename  string `json:"filename"`
	FileType  string `json:"file_type"`
	FileSize  int64  `json:"file_size"`
	CreatedAt string `json:"created_at"`
}

// ListFiles fetches the server's file inventory.
func (s *HTTPService) ListFiles(ctx context.Context) ([]docchat.FileRecord, error) {
	const op = "list files"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/files", nil)
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}

	var out []wireFile
	if err := s.do(httpReq, op, &out); err != nil {
		return nil, err
	}

	records := make([]docchat.FileRecord, 0, len(out))
	for _, f := range out {
		created, err := parseTimestamp(f.CreatedAt)
		if err != nil {
			s.logger.Warn("unparseable created_at", "session_id", f.SessionID, "value", f.CreatedAt)
		}
		records = append(records, docchat.FileRecord{
			SessionID: f.SessionID,
			Filename:  f.Filename,
			FileType:  f.FileType,
			FileSize:  f.FileSize,
			CreatedAt: created,
		})
	}
	return records, nil
}

// timestampLayouts are tried in order. The backend commonly emits naive ISO-8601
// timestamps without a zone; those are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// DeleteFile removes a document by session id.
func (s *HTTPService) DeleteFile(ctx context.Context, sessionID string) error {
	const op = "delete file"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.baseURL+"/files/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	return s.do(httpReq, op, nil)
}

type askRequest struct {
	Text      string  `json:"text"`
	SessionID *string `json:"session_id"`
	Language  string  `json:"language"`
}

type askResponse struct {
	Answer    string           `json:"answer"`
	Sources   []docchat.Source `json:"sources"`
	Language  string           `json:"language"`
	SessionID *string          `json:"session_id"`
}

// Ask posts a question. An empty session id is sent as null.
func (s *HTTPService) Ask(ctx context.Context, req docchat.AskRequest) (*docchat.AskResponse, error) {
	const op = "ask"

	body := askRequest{Text: req.Text, Language: string(req.Language)}
	if req.SessionID != "" {
		body.SessionID = &req.SessionID
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: encoding request: %w", op, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/chat/ask", bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%s: building request: %w", op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out askResponse
	if err := s.do(httpReq, op, &out); err != nil {
		return nil, err
	}

	resp := &docchat.AskResponse{
		Answer:   out.Answer,
		Sources:  out.Sources,
		Language: docchat.Language(out.Language),
	}
	if out.SessionID != nil {
		resp.SessionID = *out.SessionID
	}
	return resp, nil
}

// Health probes the service. Any 2xx is healthy.
func (s *HTTPService) Health(ctx context.Context) error {
	const op = "health"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", op, err)
	}
	return s.do(httpReq, op, nil)
}

// do sends req and decodes a 2xx JSON body into out (if non-nil).
// Transport failures become *docchat.NetworkError, non-2xx responses *docchat.ServerError.
func (s *HTTPService) do(req *http.Request, op string, out any) error {
	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("request failed", "op", op, "url", req.URL.String(), "error", err)
		return &docchat.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	s.logger.Debug("request complete", "op", op, "status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return serverError(op, resp.StatusCode, body)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &docchat.NetworkError{Op: op, Err: fmt.Errorf("reading response: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

// serverError builds a ServerError from an error response. The message is the
// "detail" field of a JSON body if present, else the trimmed body.
func serverError(op string, status int, body []byte) *docchat.ServerError {
	msg := detailMessage(body)
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}

	// A catch-all exception handler on the server can re-raise an HTTP error as a 500
	// whose detail is the inner "<status>: <message>".
	if status == http.StatusInternalServerError {
		if code, rest, ok := strings.Cut(msg, ":"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(code)); err == nil && n >= 400 && n < 500 {
				status = n
				msg = strings.TrimSpace(rest)
			}
		}
	}

	return &docchat.ServerError{Op: op, Status: status, Message: msg}
}

func detailMessage(body []byte) string {
	var env struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(env.Detail, &s); err == nil {
		return s
	}

	// Request validation failures carry a list of {loc, msg, type} objects.
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(env.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(env.Detail)
}
