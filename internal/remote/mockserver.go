package remote

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docchat/internal/docchat"
)

// NewMockHandler serves the document chat wire protocol under /api, backed by svc.
// It lets the client (and its tests) run against a local process instead of the real backend.
func NewMockHandler(svc docchat.RemoteService, logger docchat.Logger) http.Handler {
	h := &mockHandler{svc: svc, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Get("/health", h.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.health)

		r.Get("/files", h.listFiles)
		r.Post("/files/upload", h.uploadFile)
		r.Delete("/files/{sessionID}", h.deleteFile)

		r.Post("/chat/ask", h.ask)
	})

	return r
}

type mockHandler struct {
	svc    docchat.RemoteService
	logger docchat.Logger
}

func (h *mockHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Health(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *mockHandler) listFiles(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.ListFiles(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]wireFile, 0, len(files))
	for _, f := range files {
		out = append(out, wireFile{
			SessionID: f.SessionID,
			Filename:  f.Filename,
			FileType:  f.FileType,
			FileSize:  f.FileSize,
			// Naive ISO-8601, as the backend emits it.
			CreatedAt: f.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999"),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *mockHandler) uploadFile(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "Field required: file"})
		return
	}
	defer file.Close()

	resp, err := h.svc.UploadFile(r.Context(), docchat.UploadRequest{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Content:  file,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.logger.Info("mock upload", "filename", header.Filename, "session_id", resp.SessionID)
	writeJSON(w, http.StatusOK, uploadResponse{
		Status:    "success",
		SessionID: resp.SessionID,
		Filename:  resp.Filename,
		Message:   resp.Message,
	})
}

func (h *mockHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.svc.DeleteFile(r.Context(), sessionID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "File and embeddings deleted successfully"})
}

func (h *mockHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "Invalid request body: " + err.Error()})
		return
	}
	if req.Language == "" {
		req.Language = string(docchat.DefaultLanguage)
	}

	ask := docchat.AskRequest{Text: req.Text, Language: docchat.Language(req.Language)}
	if req.SessionID != nil {
		ask.SessionID = *req.SessionID
	}
	resp, err := h.svc.Ask(r.Context(), ask)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := askResponse{
		Answer:   resp.Answer,
		Sources:  resp.Sources,
		Language: string(resp.Language),
	}
	if resp.SessionID != "" {
		out.SessionID = &resp.SessionID
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *mockHandler) writeError(w http.ResponseWriter, err error) {
	var se *docchat.ServerError
	if errors.As(err, &se) {
		writeJSON(w, se.Status, map[string]string{"detail": se.Message})
		return
	}
	h.logger.Error("mock handler error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
