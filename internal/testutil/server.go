package testutil

import (
	"net/http/httptest"
	"testing"

	"docchat/internal/docchat"
	"docchat/internal/remote"
)

// NewFakeServer starts an HTTP server speaking the document chat API, backed by svc.
// It returns the server and the API base URL to hand to remote.NewHTTPService.
// The server is closed when the test completes.
func NewFakeServer(t *testing.T, svc docchat.RemoteService) (*httptest.Server, string) {
	t.Helper()

	srv := httptest.NewServer(remote.NewMockHandler(svc, docchat.NewNopLogger()))
	t.Cleanup(srv.Close)
	return srv, srv.URL + "/api"
}
