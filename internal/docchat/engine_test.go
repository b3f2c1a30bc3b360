package docchat_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/docchat"
	"docchat/internal/remote"
	"docchat/internal/testutil"
)

func TestEngine_UploadPaths(t *testing.T) {
	setup := func(t *testing.T) *harness {
		h := newHarness(t, docchat.Options{})
		h.fsmgr.AddDirectory("/docs")
		h.fsmgr.AddFile("/docs/a.pdf", []byte("%PDF a"))
		h.fsmgr.AddFile("/docs/b.txt", []byte("b"))
		h.fsmgr.AddFile("/docs/c.png", []byte("c"))
		h.fsmgr.AddFile("/docs/sub/d.docx", []byte("d"))
		h.fsmgr.AddFile("/other/x.png", []byte("x"))
		return h
	}
	names := func(results []docchat.UploadResult) []string {
		out := make([]string, 0, len(results))
		for _, r := range results {
			out = append(out, r.File.Name)
		}
		return out
	}

	t.Run("top level of a directory", func(t *testing.T) {
		h := setup(t)

		results := h.engine.UploadPaths(context.Background(), []string{"/docs", "/missing.pdf", "/other/x.png"}, false)

		assert.Equal(t, []string{"/missing.pdf", "a.pdf", "b.txt", "x.png"}, names(results))
		assert.Error(t, results[0].Err, "unresolvable path is reported")
		assert.NoError(t, results[1].Err)
		assert.NoError(t, results[2].Err)
		assert.True(t, docchat.IsValidation(results[3].Err), "explicitly named unsupported files are attempted and rejected")
		assert.Equal(t, []string{"a.pdf", "b.txt"}, h.service.Uploads())
	})

	t.Run("recursive", func(t *testing.T) {
		h := setup(t)

		results := h.engine.UploadPaths(context.Background(), []string{"/docs"}, true)

		assert.Equal(t, []string{"a.pdf", "b.txt", "d.docx"}, names(results))
		for _, r := range results {
			assert.NoError(t, r.Err)
		}
		assert.Len(t, h.store.Files(), 3)
	})
}

func TestEngine_SetLanguage(t *testing.T) {
	h := newHarness(t, docchat.Options{})

	lang, err := h.engine.SetLanguage("MS")
	require.NoError(t, err)
	assert.Equal(t, docchat.LanguageMalay, lang)
	assert.Equal(t, docchat.LanguageMalay, h.store.Language())

	_, err = h.engine.SetLanguage("fr")
	assert.True(t, docchat.IsValidation(err))
	assert.Equal(t, docchat.LanguageMalay, h.store.Language())
}

func TestEngine_ClearChatKeepsSelection(t *testing.T) {
	h := newHarness(t, docchat.Options{})
	rec := h.seed(t, "a.txt", "alpha")
	require.NoError(t, h.engine.Select(rec.SessionID))
	_, err := h.engine.Ask(context.Background(), "q")
	require.NoError(t, err)

	h.engine.ClearChat()

	assert.Empty(t, h.store.Messages())
	id, _ := h.store.SelectedFileID()
	assert.Equal(t, rec.SessionID, id)
}

// The full flow over HTTP: the engine talks to the wire client, which talks to the
// mock server backed by an in-memory service.
func TestEngine_OverHTTP(t *testing.T) {
	backend := testutil.NewFakeService(testutil.NewStubClock(serviceTime), testutil.NewPrefixedIDGenerator("sess"))
	_, baseURL := testutil.NewFakeServer(t, backend)
	client := remote.NewHTTPService(baseURL, &http.Client{Timeout: 5 * time.Second}, docchat.NewNopLogger())

	clock := testutil.FixedClock()
	store := docchat.NewStore(clock, testutil.NewPrefixedIDGenerator("msg"))
	fsmgr := testutil.NewMockFilesystemManager()
	fsmgr.AddFileWithType("/docs/policy.txt", []byte("Remote work is allowed on Fridays."), "text/plain; charset=utf-8")
	engine := docchat.NewEngine(store, client, fsmgr, docchat.NewNopLogger(), clock, testutil.NewPrefixedIDGenerator("up"),
		docchat.Options{Upload: docchat.UploaderOptions{Reconcile: true}})
	ctx := context.Background()

	require.NoError(t, engine.Health(ctx))

	results := engine.UploadPaths(ctx, []string{"/docs/policy.txt"}, false)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	rec := results[0].Record
	assert.Equal(t, "sess-1", rec.SessionID)
	assert.True(t, serviceTime.Equal(rec.CreatedAt), "reconciled record carries server time, got %v", rec.CreatedAt)

	ex, err := engine.Ask(ctx, "When is remote work allowed?")
	require.NoError(t, err)
	require.NoError(t, ex.Err)
	assert.Equal(t, "Answer (policy.txt): When is remote work allowed?", ex.Answer.Content)
	require.Len(t, ex.Sources, 1)
	assert.Equal(t, "Remote work is allowed on Fridays.", ex.Sources[0].ContentPreview)

	require.NoError(t, engine.Delete(ctx, rec.SessionID))
	assert.Empty(t, store.Files())
	require.NoError(t, engine.Delete(ctx, rec.SessionID), "deleting twice is not an error")

	require.NoError(t, engine.Refresh(ctx))
	assert.Empty(t, store.Files())
}
