package docchat_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"docchat/internal/docchat"
	"docchat/internal/testutil"
)

// harness wires an Engine to in-memory collaborators. Ids from each source carry a
// distinct prefix: messages "msg-N", remote sessions "sess-N", upload attempts "up-N".
type harness struct {
	clock   *testutil.StubClock
	store   *docchat.Store
	service *testutil.FakeService
	fsmgr   *testutil.MockFilesystemManager
	engine  *docchat.Engine
}

// serviceTime is the clock of the fake remote, distinct from the local clock so tests
// can tell server-side records from locally synthesized ones.
var serviceTime = time.Date(2024, 2, 1, 9, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, opts docchat.Options) *harness {
	t.Helper()

	clock := testutil.FixedClock()
	store := docchat.NewStore(clock, testutil.NewPrefixedIDGenerator("msg"))
	svc := testutil.NewFakeService(testutil.NewStubClock(serviceTime), testutil.NewPrefixedIDGenerator("sess"))
	fsmgr := testutil.NewMockFilesystemManager()
	engine := docchat.NewEngine(store, svc, fsmgr, docchat.NewNopLogger(), clock, testutil.NewPrefixedIDGenerator("up"), opts)

	return &harness{
		clock:   clock,
		store:   store,
		service: svc,
		fsmgr:   fsmgr,
		engine:  engine,
	}
}

// seed stores a document on the remote without counting it as a call and adds the
// resulting record to the local inventory.
func (h *harness) seed(t *testing.T, filename, content string) docchat.FileRecord {
	t.Helper()

	resp, err := h.service.Memory().UploadFile(context.Background(), docchat.UploadRequest{
		Filename: filename,
		Size:     int64(len(content)),
		Content:  strings.NewReader(content),
	})
	require.NoError(t, err)

	files, err := h.service.Memory().ListFiles(context.Background())
	require.NoError(t, err)
	for _, f := range files {
		if f.SessionID == resp.SessionID {
			require.True(t, h.store.AddFile(f))
			return f
		}
	}
	require.FailNow(t, "seeded file not listed", filename)
	return docchat.FileRecord{}
}

func record(id, name string) docchat.FileRecord {
	return docchat.FileRecord{
		SessionID: id,
		Filename:  name,
		FileType:  strings.TrimPrefix(name[strings.LastIndex(name, "."):], "."),
		FileSize:  100,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func contents(msgs []docchat.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
