package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"docchat/internal/docchat"
	"docchat/internal/testutil"
)

func newTestEngine(t *testing.T) (*docchat.Engine, *testutil.FakeService, *testutil.MockFilesystemManager) {
	t.Helper()
	clock := testutil.FixedClock()
	store := docchat.NewStore(clock, testutil.NewPrefixedIDGenerator("msg"))
	svc := testutil.NewFakeService(clock, testutil.NewPrefixedIDGenerator("sess"))
	fsmgr := testutil.NewMockFilesystemManager()
	engine := docchat.NewEngine(store, svc, fsmgr, docchat.NewNopLogger(), clock, testutil.NewPrefixedIDGenerator("up"), docchat.Options{})
	return engine, svc, fsmgr
}

func runScript(t *testing.T, engine *docchat.Engine, script string) string {
	t.Helper()
	var out bytes.Buffer
	r := newREPL(engine, strings.NewReader(script), &out, false)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	return out.String()
}

func TestREPL_Session(t *testing.T) {
	engine, svc, fsmgr := newTestEngine(t)
	fsmgr.AddFile("/docs/handbook.txt", []byte("Employees get 20 days of leave."))

	out := runScript(t, engine, strings.Join([]string{
		"What is leave?",
		"/upload /docs/handbook.txt",
		"How many days?",
		"/lang ms",
		"Berapa hari?",
		"/deselect",
		"/quit",
		"never asked",
	}, "\n"))

	for _, want := range []string{
		"No file selected - AI will use general knowledge",
		"Answer (General knowledge): What is leave?",
		"Uploaded handbook.txt",
		"Chatting with: handbook.txt",
		"Answer (handbook.txt): How many days?",
		"[1] handbook.txt",
		"Language set to ms",
		"Jawapan (handbook.txt): Berapa hari?",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if n := svc.Calls(testutil.OpAsk); n != 3 {
		t.Errorf("ask calls = %d, want 3 (input after /quit is ignored)", n)
	}
	if _, ok := engine.Store().SelectedFileID(); ok {
		t.Error("selection kept after /deselect")
	}
}

func TestREPL_SelectDeleteAndErrors(t *testing.T) {
	engine, _, fsmgr := newTestEngine(t)
	fsmgr.AddFile("/docs/a.txt", []byte("alpha"))
	fsmgr.AddFile("/docs/b.txt", []byte("beta"))

	out := runScript(t, engine, strings.Join([]string{
		"/upload /docs/a.txt /docs/b.txt",
		"/select 1",
		"/files",
		"/delete a.txt",
		"/select nope",
		"/bogus",
		"/lang fr",
		"/clear",
	}, "\n"))

	for _, want := range []string{
		"Chatting with: a.txt",
		"Deleted a.txt",
		`Error: no file matches "nope"`,
		"Error: unknown command /bogus",
		"Error: validation failed for language",
		"Conversation cleared.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	files := engine.Store().Files()
	if len(files) != 1 || files[0].Filename != "b.txt" {
		t.Errorf("files = %+v, want only b.txt", files)
	}
	if _, ok := engine.Store().SelectedFileID(); ok {
		t.Error("deleting the selected file must clear the selection")
	}
}

func TestREPL_AskFailurePrintsApology(t *testing.T) {
	engine, svc, _ := newTestEngine(t)
	svc.FailWith(testutil.OpAsk, &docchat.ServerError{Op: "ask", Status: 500})

	out := runScript(t, engine, "hello\n")

	if !strings.Contains(out, docchat.ApologyMessage) {
		t.Errorf("output = %q, want apology", out)
	}
}

func TestREPL_DeleteAsksWhenInteractive(t *testing.T) {
	engine, svc, fsmgr := newTestEngine(t)
	fsmgr.AddFile("/docs/a.txt", []byte("alpha"))

	var out bytes.Buffer
	script := strings.Join([]string{
		"/upload /docs/a.txt",
		"/delete a.txt",
		"no",
		"/delete a.txt",
		"y",
	}, "\n")
	r := newREPL(engine, strings.NewReader(script), &out, true)
	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	for _, want := range []string{"Delete a.txt (session sess-1)?", "Cancelled.", "Deleted a.txt"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
	if n := svc.Calls(testutil.OpDelete); n != 1 {
		t.Errorf("delete calls = %d, want 1 (the first prompt was declined)", n)
	}
	if files := engine.Store().Files(); len(files) != 0 {
		t.Errorf("files = %+v, want none", files)
	}
}

func TestREPL_FailedLookupKeepsState(t *testing.T) {
	engine, svc, _ := newTestEngine(t)

	// Uploaded locally but not yet listed by the server.
	engine.Store().AddFile(docchat.FileRecord{SessionID: "fresh", Filename: "report.pdf", FileType: "pdf", FileSize: 10})
	if err := engine.Select("fresh"); err != nil {
		t.Fatal(err)
	}
	engine.Store().AddMessage(docchat.NewMessage{Role: docchat.RoleUser, Content: "summarize", SessionID: "fresh"})

	out := runScript(t, engine, "/select reprot.pdf\n")

	if !strings.Contains(out, `Error: no file matches "reprot.pdf"`) {
		t.Errorf("output = %q", out)
	}
	if n := svc.Calls(testutil.OpList); n != 1 {
		t.Errorf("list calls = %d, want 1", n)
	}
	snap := engine.Store().Snapshot()
	if len(snap.Files) != 1 || snap.Files[0].SessionID != "fresh" {
		t.Errorf("files = %+v, want the local record kept", snap.Files)
	}
	if snap.SelectedFileID != "fresh" {
		t.Errorf("selection = %q, want fresh", snap.SelectedFileID)
	}
	if len(snap.Messages) != 1 {
		t.Errorf("transcript has %d messages, want 1", len(snap.Messages))
	}
}

func TestREPL_SelectFileOnlyOnServer(t *testing.T) {
	engine, svc, _ := newTestEngine(t)
	engine.Store().AddFile(docchat.FileRecord{SessionID: "fresh", Filename: "report.pdf", FileType: "pdf", FileSize: 10})

	content := "uploaded from another machine"
	if _, err := svc.Memory().UploadFile(context.Background(), docchat.UploadRequest{
		Filename: "remote.txt",
		Size:     int64(len(content)),
		Content:  strings.NewReader(content),
	}); err != nil {
		t.Fatal(err)
	}

	out := runScript(t, engine, "/select remote.txt\n")

	if !strings.Contains(out, "Chatting with: remote.txt") {
		t.Errorf("output = %q", out)
	}
	files := engine.Store().Files()
	if len(files) != 2 || files[0].SessionID != "fresh" || files[1].Filename != "remote.txt" {
		t.Errorf("files = %+v, want the local record plus remote.txt", files)
	}
}
