package app

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"docchat/internal/database"
	"docchat/internal/docchat"
)

func fileRecord(id string) docchat.FileRecord {
	return docchat.FileRecord{
		SessionID: id,
		Filename:  id + ".pdf",
		FileType:  "pdf",
		FileSize:  100,
		CreatedAt: time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
	}
}

func loadState(t *testing.T, state docchat.StateStore) *docchat.PersistedState {
	t.Helper()
	ps, err := state.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return ps
}

func loadFiles(t *testing.T, state docchat.StateStore) []docchat.FileRecord {
	t.Helper()
	return loadState(t, state).Files
}

func TestStatePersister_DropsOlderSnapshot(t *testing.T) {
	store := docchat.NewStore(docchat.RealClock{}, docchat.UUIDGenerator{})
	state := database.NewMemoryStateStore()
	p := newStatePersister(state, docchat.NewNopLogger(), store.Snapshot())

	store.AddFile(fileRecord("a"))
	older := store.Snapshot()
	store.AddFile(fileRecord("b"))
	newer := store.Snapshot()

	p.observe(newer)
	p.observe(older)

	if files := loadFiles(t, state); len(files) != 2 {
		t.Errorf("saved %d files, want 2: %+v", len(files), files)
	}
	if n := state.Saves(); n != 1 {
		t.Errorf("Saves() = %d, want 1", n)
	}
}

func TestStatePersister_LateDeliveryFromRacingTransition(t *testing.T) {
	store := docchat.NewStore(docchat.RealClock{}, docchat.UUIDGenerator{})
	store.AddFile(fileRecord("a"))

	state := database.NewMemoryStateStore()
	p := newStatePersister(state, docchat.NewNopLogger(), store.Snapshot())

	// The first delivery is held until after a later transition has been persisted.
	var (
		once    sync.Once
		entered = make(chan struct{})
		release = make(chan struct{})
	)
	store.Subscribe(func(snap docchat.Snapshot) {
		held := false
		once.Do(func() { held = true })
		if held {
			close(entered)
			<-release
		}
		p.observe(snap)
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		store.SetUploadProgress("up-1", 100)
	}()
	<-entered

	store.AddFile(fileRecord("b"))
	close(release)
	<-done

	files := loadFiles(t, state)
	if len(files) != 2 {
		t.Fatalf("persisted %d files after racing transitions, want 2: %+v", len(files), files)
	}
	if err := p.Err(); err != nil {
		t.Errorf("Err() = %v", err)
	}
}

func TestStatePersister_ConcurrentTransitions(t *testing.T) {
	store := docchat.NewStore(docchat.RealClock{}, docchat.UUIDGenerator{})
	state := database.NewMemoryStateStore()
	p := newStatePersister(state, docchat.NewNopLogger(), store.Snapshot())
	store.Subscribe(p.observe)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.AddFile(fileRecord(fmt.Sprintf("f%02d", i)))
		}()
		go func() {
			defer wg.Done()
			attempt := fmt.Sprintf("up-%d", i)
			store.SetUploadProgress(attempt, 100)
			store.ClearUploadProgress(attempt)
		}()
	}
	wg.Wait()

	// The last transition always delivers a snapshot at least as new as any other,
	// so the saved inventory must match the store.
	saved := loadState(t, state)
	if !samePersisted(saved, store.Persisted()) {
		t.Errorf("saved %d files, store has %d", len(saved.Files), len(store.Files()))
	}
}
