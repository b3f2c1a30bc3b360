package docchat

import (
	"fmt"
	"sync"
)

// UploadSlot is the progress of one upload attempt, keyed by attempt id.
type UploadSlot struct {
	AttemptID string
	Percent   int
}

// Snapshot is an immutable copy of the Store taken under its lock.
type Snapshot struct {
	Files          []FileRecord
	SelectedFileID string
	Messages       []ChatMessage
	Language       Language
	Uploads        []UploadSlot
	Epoch          uint64
	// Revision counts state changes. Subscribers may receive snapshots out of order
	// when transitions race; a higher Revision is always the newer state.
	Revision       uint64
}

// Persisted returns the part of the snapshot that survives a restart.
func (s Snapshot) Persisted() *PersistedState {
	files := make([]FileRecord, len(s.Files))
	copy(files, s.Files)
	return &PersistedState{
		Version:  CurrentStateVersion,
		Language: s.Language,
		Files:    files,
	}
}

// SelectedFile returns the selected record, if the selection names one in the inventory.
func (s Snapshot) SelectedFile() (FileRecord, bool) {
	if s.SelectedFileID == "" {
		return FileRecord{}, false
	}
	for _, f := range s.Files {
		if f.SessionID == s.SelectedFileID {
			return f, true
		}
	}
	return FileRecord{}, false
}

// Store is the single source of truth for client state: file inventory, selection,
// transcript, language and upload progress.
//
// All mutation goes through the transition methods below. Each transition runs under
// one lock, so transitions never interleave. Subscribers are notified after the lock
// is released.
//
// The raw primitives (RemoveFile, SetSelectedFile) do not maintain the selection/chat
// coupling; SelectFile, DeleteFile and SetFiles do.
type Store struct {
	mu    sync.Mutex
	clock Clock
	idgen IDGenerator

	files    []FileRecord
	selected string
	messages []ChatMessage
	language Language
	uploads  []UploadSlot

	// epoch increments every time the transcript is cleared.
	epoch uint64
	// rev increments on every transition that changes state.
	rev   uint64

	nextSub int
	subs    map[int]func(Snapshot)
}

// NewStore creates an empty Store with the default language.
func NewStore(clock Clock, idgen IDGenerator) *Store {
	return &Store{
		clock:    clock,
		idgen:    idgen,
		files:    []FileRecord{},
		language: DefaultLanguage,
		subs:     make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to receive a snapshot after every transition.
// Deliveries happen outside the lock, so concurrent transitions may reach fn out of
// order; compare Snapshot.Revision to discard stale ones. The returned function
// unregisters fn.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// update runs fn under the lock and notifies subscribers if fn reports a change.
func (s *Store) update(fn func() bool) {
	s.mu.Lock()
	changed := fn()
	if changed {
		s.rev++
	}
	if !changed || len(s.subs) == 0 {
		s.mu.Unlock()
		return
	}
	snap := s.snapshotLocked()
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(snap)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	files := make([]FileRecord, len(s.files))
	copy(files, s.files)
	messages := make([]ChatMessage, len(s.messages))
	copy(messages, s.messages)
	uploads := make([]UploadSlot, len(s.uploads))
	copy(uploads, s.uploads)
	return Snapshot{
		Files:          files,
		SelectedFileID: s.selected,
		Messages:       messages,
		Language:       s.language,
		Uploads:        uploads,
		Epoch:          s.epoch,
		Revision:       s.rev,
	}
}

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Chat transcript

// AddMessage appends a message with a fresh id and the current time.
func (s *Store) AddMessage(m NewMessage) ChatMessage {
	var msg ChatMessage
	s.update(func() bool {
		msg = s.appendLocked(m)
		return true
	})
	return msg
}

func (s *Store) appendLocked(m NewMessage) ChatMessage {
	msg := ChatMessage{
		ID:        s.idgen.New(),
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: s.clock.Now(),
		SessionID: m.SessionID,
	}
	s.messages = append(s.messages, msg)
	return msg
}

// beginExchange captures the selection, language and epoch for a question and appends
// the user's message bound to that selection, all in one transition.
func (s *Store) beginExchange(content string) (ChatMessage, Language, uint64) {
	var (
		msg   ChatMessage
		lang  Language
		epoch uint64
	)
	s.update(func() bool {
		lang = s.language
		epoch = s.epoch
		msg = s.appendLocked(NewMessage{Role: RoleUser, Content: content, SessionID: s.selected})
		return true
	})
	return msg, lang, epoch
}

// appendIfEpoch appends m only if the transcript has not been cleared since epoch.
func (s *Store) appendIfEpoch(epoch uint64, m NewMessage) (ChatMessage, bool) {
	var (
		msg ChatMessage
		ok  bool
	)
	s.update(func() bool {
		if s.epoch != epoch {
			return false
		}
		msg = s.appendLocked(m)
		ok = true
		return true
	})
	return msg, ok
}

// ClearChat empties the transcript.
func (s *Store) ClearChat() {
	s.update(func() bool {
		s.clearChatLocked()
		return true
	})
}

func (s *Store) clearChatLocked() {
	s.messages = nil
	s.epoch++
}

// Messages returns a copy of the transcript in append order.
func (s *Store) Messages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Epoch returns the transcript generation; it changes whenever the transcript is cleared.
func (s *Store) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Language

// SetLanguage sets the language preference. Setting the current value is a no-op.
func (s *Store) SetLanguage(lang Language) {
	s.update(func() bool {
		if s.language == lang {
			return false
		}
		s.language = lang
		return true
	})
}

// Language returns the current language preference.
func (s *Store) Language() Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

// File inventory

func (s *Store) indexLocked(sessionID string) int {
	for i, f := range s.files {
		if f.SessionID == sessionID {
			return i
		}
	}
	return -1
}

// AddFile appends a record to the inventory. A record whose SessionID is already
// present is ignored and AddFile returns false.
func (s *Store) AddFile(rec FileRecord) bool {
	var added bool
	s.update(func() bool {
		if s.indexLocked(rec.SessionID) >= 0 {
			return false
		}
		s.files = append(s.files, rec)
		added = true
		return true
	})
	return added
}

// RemoveFile drops a record from the inventory. Removing an unknown id is a no-op.
// It does not touch the selection; use DeleteFile for that.
func (s *Store) RemoveFile(sessionID string) bool {
	var removed bool
	s.update(func() bool {
		removed = s.removeLocked(sessionID)
		return removed
	})
	return removed
}

func (s *Store) removeLocked(sessionID string) bool {
	i := s.indexLocked(sessionID)
	if i < 0 {
		return false
	}
	files := make([]FileRecord, 0, len(s.files)-1)
	files = append(files, s.files[:i]...)
	files = append(files, s.files[i+1:]...)
	s.files = files
	return true
}

// DeleteFile removes a record and, if it was selected, clears the selection and the
// transcript in the same transition. The selection is cleared even when the record
// was already gone.
func (s *Store) DeleteFile(sessionID string) bool {
	var removed bool
	s.update(func() bool {
		removed = s.removeLocked(sessionID)
		if s.selected == sessionID && sessionID != "" {
			s.selected = ""
			s.clearChatLocked()
			return true
		}
		return removed
	})
	return removed
}

// SetFiles replaces the inventory wholesale, keeping the first record for each
// SessionID. A selection that no longer exists is cleared together with the transcript.
func (s *Store) SetFiles(records []FileRecord) {
	s.update(func() bool {
		s.files = dedupe(records)
		if s.selected != "" && s.indexLocked(s.selected) < 0 {
			s.selected = ""
			s.clearChatLocked()
		}
		return true
	})
}

// ReconcileFile replaces the record with the same SessionID by rec.
// It returns false if no such record exists.
func (s *Store) ReconcileFile(rec FileRecord) bool {
	var replaced bool
	s.update(func() bool {
		i := s.indexLocked(rec.SessionID)
		if i < 0 || s.files[i] == rec {
			return false
		}
		files := make([]FileRecord, len(s.files))
		copy(files, s.files)
		files[i] = rec
		s.files = files
		replaced = true
		return true
	})
	return replaced
}

// Files returns a copy of the inventory in insertion order.
func (s *Store) Files() []FileRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FileRecord, len(s.files))
	copy(out, s.files)
	return out
}

// Selection

// SetSelectedFile sets the selection without validating it and without clearing the
// transcript. An empty id clears the selection.
func (s *Store) SetSelectedFile(sessionID string) {
	s.update(func() bool {
		if s.selected == sessionID {
			return false
		}
		s.selected = sessionID
		return true
	})
}

// SelectFile clears the transcript and selects sessionID, which must name a file in
// the inventory. An empty id deselects.
func (s *Store) SelectFile(sessionID string) error {
	var err error
	s.update(func() bool {
		if sessionID != "" && s.indexLocked(sessionID) < 0 {
			err = &ValidationError{Field: "session_id", Reason: fmt.Sprintf("no file with session %q", sessionID)}
			return false
		}
		s.clearChatLocked()
		s.selected = sessionID
		return true
	})
	return err
}

// SelectedFileID returns the selection, if any.
func (s *Store) SelectedFileID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != ""
}

// Upload progress

// SetUploadProgress records percent (clamped to 0..100) for an upload attempt.
func (s *Store) SetUploadProgress(attemptID string, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	s.update(func() bool {
		for i := range s.uploads {
			if s.uploads[i].AttemptID == attemptID {
				if s.uploads[i].Percent == percent {
					return false
				}
				s.uploads[i].Percent = percent
				return true
			}
		}
		s.uploads = append(s.uploads, UploadSlot{AttemptID: attemptID, Percent: percent})
		return true
	})
}

// ClearUploadProgress forgets an upload attempt. Unknown ids are ignored.
func (s *Store) ClearUploadProgress(attemptID string) {
	s.update(func() bool {
		for i := range s.uploads {
			if s.uploads[i].AttemptID == attemptID {
				s.uploads = append(s.uploads[:i:i], s.uploads[i+1:]...)
				return true
			}
		}
		return false
	})
}

// UploadProgress returns the progress of the most recently started upload still in flight.
func (s *Store) UploadProgress() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.uploads) == 0 {
		return 0, false
	}
	return s.uploads[len(s.uploads)-1].Percent, true
}

// Uploads returns every tracked upload attempt in start order.
func (s *Store) Uploads() []UploadSlot {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]UploadSlot, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// Persistence

// Persisted returns the subset of state that survives a restart.
func (s *Store) Persisted() *PersistedState {
	return s.Snapshot().Persisted()
}

// Restore loads a persisted state. Transcript, selection and upload progress are
// reset regardless of their current values.
func (s *Store) Restore(ps *PersistedState) {
	s.update(func() bool {
		s.language = ps.Language
		if s.language != LanguageEnglish && s.language != LanguageMalay {
			s.language = DefaultLanguage
		}
		s.files = dedupe(ps.Files)
		s.selected = ""
		s.uploads = nil
		s.clearChatLocked()
		return true
	})
}

func dedupe(records []FileRecord) []FileRecord {
	seen := make(map[string]bool, len(records))
	out := make([]FileRecord, 0, len(records))
	for _, r := range records {
		if seen[r.SessionID] {
			continue
		}
		seen[r.SessionID] = true
		out = append(out, r)
	}
	return out
}
