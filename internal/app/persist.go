package app

import (
	"fmt"
	"slices"
	"sync"

	"docchat/internal/docchat"
)

// statePersister saves the persisted subset of the Store whenever it changes.
// Transitions that only touch the transcript, selection or upload progress cause no write.
// Snapshots older than one already observed are dropped, so a delivery that lost a race
// never overwrites newer state.
type statePersister struct {
	state  docchat.StateStore
	logger docchat.Logger

	mu       sync.Mutex
	revision uint64
	last     *docchat.PersistedState
	err      error
}

// newStatePersister starts from initial, the snapshot the Store was restored to.
func newStatePersister(state docchat.StateStore, logger docchat.Logger, initial docchat.Snapshot) *statePersister {
	return &statePersister{
		state:    state,
		logger:   logger,
		revision: initial.Revision,
		last:     initial.Persisted(),
	}
}

// observe is registered with Store.Subscribe.
func (p *statePersister) observe(snap docchat.Snapshot) {
	next := snap.Persisted()

	p.mu.Lock()
	defer p.mu.Unlock()

	if snap.Revision <= p.revision {
		p.logger.Debug("dropping stale state snapshot", "revision", snap.Revision, "seen", p.revision)
		return
	}
	p.revision = snap.Revision

	if samePersisted(p.last, next) {
		return
	}
	if err := p.state.Save(next); err != nil {
		p.logger.Error("saving state failed", "error", err)
		if p.err == nil {
			p.err = fmt.Errorf("saving state: %w", err)
		}
		return
	}
	p.last = next
	p.logger.Debug("state saved", "files", len(next.Files), "language", string(next.Language))
}

// Err returns the first save failure, if any.
func (p *statePersister) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func samePersisted(a, b *docchat.PersistedState) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Language != b.Language {
		return false
	}
	return slices.EqualFunc(a.Files, b.Files, func(x, y docchat.FileRecord) bool {
		return x.SessionID == y.SessionID &&
			x.Filename == y.Filename &&
			x.FileType == y.FileType &&
			x.FileSize == y.FileSize &&
			x.CreatedAt.Equal(y.CreatedAt)
	})
}
