package testutil

import (
	"context"
	"sync"

	"docchat/internal/docchat"
	"docchat/internal/remote"
)

// Operation names accepted by FakeService.FailWith and FakeService.Calls.
const (
	OpUpload = "upload"
	OpList   = "list"
	OpDelete = "delete"
	OpAsk    = "ask"
	OpHealth = "health"
)

// FakeService is a docchat.RemoteService for tests. It delegates to a
// remote.MemoryService and adds call counting, failure injection and the ability to
// hold Ask calls in flight. Safe for concurrent use.
type FakeService struct {
	mem *remote.MemoryService

	mu      sync.Mutex
	calls   map[string]int
	errs    map[string]error
	asks    []docchat.AskRequest
	uploads []string
	gate    chan struct{}
	started chan docchat.AskRequest
}

var _ docchat.RemoteService = (*FakeService)(nil)

// NewFakeService creates a FakeService whose session ids come from idgen.
func NewFakeService(clock docchat.Clock, idgen docchat.IDGenerator) *FakeService {
	return &FakeService{
		mem:   remote.NewMemoryService(clock, idgen),
		calls: make(map[string]int),
		errs:  make(map[string]error),
	}
}

// Memory exposes the backing store, e.g. to seed files without counting calls.
func (f *FakeService) Memory() *remote.MemoryService {
	return f.mem
}

// FailWith makes every later call of op return err. A nil err restores normal behavior.
func (f *FakeService) FailWith(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// Calls reports how many times op was invoked.
func (f *FakeService) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// TotalCalls reports the number of calls across all operations.
func (f *FakeService) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

// Asks returns every AskRequest received, in arrival order.
func (f *FakeService) Asks() []docchat.AskRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docchat.AskRequest(nil), f.asks...)
}

// Uploads returns the filenames of every upload attempt, in arrival order.
func (f *FakeService) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

// HoldAsks makes Ask block until release is called (or its context ends). Each held
// request is sent on started as soon as it arrives.
func (f *FakeService) HoldAsks() (started <-chan docchat.AskRequest, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	gate := make(chan struct{})
	ch := make(chan docchat.AskRequest, 64)
	f.gate = gate
	f.started = ch

	var once sync.Once
	return ch, func() { once.Do(func() { close(gate) }) }
}

func (f *FakeService) enter(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	return f.errs[op]
}

func (f *FakeService) UploadFile(ctx context.Context, req docchat.UploadRequest) (*docchat.UploadResponse, error) {
	f.mu.Lock()
	f.uploads = append(f.uploads, req.Filename)
	f.mu.Unlock()

	if err := f.enter(OpUpload); err != nil {
		return nil, err
	}
	return f.mem.UploadFile(ctx, req)
}

func (f *FakeService) ListFiles(ctx context.Context) ([]docchat.FileRecord, error) {
	if err := f.enter(OpList); err != nil {
		return nil, err
	}
	return f.mem.ListFiles(ctx)
}

func (f *FakeService) DeleteFile(ctx context.Context, sessionID string) error {
	if err := f.enter(OpDelete); err != nil {
		return err
	}
	return f.mem.DeleteFile(ctx, sessionID)
}

func (f *FakeService) Ask(ctx context.Context, req docchat.AskRequest) (*docchat.AskResponse, error) {
	f.mu.Lock()
	f.calls[OpAsk]++
	f.asks = append(f.asks, req)
	gate, started := f.gate, f.started
	f.mu.Unlock()

	if gate != nil {
		started <- req
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &docchat.NetworkError{Op: "ask", Err: ctx.Err()}
		}
	}

	f.mu.Lock()
	err := f.errs[OpAsk]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.mem.Ask(ctx, req)
}

func (f *FakeService) Health(ctx context.Context) error {
	if err := f.enter(OpHealth); err != nil {
		return err
	}
	return f.mem.Health(ctx)
}
