package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// fakeHandle records closes and can be killed to simulate a lost connection.
type fakeHandle struct {
	id     string
	mu     sync.Mutex
	lost   error
	closed int
}

func (h *fakeHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lost
}

func (h *fakeHandle) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *fakeHandle) kill(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lost = err
}

func (h *fakeHandle) closeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// fakeBackend serves a fixed target list and a table of actions.
type fakeBackend struct {
	kind        Kind
	targets     []Target
	skipped     int
	discoverErr error
	bindErr     error
	actions     map[string]ActionFunc

	mu      sync.Mutex
	handles map[string]*fakeHandle
	binds   int
}

func newFakeBackend(targets ...Target) *fakeBackend {
	return &fakeBackend{
		kind:    KindDevice,
		targets: targets,
		actions: map[string]ActionFunc{
			"noop": func(context.Context, Handle, Params) (Payload, error) {
				return NoPayload(), nil
			},
			"echo": func(_ context.Context, _ Handle, p Params) (Payload, error) {
				return TextPayload(p.Get("text", "")), nil
			},
		},
		handles: make(map[string]*fakeHandle),
	}
}

func (b *fakeBackend) Kind() Kind { return b.kind }

func (b *fakeBackend) Discover(context.Context) (Discovery, error) {
	if b.discoverErr != nil {
		return Discovery{}, b.discoverErr
	}
	return NewDiscovery(b.kind, b.targets, b.skipped, 0), nil
}

func (b *fakeBackend) Bind(_ context.Context, target Target) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.binds++
	if b.bindErr != nil {
		return nil, b.bindErr
	}
	h := &fakeHandle{id: target.ID}
	b.handles[target.ID] = h
	return h, nil
}

func (b *fakeBackend) Action(name string) (ActionFunc, bool) {
	fn, ok := b.actions[name]
	return fn, ok
}

func (b *fakeBackend) Actions() []string {
	names := make([]string, 0, len(b.actions))
	for name := range b.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (b *fakeBackend) Preflight(context.Context) (string, error) {
	return "fake bridge 1.0", nil
}

func (b *fakeBackend) handle(id string) *fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handles[id]
}

func (b *fakeBackend) bindCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binds
}

func device(id string, status Status) Target {
	return Target{ID: id, Status: status, Kind: KindDevice}
}

// recordingObserver captures notifications for assertions.
type recordingObserver struct {
	NopObserver
	mu       sync.Mutex
	events   []string
	cleanups []string
	results  []ActionResult
}

func (o *recordingObserver) record(format string, args ...any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, fmt.Sprintf(format, args...))
}

func (o *recordingObserver) SessionBound(s *Session) {
	o.record("bound %s", s.Target().ID)
}

func (o *recordingObserver) SessionReleased(s *Session, err error) {
	o.record("released %s err=%v", s.Target().ID, err != nil)
}

func (o *recordingObserver) ActionFinished(_ context.Context, _ *Session, result ActionResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, result)
}

func (o *recordingObserver) CleanupFailed(_ context.Context, _ *Session, action, step string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleanups = append(o.cleanups, action+"/"+step+": "+err.Error())
}

func (o *recordingObserver) snapshot() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

var errBoom = errors.New("boom")
