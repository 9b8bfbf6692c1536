package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle state of a Session.
type State string

const (
	StateUnbound State = "unbound"
	StateBound   State = "bound"
	StateClosed  State = "closed"
)

// Session is a bound, exclusive handle to exactly one target. Operations on a
// session run one at a time. Once closed, a session never reopens.
type Session struct {
	id       string
	target   Target
	backend  Backend
	observer Observer
	onClose  func()
	boundAt  time.Time

	// mu serialises dispatch and release
	mu     sync.Mutex
	state  State
	handle Handle
}

// Bind acquires a handle for target through backend and returns a bound
// session. On failure no session exists and nothing needs releasing.
func Bind(ctx context.Context, backend Backend, target Target, observer Observer) (*Session, error) {
	if observer == nil {
		observer = NopObserver{}
	}
	if target.Kind != "" && target.Kind != backend.Kind() {
		return nil, fmt.Errorf("%w: %s target %q cannot bind to %s backend",
			ErrTargetUnavailable, target.Kind, target.ID, backend.Kind())
	}

	s := &Session{
		id:       uuid.New().String(),
		target:   target,
		backend:  backend,
		observer: observer,
		state:    StateUnbound,
	}

	handle, err := backend.Bind(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("bind %s %q: %w", target.Kind, target.ID, err)
	}

	s.handle = handle
	s.state = StateBound
	s.boundAt = time.Now()
	observer.SessionBound(s)
	return s, nil
}

// ID returns the unique session id.
func (s *Session) ID() string { return s.id }

// Target returns the bound target.
func (s *Session) Target() Target { return s.target }

// BoundAt returns when the handle was acquired.
func (s *Session) BoundAt() time.Time { return s.boundAt }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Release closes the handle. It is idempotent: releasing a closed session is
// a no-op and returns nil.
func (s *Session) Release(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked(ctx, nil)
}

// closeLocked transitions to closed and closes the handle. cause is non-nil
// when the handle was found dead rather than released by the caller.
func (s *Session) closeLocked(ctx context.Context, cause error) error {
	if s.state == StateClosed {
		return nil
	}
	s.state = StateClosed

	var err error
	if s.handle != nil {
		err = s.handle.Close(ctx)
	}
	if s.onClose != nil {
		s.onClose()
	}
	if cause != nil && err == nil {
		err = cause
	}
	s.observer.SessionReleased(s, err)
	return err
}

// exclusive runs fn with the handle while holding the session lock. A dead
// handle closes the session; the next operation then fails with ErrSessionClosed.
func (s *Session) exclusive(ctx context.Context, fn func(h Handle) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateBound {
		return ErrSessionClosed
	}

	if lost := s.handle.Err(); lost != nil {
		_ = s.closeLocked(context.WithoutCancel(ctx), lost)
		return fmt.Errorf("%w: %v", ErrSessionClosed, lost)
	}

	err := fn(s.handle)

	if lost := s.handle.Err(); lost != nil {
		_ = s.closeLocked(context.WithoutCancel(ctx), lost)
	}
	return err
}
