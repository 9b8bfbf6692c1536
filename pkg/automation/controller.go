package automation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Default values for the controller
const (
	DefaultReleaseTimeout = 10 * time.Second
	DefaultConcurrency    = 4
)

// Controller composes discovery, selection, binding, dispatch and release for
// one backend. It holds no selection state: every session is returned to the
// caller. It only tracks which targets are currently bound so that a target
// is never shared by two sessions.
type Controller struct {
	backend        Backend
	dispatcher     *Dispatcher
	observer       Observer
	concurrency    int
	releaseTimeout time.Duration

	mu    sync.Mutex
	bound map[string]struct{}
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithObserver sets the lifecycle observer.
func WithObserver(observer Observer) ControllerOption {
	return func(c *Controller) {
		if observer != nil {
			c.observer = observer
		}
	}
}

// WithConcurrency limits how many sessions RunAll drives at once.
func WithConcurrency(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithReleaseTimeout bounds handle release on lifecycle exit.
func WithReleaseTimeout(timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		if timeout > 0 {
			c.releaseTimeout = timeout
		}
	}
}

// NewController creates a controller for backend.
func NewController(backend Backend, opts ...ControllerOption) *Controller {
	c := &Controller{
		backend:        backend,
		observer:       NopObserver{},
		concurrency:    DefaultConcurrency,
		releaseTimeout: DefaultReleaseTimeout,
		bound:          make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dispatcher = NewDispatcher(c.observer)
	return c
}

// Kind returns the backend target kind.
func (c *Controller) Kind() Kind {
	return c.backend.Kind()
}

// Actions lists the actions the backend recognizes.
func (c *Controller) Actions() []string {
	return c.backend.Actions()
}

// Preflight checks that the backend's external tool is available. Backends
// without a check report an empty description.
func (c *Controller) Preflight(ctx context.Context) (string, error) {
	p, ok := c.backend.(Preflighter)
	if !ok {
		return "", nil
	}
	return p.Preflight(ctx)
}

// Discover enumerates the backend's targets.
func (c *Controller) Discover(ctx context.Context) (Discovery, error) {
	d, err := c.backend.Discover(ctx)
	if err != nil {
		return Discovery{}, fmt.Errorf("discover %s targets: %w", c.backend.Kind(), err)
	}
	c.observer.DiscoveryCompleted(d)
	return d, nil
}

// Select discovers and applies the selection rule to id (which may be empty).
func (c *Controller) Select(ctx context.Context, id string) (Target, error) {
	d, err := c.Discover(ctx)
	if err != nil {
		return Target{}, err
	}
	return d.Select(id)
}

// Bind acquires a session for target. The target must be ready and, for
// exclusive backends, not already bound by another live session of this
// controller.
func (c *Controller) Bind(ctx context.Context, target Target) (*Session, error) {
	if target.Status != StatusReady {
		return nil, fmt.Errorf("%w: %q is %s", ErrTargetUnavailable, target.ID, target.Status)
	}
	if !exclusive(c.backend) {
		return Bind(ctx, c.backend, target, c.observer)
	}

	key := string(target.Kind) + "/" + target.ID
	c.mu.Lock()
	if _, busy := c.bound[key]; busy {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrTargetBusy, target.ID)
	}
	c.bound[key] = struct{}{}
	c.mu.Unlock()

	s, err := Bind(ctx, c.backend, target, c.observer)
	if err != nil {
		c.unlease(key)
		return nil, err
	}
	s.onClose = func() { c.unlease(key) }
	return s, nil
}

func (c *Controller) unlease(key string) {
	c.mu.Lock()
	delete(c.bound, key)
	c.mu.Unlock()
}

// Dispatch runs one action on a bound session.
func (c *Controller) Dispatch(ctx context.Context, s *Session, req ActionRequest) ActionResult {
	return c.dispatcher.Dispatch(ctx, s, req)
}

// Release closes s with a bounded context that survives caller cancellation.
func (c *Controller) Release(ctx context.Context, s *Session) error {
	if s == nil {
		return nil
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.releaseTimeout)
	defer cancel()
	return s.Release(releaseCtx)
}

// WithSession selects, binds and hands a session to fn, releasing it exactly
// once on every exit path.
func (c *Controller) WithSession(ctx context.Context, id string, fn func(s *Session) error) error {
	target, err := c.Select(ctx, id)
	if err != nil {
		return err
	}

	s, err := c.Bind(ctx, target)
	if err != nil {
		return err
	}
	defer func() { _ = c.Release(ctx, s) }()

	return fn(s)
}

// Run executes one action against one target and releases it. Lifecycle
// failures (discovery, selection, binding) are returned as errors; action
// failures are reported in the result.
func (c *Controller) Run(ctx context.Context, id string, req ActionRequest) (ActionResult, error) {
	var result ActionResult
	err := c.WithSession(ctx, id, func(s *Session) error {
		result = c.Dispatch(ctx, s, req)
		return nil
	})
	return result, err
}

// RunSequence executes several actions in order on one session. Every
// request is dispatched even if an earlier one failed.
func (c *Controller) RunSequence(ctx context.Context, id string, reqs []ActionRequest) ([]ActionResult, error) {
	results := make([]ActionResult, 0, len(reqs))
	err := c.WithSession(ctx, id, func(s *Session) error {
		for _, req := range reqs {
			results = append(results, c.Dispatch(ctx, s, req))
		}
		return nil
	})
	return results, err
}

// RunAll executes req once on every ready target, each in its own session.
// Sessions run concurrently up to the configured limit. A target that fails
// to bind gets a failed result; its siblings are unaffected.
func (c *Controller) RunAll(ctx context.Context, req ActionRequest) ([]ActionResult, error) {
	d, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}

	targets := d.Ready()
	if len(targets) == 0 {
		return nil, ErrNoTargetsAvailable
	}

	results := make([]ActionResult, len(targets))
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, target := range targets {
		g.Go(func() error {
			s, bindErr := c.Bind(ctx, target)
			if bindErr != nil {
				results[i] = FailedResult(req.Action, target.ID, bindErr)
				return nil
			}
			defer func() { _ = c.Release(ctx, s) }()

			results[i] = c.Dispatch(ctx, s, req)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
