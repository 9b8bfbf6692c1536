package automation

import "context"

// Handle is the exclusive connection a bound session holds to its target.
type Handle interface {
	// Err returns nil while the handle is usable, and the reason once the
	// underlying process or driver connection is gone.
	Err() error

	// Close releases the handle. It is called at most once per session.
	Close(ctx context.Context) error
}

// ActionFunc runs one action protocol against a bound handle.
type ActionFunc func(ctx context.Context, h Handle, params Params) (Payload, error)

// Backend adapts one target kind to the session lifecycle.
type Backend interface {
	// Kind returns the target kind served by this backend.
	Kind() Kind

	// Discover enumerates the currently available targets.
	Discover(ctx context.Context) (Discovery, error)

	// Bind acquires a handle for the target.
	Bind(ctx context.Context, target Target) (Handle, error)

	// Action looks up a recognized action by name.
	Action(name string) (ActionFunc, bool)

	// Actions lists the recognized action names.
	Actions() []string
}

// Preflighter is implemented by backends that can verify their external tool
// is available before any target is touched.
type Preflighter interface {
	Preflight(ctx context.Context) (string, error)
}

// Exclusiver is implemented by backends that report whether a target can back
// only one live session at a time. Backends without it are exclusive.
type Exclusiver interface {
	Exclusive() bool
}

func exclusive(b Backend) bool {
	if e, ok := b.(Exclusiver); ok {
		return e.Exclusive()
	}
	return true
}
