package automation

import (
	"context"
)

// Observer receives lifecycle notifications from the controller. The core
// never prints; presentation and metrics are observers.
type Observer interface {
	DiscoveryCompleted(d Discovery)
	SessionBound(s *Session)
	SessionReleased(s *Session, err error)
	// ActionStarted may return a derived context (e.g. carrying a span)
	// that is used for the rest of the dispatch.
	ActionStarted(ctx context.Context, s *Session, req ActionRequest) context.Context
	ActionFinished(ctx context.Context, s *Session, result ActionResult)
	CleanupFailed(ctx context.Context, s *Session, action, step string, err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) DiscoveryCompleted(Discovery)                                   {}
func (NopObserver) SessionBound(*Session)                                          {}
func (NopObserver) SessionReleased(*Session, error)                                {}
func (NopObserver) ActionFinished(context.Context, *Session, ActionResult)         {}
func (NopObserver) CleanupFailed(context.Context, *Session, string, string, error) {}
func (NopObserver) ActionStarted(ctx context.Context, _ *Session, _ ActionRequest) context.Context {
	return ctx
}

// MultiObserver fans notifications out to each observer in order.
type MultiObserver []Observer

func (m MultiObserver) DiscoveryCompleted(d Discovery) {
	for _, o := range m {
		o.DiscoveryCompleted(d)
	}
}

func (m MultiObserver) SessionBound(s *Session) {
	for _, o := range m {
		o.SessionBound(s)
	}
}

func (m MultiObserver) SessionReleased(s *Session, err error) {
	for _, o := range m {
		o.SessionReleased(s, err)
	}
}

func (m MultiObserver) ActionStarted(ctx context.Context, s *Session, req ActionRequest) context.Context {
	for _, o := range m {
		ctx = o.ActionStarted(ctx, s, req)
	}
	return ctx
}

func (m MultiObserver) ActionFinished(ctx context.Context, s *Session, result ActionResult) {
	for _, o := range m {
		o.ActionFinished(ctx, s, result)
	}
}

func (m MultiObserver) CleanupFailed(ctx context.Context, s *Session, action, step string, err error) {
	for _, o := range m {
		o.CleanupFailed(ctx, s, action, step, err)
	}
}

// Logger is the subset of pkg/logging.Logger used by LogObserver.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// LogObserver writes lifecycle notifications to a Logger.
type LogObserver struct {
	logger Logger
}

// NewLogObserver creates an observer that logs through logger.
func NewLogObserver(logger Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) DiscoveryCompleted(d Discovery) {
	o.logger.Infof("discovered %d %s target(s) %v", d.Len(), d.Kind(), d.IDs())
	if d.Skipped() > 0 {
		o.logger.Warnf("skipped %d unparseable %s listing entries", d.Skipped(), d.Kind())
	}
	if d.Filtered() > 0 {
		o.logger.Debugf("filtered out %d %s target(s)", d.Filtered(), d.Kind())
	}
}

func (o *LogObserver) SessionBound(s *Session) {
	o.logger.Infof("session %s bound to %s %q", s.ID(), s.Target().Kind, s.Target().ID)
}

func (o *LogObserver) SessionReleased(s *Session, err error) {
	if err != nil {
		o.logger.Warnf("session %s released with error: %v", s.ID(), err)
		return
	}
	o.logger.Infof("session %s released", s.ID())
}

func (o *LogObserver) ActionStarted(ctx context.Context, s *Session, req ActionRequest) context.Context {
	o.logger.Debugf("session %s: %s %v", sessionID(s), req.Action, req.Parameters)
	return ctx
}

func (o *LogObserver) ActionFinished(_ context.Context, s *Session, result ActionResult) {
	if result.Success {
		o.logger.Infof("session %s: %s succeeded in %s", sessionID(s), result.Action, result.Duration)
		return
	}
	o.logger.Errorf("session %s: %s failed (%s): %s", sessionID(s), result.Action, result.ErrorKind, result.Error)
}

func (o *LogObserver) CleanupFailed(_ context.Context, s *Session, action, step string, err error) {
	o.logger.Warnf("session %s: %s cleanup step %q failed: %v", sessionID(s), action, step, err)
}

func sessionID(s *Session) string {
	if s == nil {
		return "-"
	}
	return s.ID()
}

type observerKey struct{}

type cleanupReporter struct {
	observer Observer
	session  *Session
	action   string
}

// ReportCleanupFailure records a best-effort cleanup step that failed. It
// never changes the outcome of the running action.
func ReportCleanupFailure(ctx context.Context, step string, err error) {
	if err == nil {
		return
	}
	if r, ok := ctx.Value(observerKey{}).(*cleanupReporter); ok {
		r.observer.CleanupFailed(ctx, r.session, r.action, step, err)
	}
}

func withCleanupReporter(ctx context.Context, observer Observer, s *Session, action string) context.Context {
	return context.WithValue(ctx, observerKey{}, &cleanupReporter{observer: observer, session: s, action: action})
}
