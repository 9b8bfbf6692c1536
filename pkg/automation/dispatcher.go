package automation

import (
	"context"
	"fmt"
	"time"
)

// Dispatcher maps action requests onto the protocols of a session's backend
// and normalizes every outcome into an ActionResult.
type Dispatcher struct {
	observer Observer
	now      func() time.Time
}

// NewDispatcher creates a dispatcher reporting to observer.
func NewDispatcher(observer Observer) *Dispatcher {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Dispatcher{observer: observer, now: time.Now}
}

// Dispatch runs req against s. It never returns an error and never panics:
// failures are reported in the result with an ErrorKind.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, req ActionRequest) (result ActionResult) {
	start := d.now()
	result = ActionResult{
		Action:    req.Action,
		Payload:   NoPayload(),
		Timestamp: start,
	}
	if s != nil {
		result.TargetID = s.Target().ID
	}

	ctx = d.observer.ActionStarted(ctx, s, req)
	defer func() {
		if r := recover(); r != nil {
			result = failed(result, fmt.Errorf("action %s panicked: %v", req.Action, r))
			result.ErrorKind = Internal
		}
		result.Duration = d.now().Sub(start)
		d.observer.ActionFinished(ctx, s, result)
	}()

	if s == nil {
		return failed(result, ErrSessionClosed)
	}

	var payload Payload
	err := s.exclusive(ctx, func(h Handle) error {
		action, ok := s.backend.Action(req.Action)
		if !ok {
			return fmt.Errorf("%w: %q (supported: %v)", ErrUnrecognizedAction, req.Action, s.backend.Actions())
		}

		var actionErr error
		payload, actionErr = action(withCleanupReporter(ctx, d.observer, s, req.Action), h, req.Parameters)
		return actionErr
	})
	if err != nil {
		return failed(result, err)
	}

	result.Success = true
	result.Payload = payload
	if result.Payload.Kind == "" {
		result.Payload.Kind = PayloadNone
	}
	return result
}

// FailedResult is the result reported for an action that never reached
// dispatch, for example because its target could not be bound.
func FailedResult(action, targetID string, err error) ActionResult {
	return failed(ActionResult{
		Action:    action,
		TargetID:  targetID,
		Timestamp: time.Now(),
	}, err)
}

func failed(result ActionResult, err error) ActionResult {
	result.Success = false
	result.Payload = NoPayload()
	result.ErrorKind = KindOf(err)
	result.Error = err.Error()
	result.Step = StepOf(err)
	return result
}
