package automation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/autopilot/pkg/execution"
)

var (
	ErrTargetNotFound      = errors.New("target not found")
	ErrAmbiguousTarget     = errors.New("ambiguous target")
	ErrNoTargetsAvailable  = errors.New("no targets available")
	ErrTargetUnavailable   = errors.New("target unavailable")
	ErrTargetBusy          = errors.New("target already bound")
	ErrSessionClosed       = errors.New("session closed")
	ErrUnrecognizedAction  = errors.New("unrecognized action")
	ErrProtocolStepFailure = errors.New("protocol step failed")
	ErrInvalidParameter    = errors.New("invalid parameter")
)

// ErrorKind is the classification carried by a failed ActionResult.
type ErrorKind string

const (
	ExecutionFailure    ErrorKind = "ExecutionFailure"
	TargetNotFound      ErrorKind = "TargetNotFound"
	AmbiguousTarget     ErrorKind = "AmbiguousTarget"
	NoTargetsAvailable  ErrorKind = "NoTargetsAvailable"
	TargetUnavailable   ErrorKind = "TargetUnavailable"
	TargetBusy          ErrorKind = "TargetBusy"
	SessionClosed       ErrorKind = "SessionClosed"
	UnrecognizedAction  ErrorKind = "UnrecognizedAction"
	ProtocolStepFailure ErrorKind = "ProtocolStepFailure"
	InvalidParameter    ErrorKind = "InvalidParameter"
	Internal            ErrorKind = "Internal"
)

// AmbiguousTargetError is returned when selection without an id finds more
// than one target. Candidates lists every discovered id in discovery order.
type AmbiguousTargetError struct {
	Candidates []string
}

func (e *AmbiguousTargetError) Error() string {
	return fmt.Sprintf("ambiguous target: %d candidates, specify one of [%s]",
		len(e.Candidates), strings.Join(e.Candidates, ", "))
}

// Is reports whether target is ErrAmbiguousTarget.
func (e *AmbiguousTargetError) Is(target error) bool {
	return target == ErrAmbiguousTarget
}

// StepError reports which step of an action protocol failed.
type StepError struct {
	Action string
	Step   string
	Err    error
}

// NewStepError wraps err as the failure of one protocol step.
func NewStepError(action, step string, err error) *StepError {
	return &StepError{Action: action, Step: step, Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %q failed: %v", e.Action, e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrProtocolStepFailure.
func (e *StepError) Is(target error) bool {
	return target == ErrProtocolStepFailure
}

// MissingParameter returns an ErrInvalidParameter error for a required key.
func MissingParameter(name string) error {
	return fmt.Errorf("%w: %q is required", ErrInvalidParameter, name)
}

// InvalidParam returns an ErrInvalidParameter error with a reason.
func InvalidParam(name, reason string) error {
	return fmt.Errorf("%w: %q %s", ErrInvalidParameter, name, reason)
}

// KindOf classifies err. A nil error has no kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSessionClosed):
		return SessionClosed
	case errors.Is(err, ErrUnrecognizedAction):
		return UnrecognizedAction
	case errors.Is(err, ErrInvalidParameter):
		return InvalidParameter
	// An executor failure inside a step is still an execution failure
	case errors.Is(err, execution.ErrFailure):
		return ExecutionFailure
	case errors.Is(err, ErrProtocolStepFailure):
		return ProtocolStepFailure
	case errors.Is(err, ErrTargetNotFound):
		return TargetNotFound
	case errors.Is(err, ErrAmbiguousTarget):
		return AmbiguousTarget
	case errors.Is(err, ErrNoTargetsAvailable):
		return NoTargetsAvailable
	case errors.Is(err, ErrTargetUnavailable):
		return TargetUnavailable
	case errors.Is(err, ErrTargetBusy):
		return TargetBusy
	default:
		return Internal
	}
}

// StepOf returns the failed protocol step recorded in err, if any.
func StepOf(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Step
	}
	return ""
}
