package execution

import (
	"errors"
	"fmt"
)

// ErrFailure matches every *Failure via errors.Is.
var ErrFailure = errors.New("execution failure")

// Reason classifies why a command could not produce an Outcome.
type Reason string

const (
	// ReasonNotFound means the program binary could not be located
	ReasonNotFound Reason = "not_found"
	// ReasonTimeout means the command exceeded its timeout
	ReasonTimeout Reason = "timeout"
	// ReasonCanceled means the caller's context was canceled
	ReasonCanceled Reason = "canceled"
	// ReasonUnreachable means the target behind the command is gone
	ReasonUnreachable Reason = "unreachable"
	// ReasonStart covers any other failure to start or wait on the process
	ReasonStart Reason = "start"
)

// Failure is a classified execution failure.
type Failure struct {
	Reason  Reason
	Command string
	Err     error
}

// NewFailure creates a Failure for the given command description.
func NewFailure(reason Reason, command string, err error) *Failure {
	return &Failure{Reason: reason, Command: command, Err: err}
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("execution failure (%s) running %q: %v", f.Reason, f.Command, f.Err)
	}
	return fmt.Sprintf("execution failure (%s) running %q", f.Reason, f.Command)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Is reports whether target is ErrFailure.
func (f *Failure) Is(target error) bool {
	return target == ErrFailure
}

// IsTimeout returns true if err is a Failure caused by a timeout.
func IsTimeout(err error) bool {
	return hasReason(err, ReasonTimeout)
}

// IsUnreachable returns true if err is a Failure caused by a lost target.
func IsUnreachable(err error) bool {
	return hasReason(err, ReasonUnreachable)
}

func hasReason(err error, reason Reason) bool {
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Reason == reason
	}
	return false
}
