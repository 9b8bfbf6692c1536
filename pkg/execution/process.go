package execution

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// ProcessExecutor runs commands as local child processes.
type ProcessExecutor struct {
	defaultTimeout time.Duration
}

// Option configures a ProcessExecutor.
type Option func(*ProcessExecutor)

// WithDefaultTimeout sets the timeout used for commands without one.
func WithDefaultTimeout(timeout time.Duration) Option {
	return func(e *ProcessExecutor) {
		if timeout > 0 {
			e.defaultTimeout = timeout
		}
	}
}

// NewProcessExecutor creates a process executor.
func NewProcessExecutor(opts ...Option) *ProcessExecutor {
	e := &ProcessExecutor{defaultTimeout: DefaultTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the command and waits for it, bounded by the command timeout.
func (e *ProcessExecutor) Execute(ctx context.Context, cmd Command) (*Outcome, error) {
	if cmd.Program == "" {
		return nil, NewFailure(ReasonStart, cmd.String(), errors.New("program is required"))
	}

	path, err := exec.LookPath(cmd.Program)
	if err != nil {
		return nil, NewFailure(ReasonNotFound, cmd.String(), err)
	}

	timeout := e.defaultTimeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	proc := exec.CommandContext(execCtx, path, cmd.Argv()...) //nolint:gosec // argv is built from discrete tokens
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	start := time.Now()
	runErr := proc.Run()
	duration := time.Since(start)

	if runErr != nil {
		// Check the context first: a killed process also reports an ExitError
		switch execCtx.Err() {
		case context.DeadlineExceeded:
			return nil, NewFailure(ReasonTimeout, cmd.String(), execCtx.Err())
		case context.Canceled:
			return nil, NewFailure(ReasonCanceled, cmd.String(), execCtx.Err())
		}

		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, NewFailure(ReasonStart, cmd.String(), runErr)
		}

		return &Outcome{
			ExitSucceeded: false,
			ExitCode:      exitErr.ExitCode(),
			Stdout:        stdout.String(),
			Stderr:        stderr.String(),
			Duration:      duration,
		}, nil
	}

	return &Outcome{
		ExitSucceeded: true,
		ExitCode:      0,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		Duration:      duration,
	}, nil
}
