// Package execution runs single external commands for the automation backends.
//
// A Command is always an argument vector. Values that originate from a target
// (package names, paths, serials) travel as discrete tokens and are never
// joined into a shell string. The executor performs no retries; callers decide
// what to do with a failed Outcome or a classified Failure.
package execution

import (
	"context"
	"strings"
	"time"
)

// DefaultTimeout bounds a command that does not carry its own timeout.
const DefaultTimeout = 30 * time.Second

//go:generate mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks

// Executor runs one external command and reports how it ended.
//
// Execute returns an Outcome whenever the process ran to completion, including
// non-zero exits. It returns a *Failure when the process could not be started,
// was not found, timed out, or was canceled.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Outcome, error)
}

// Command fully describes one external invocation.
type Command struct {
	// Program is the binary to run (e.g. "adb")
	Program string

	// Args are passed to the program verbatim, one token each
	Args []string

	// Serial scopes the invocation to one target. When set, "-s <serial>" is
	// inserted before Args.
	Serial string

	// Timeout overrides the executor default (0 means default)
	Timeout time.Duration
}

// Argv returns the full argument vector, excluding the program itself.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+2)
	if c.Serial != "" {
		argv = append(argv, "-s", c.Serial)
	}
	return append(argv, c.Args...)
}

// String renders the command for logs. It is never executed.
func (c Command) String() string {
	parts := append([]string{c.Program}, c.Argv()...)
	return strings.Join(parts, " ")
}

// Outcome is the result of a command that ran to completion.
type Outcome struct {
	ExitSucceeded bool
	ExitCode      int
	Stdout        string
	Stderr        string
	Duration      time.Duration
}
