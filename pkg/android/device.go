package android

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/entrhq/autopilot/pkg/execution"
)

// Device is the session handle for one adb serial. adb keeps no per-client
// connection, so the handle is the serial scope plus liveness tracking.
type Device struct {
	backend *Backend
	serial  string

	mu   sync.Mutex
	lost error
}

// Serial returns the adb serial this handle is scoped to.
func (d *Device) Serial() string {
	return d.serial
}

// Err returns non-nil once adb has reported the device gone.
func (d *Device) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// Close releases the handle. There is no remote state to tear down.
func (d *Device) Close(context.Context) error {
	return nil
}

// Run executes one adb command scoped to the device. A stderr reporting the
// device as gone marks the handle lost and is returned as an unreachable
// execution failure.
func (d *Device) Run(ctx context.Context, args ...string) (*execution.Outcome, error) {
	cmd := d.backend.command(d.serial, args...)
	out, err := d.backend.executor.Execute(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if !out.ExitSucceeded && deviceLost(out.Stderr) {
		lost := fmt.Errorf("device %q lost: %s", d.serial, strings.TrimSpace(out.Stderr))
		d.mu.Lock()
		d.lost = lost
		d.mu.Unlock()
		return nil, execution.NewFailure(execution.ReasonUnreachable, cmd.String(), lost)
	}
	return out, nil
}

// check runs a command and requires a zero exit.
func (d *Device) check(ctx context.Context, args ...string) (*execution.Outcome, error) {
	out, err := d.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if !out.ExitSucceeded {
		return out, exitError(out)
	}
	return out, nil
}

func exitError(out *execution.Outcome) error {
	msg := strings.TrimSpace(out.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(out.Stdout)
	}
	if msg == "" {
		return fmt.Errorf("exit code %d", out.ExitCode)
	}
	return fmt.Errorf("exit code %d: %s", out.ExitCode, msg)
}

var errNotDevice = errors.New("handle is not an adb device")
