// Package android drives Android devices through the adb device bridge.
//
// Every adb call goes through an execution.Executor as a discrete argument
// vector scoped with "-s <serial>". The Backend implements
// automation.Backend for the device target kind.
package android

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/entrhq/autopilot/pkg/execution"
)

// Default values for the device backend
const (
	DefaultADBPath        = "adb"
	DefaultCommandTimeout = 30 * time.Second
	DefaultRemoteTempDir  = "/sdcard"
)

// Backend is the device bridge backend.
type Backend struct {
	executor      execution.Executor
	adbPath       string
	timeout       time.Duration
	remoteTempDir string
	filter        *SerialFilter
	actions       map[string]automation.ActionFunc
}

// Option configures a Backend.
type Option func(*Backend)

// WithADBPath sets the adb binary.
func WithADBPath(path string) Option {
	return func(b *Backend) {
		if path != "" {
			b.adbPath = path
		}
	}
}

// WithCommandTimeout bounds every adb invocation.
func WithCommandTimeout(timeout time.Duration) Option {
	return func(b *Backend) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// WithRemoteTempDir sets the on-device directory for temporary captures.
func WithRemoteTempDir(dir string) Option {
	return func(b *Backend) {
		if dir != "" {
			b.remoteTempDir = strings.TrimRight(dir, "/")
		}
	}
}

// WithSerialFilter restricts discovery to matching serials.
func WithSerialFilter(filter *SerialFilter) Option {
	return func(b *Backend) {
		b.filter = filter
	}
}

// NewBackend creates a device backend running adb through executor.
func NewBackend(executor execution.Executor, opts ...Option) *Backend {
	b := &Backend{
		executor:      executor,
		adbPath:       DefaultADBPath,
		timeout:       DefaultCommandTimeout,
		remoteTempDir: DefaultRemoteTempDir,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.actions = map[string]automation.ActionFunc{
		ActionInstall:    b.install,
		ActionUninstall:  b.uninstall,
		ActionScreenshot: b.screenshot,
		ActionGetInfo:    b.getInfo,
		ActionGetLogs:    b.getLogs,
		ActionClearLogs:  b.clearLogs,
	}
	return b
}

// Kind returns automation.KindDevice.
func (b *Backend) Kind() automation.Kind {
	return automation.KindDevice
}

func (b *Backend) command(serial string, args ...string) execution.Command {
	return execution.Command{
		Program: b.adbPath,
		Args:    args,
		Serial:  serial,
		Timeout: b.timeout,
	}
}

// Preflight runs `adb version` and returns its first line.
func (b *Backend) Preflight(ctx context.Context) (string, error) {
	cmd := b.command("", "version")
	out, err := b.executor.Execute(ctx, cmd)
	if err != nil {
		return "", err
	}
	if !out.ExitSucceeded {
		return "", fmt.Errorf("%s exited with code %d: %s", cmd, out.ExitCode, strings.TrimSpace(out.Stderr))
	}
	first, _, _ := strings.Cut(strings.TrimSpace(out.Stdout), "\n")
	return strings.TrimSpace(first), nil
}

// Discover lists attached devices. Unparseable listing lines are counted as
// skipped; devices excluded by the serial filter are counted as filtered.
func (b *Backend) Discover(ctx context.Context) (automation.Discovery, error) {
	cmd := b.command("", "devices")
	out, err := b.executor.Execute(ctx, cmd)
	if err != nil {
		return automation.Discovery{}, err
	}
	if !out.ExitSucceeded {
		return automation.Discovery{}, fmt.Errorf("%s exited with code %d: %s", cmd, out.ExitCode, strings.TrimSpace(out.Stderr))
	}

	targets, skipped := ParseDeviceList(out.Stdout)
	targets, filtered := b.filter.Apply(targets)
	return automation.NewDiscovery(automation.KindDevice, targets, skipped, filtered), nil
}

// Bind confirms the device still answers as ready and returns its handle.
func (b *Backend) Bind(ctx context.Context, target automation.Target) (automation.Handle, error) {
	d := &Device{backend: b, serial: target.ID}

	out, err := d.Run(ctx, "get-state")
	if err != nil {
		return nil, err
	}
	state := strings.TrimSpace(out.Stdout)
	if !out.ExitSucceeded || MapState(state) != automation.StatusReady {
		return nil, fmt.Errorf("%w: %q reports state %q", automation.ErrTargetUnavailable, target.ID, state)
	}
	return d, nil
}

// Exclusive returns true: a device serves one session at a time.
func (b *Backend) Exclusive() bool {
	return true
}

// Action returns the protocol registered under name.
func (b *Backend) Action(name string) (automation.ActionFunc, bool) {
	fn, ok := b.actions[name]
	return fn, ok
}

// Actions lists the supported action names.
func (b *Backend) Actions() []string {
	names := make([]string, 0, len(b.actions))
	for name := range b.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
