package android

import (
	"strings"

	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/gobwas/glob"
)

// ParseDeviceList parses the output of `adb devices`. The header line and
// daemon notices ("* daemon started successfully") are discarded. Lines that
// do not carry a tab separated serial and state are skipped and counted.
func ParseDeviceList(out string) (targets []automation.Target, skipped int) {
	for _, raw := range strings.Split(out, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "List of devices") || strings.HasPrefix(line, "*") {
			continue
		}

		serial, state, ok := strings.Cut(line, "\t")
		serial = strings.TrimSpace(serial)
		state = strings.TrimSpace(state)
		if !ok || serial == "" || state == "" {
			skipped++
			continue
		}

		targets = append(targets, automation.Target{
			ID:     serial,
			Status: MapState(state),
			Kind:   automation.KindDevice,
		})
	}
	return targets, skipped
}

// MapState maps an adb device state onto a target status.
func MapState(state string) automation.Status {
	switch strings.ToLower(strings.TrimSpace(state)) {
	case "device":
		return automation.StatusReady
	case "offline":
		return automation.StatusOffline
	case "unauthorized":
		return automation.StatusUnauthorized
	default:
		// bootloader, recovery, sideload, authorizing, "no permissions ..."
		return automation.StatusUnknown
	}
}

// SerialFilter keeps devices whose serial matches any of a set of glob
// patterns. An empty filter keeps every device.
type SerialFilter struct {
	patterns []glob.Glob
}

// NewSerialFilter compiles patterns such as "emulator-*" or "192.168.*:5555".
func NewSerialFilter(patterns []string) (*SerialFilter, error) {
	f := &SerialFilter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// Match reports whether serial passes the filter.
func (f *SerialFilter) Match(serial string) bool {
	if f == nil || len(f.patterns) == 0 {
		return true
	}
	for _, g := range f.patterns {
		if g.Match(serial) {
			return true
		}
	}
	return false
}

// Apply splits targets into kept ones and a count of filtered ones.
func (f *SerialFilter) Apply(targets []automation.Target) ([]automation.Target, int) {
	kept := targets[:0:0]
	for _, t := range targets {
		if f.Match(t.ID) {
			kept = append(kept, t)
		}
	}
	return kept, len(targets) - len(kept)
}
