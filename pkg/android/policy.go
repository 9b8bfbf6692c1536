package android

import (
	"strings"

	"github.com/entrhq/autopilot/pkg/execution"
)

// Package manager output markers. adb prints "Success" on a completed
// install or uninstall and "Failure [REASON]" otherwise, on either stream
// depending on the platform version. The exit status alone is not reliable:
// older adb releases exit 0 after a failed install.
//
// TODO: revalidate the stderr rule against current platform-tools output for
// streamed installs.
const (
	successMarker = "Success"
	failureMarker = "Failure ["
)

// packageCommandSucceeded applies the install/uninstall success policy: the
// process must exit 0, any stderr must contain the success marker, and
// neither stream may contain a failure marker.
func packageCommandSucceeded(out *execution.Outcome) bool {
	if out == nil || !out.ExitSucceeded {
		return false
	}
	if strings.Contains(out.Stdout, failureMarker) || strings.Contains(out.Stderr, failureMarker) {
		return false
	}
	stderr := strings.TrimSpace(out.Stderr)
	if stderr != "" && !strings.Contains(stderr, successMarker) {
		return false
	}
	return true
}

// Markers adb prints on stderr when the device behind a serial has gone away.
var lostMarkers = []string{
	"device offline",
	"no devices/emulators found",
}

// deviceLost reports whether stderr says the device is no longer reachable.
func deviceLost(stderr string) bool {
	s := strings.ToLower(stderr)
	if strings.Contains(s, "device '") && strings.Contains(s, "' not found") {
		return true
	}
	for _, m := range lostMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
