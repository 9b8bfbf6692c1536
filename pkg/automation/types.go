package automation

import (
	"encoding/json"
	"strings"
	"time"
)

// Kind identifies the family of a target.
type Kind string

const (
	// KindDevice is an Android device or emulator reached through the device bridge
	KindDevice Kind = "device"

	// KindBrowserContext is a browser context launched through the browser driver
	KindBrowserContext Kind = "browserContext"
)

// Status is the availability of a target at discovery time.
type Status string

const (
	StatusReady        Status = "ready"
	StatusOffline      Status = "offline"
	StatusUnauthorized Status = "unauthorized"
	StatusUnknown      Status = "unknown"
)

// Target is an addressable device or browser context. Targets are values;
// they are never mutated after discovery returns them.
type Target struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
	Kind   Kind   `json:"kind"`
}

// Params holds the string parameters of an action request.
type Params map[string]string

// Get returns the trimmed value for key, or def when absent or blank.
func (p Params) Get(key, def string) string {
	if v := strings.TrimSpace(p[key]); v != "" {
		return v
	}
	return def
}

// Require returns the value for key or an ErrInvalidParameter error.
func (p Params) Require(key string) (string, error) {
	v := p.Get(key, "")
	if v == "" {
		return "", MissingParameter(key)
	}
	return v, nil
}

// ActionRequest names an action and carries its parameters. Parameters are
// opaque to the dispatcher.
type ActionRequest struct {
	Action     string `json:"action"`
	Parameters Params `json:"parameters,omitempty"`
}

// NewActionRequest builds a request from alternating key/value pairs.
func NewActionRequest(action string, kv ...string) ActionRequest {
	params := make(Params, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		params[kv[i]] = kv[i+1]
	}
	return ActionRequest{Action: action, Parameters: params}
}

// PayloadKind tags which member of Payload is populated.
type PayloadKind string

const (
	PayloadNone       PayloadKind = "none"
	PayloadBytes      PayloadKind = "bytes"
	PayloadText       PayloadKind = "text"
	PayloadStructured PayloadKind = "structured"
)

// Payload is the union returned by a successful action.
type Payload struct {
	Kind  PayloadKind `json:"kind"`
	Bytes []byte      `json:"bytes,omitempty"`
	Text  string      `json:"text,omitempty"`
	Data  any         `json:"data,omitempty"`
}

// NoPayload is the payload of actions with no output.
func NoPayload() Payload { return Payload{Kind: PayloadNone} }

// BytesPayload wraps raw bytes.
func BytesPayload(b []byte) Payload { return Payload{Kind: PayloadBytes, Bytes: b} }

// TextPayload wraps a single text value.
func TextPayload(s string) Payload { return Payload{Kind: PayloadText, Text: s} }

// StructuredPayload wraps a structured value (record, sequence, artifact).
func StructuredPayload(v any) Payload { return Payload{Kind: PayloadStructured, Data: v} }

// ActionResult is always produced by a dispatch, successful or not.
type ActionResult struct {
	Success   bool          `json:"success"`
	Action    string        `json:"action"`
	TargetID  string        `json:"targetId,omitempty"`
	Payload   Payload       `json:"payload"`
	ErrorKind ErrorKind     `json:"errorKind,omitempty"`
	Error     string        `json:"error,omitempty"`
	Step      string        `json:"step,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"-"`
}

// MarshalJSON adds the duration in milliseconds.
func (r ActionResult) MarshalJSON() ([]byte, error) {
	type alias ActionResult
	return json.Marshal(struct {
		alias
		DurationMS int64 `json:"durationMs"`
	}{
		alias:      alias(r),
		DurationMS: r.Duration.Milliseconds(),
	})
}

// Artifact describes a file captured from a target onto the local host.
type Artifact struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
}
