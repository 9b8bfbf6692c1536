package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/telemetry"
)

type stubHandle struct{}

func (stubHandle) Err() error                  { return nil }
func (stubHandle) Close(context.Context) error { return nil }

// stubBackend echoes its parameters back and can fail preflight.
type stubBackend struct {
	kind         automation.Kind
	targets      []automation.Target
	preflight    string
	preflightErr error
}

func (b *stubBackend) Kind() automation.Kind { return b.kind }

func (b *stubBackend) Discover(context.Context) (automation.Discovery, error) {
	return automation.NewDiscovery(b.kind, b.targets, 1, 0), nil
}

func (b *stubBackend) Bind(context.Context, automation.Target) (automation.Handle, error) {
	return stubHandle{}, nil
}

func (b *stubBackend) Action(name string) (automation.ActionFunc, bool) {
	switch name {
	case "echo", "screenshot":
		return func(_ context.Context, _ automation.Handle, p automation.Params) (automation.Payload, error) {
			return automation.StructuredPayload(map[string]string(p)), nil
		}, true
	case "broken":
		return func(context.Context, automation.Handle, automation.Params) (automation.Payload, error) {
			return automation.Payload{}, automation.NewStepError("broken", "dump", errors.New("exit status 1"))
		}, true
	}
	return nil, false
}

func (b *stubBackend) Actions() []string { return []string{"broken", "echo"} }

func (b *stubBackend) Preflight(context.Context) (string, error) {
	return b.preflight, b.preflightErr
}

func device(id string) automation.Target {
	return automation.Target{ID: id, Status: automation.StatusReady, Kind: automation.KindDevice}
}

func newTestServer(t *testing.T, android, browser *stubBackend, opts ...Option) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	var androidCtl, browserCtl *automation.Controller
	if android != nil {
		androidCtl = automation.NewController(android)
	}
	if browser != nil {
		browserCtl = automation.NewController(browser)
	}

	opts = append([]Option{WithLogger(logging.NewWriterLogger("server", &strings.Builder{}))}, opts...)
	s, err := New(Config{Addr: ":0", Workspace: dir}, androidCtl, browserCtl, opts...)
	require.NoError(t, err)
	return s, s.guard.Root()
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestStatus(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, preflight: "Android Debug Bridge version 1.0.41"}
	s, _ := newTestServer(t, android, nil)

	rec, body := do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	androidStatus := body["android"].(map[string]any)
	assert.Equal(t, true, androidStatus["available"])
	assert.Equal(t, "Android Debug Bridge version 1.0.41", androidStatus["detail"])
	assert.Equal(t, []any{"broken", "echo"}, androidStatus["actions"])

	browserStatus := body["browser"].(map[string]any)
	assert.Equal(t, false, browserStatus["available"])
	assert.Equal(t, "not configured", browserStatus["error"])
	assert.NotEmpty(t, body["runId"])
}

func TestStatusPreflightFailure(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, preflightErr: errors.New("adb: executable file not found")}
	s, _ := newTestServer(t, android, nil)

	rec, body := do(t, s, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	androidStatus := body["android"].(map[string]any)
	assert.Equal(t, false, androidStatus["available"])
	assert.Contains(t, androidStatus["error"], "not found")
}

func TestAndroidAction(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, targets: []automation.Target{device("emulator-5554")}}
	s, _ := newTestServer(t, android, nil)

	rec, body := do(t, s, http.MethodPost, "/api/automation/android",
		`{"action":"echo","deviceId":"emulator-5554","params":{"package":"com.example.app"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, true, body["success"])
	assert.Equal(t, "echo", body["action"])
	assert.Equal(t, "emulator-5554", body["targetId"])
	payload := body["payload"].(map[string]any)
	assert.Equal(t, "structured", payload["kind"])
	assert.Equal(t, map[string]any{"package": "com.example.app"}, payload["data"])
	assert.Contains(t, body, "durationMs")
}

func TestAndroidActionFailureIsStillOK(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, targets: []automation.Target{device("emulator-5554")}}
	s, _ := newTestServer(t, android, nil)

	rec, body := do(t, s, http.MethodPost, "/api/automation/android", `{"action":"broken"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "ProtocolStepFailure", body["errorKind"])
	assert.Equal(t, "dump", body["step"])
}

func TestAndroidLifecycleFailures(t *testing.T) {
	tests := []struct {
		name     string
		targets  []automation.Target
		body     string
		wantCode int
		wantKind string
	}{
		{
			name:     "no devices",
			body:     `{"action":"echo"}`,
			wantCode: http.StatusServiceUnavailable,
			wantKind: "NoTargetsAvailable",
		},
		{
			name:     "unknown device",
			targets:  []automation.Target{device("emulator-5554")},
			body:     `{"action":"echo","deviceId":"R58M123"}`,
			wantCode: http.StatusNotFound,
			wantKind: "TargetNotFound",
		},
		{
			name:     "ambiguous",
			targets:  []automation.Target{device("emulator-5554"), device("emulator-5556")},
			body:     `{"action":"echo"}`,
			wantCode: http.StatusConflict,
			wantKind: "AmbiguousTarget",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, &stubBackend{kind: automation.KindDevice, targets: tt.targets}, nil)

			rec, body := do(t, s, http.MethodPost, "/api/automation/android", tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.wantKind, body["errorKind"])
		})
	}
}

func TestBadRequests(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, targets: []automation.Target{device("emulator-5554")}}
	s, _ := newTestServer(t, android, nil)

	rec, body := do(t, s, http.MethodPost, "/api/automation/android", `{"action":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, body["message"], "invalid request body")

	rec, body = do(t, s, http.MethodPost, "/api/automation/android", `{"deviceId":"emulator-5554"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "action is required", body["message"])

	rec, _ = do(t, s, http.MethodPost, "/api/automation/browser", `{"action":"echo"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBrowserShorthands(t *testing.T) {
	browser := &stubBackend{
		kind: automation.KindBrowserContext,
		targets: []automation.Target{{
			ID:     "new-context",
			Status: automation.StatusReady,
			Kind:   automation.KindBrowserContext,
		}},
	}
	s, root := newTestServer(t, nil, browser)

	rec, body := do(t, s, http.MethodPost, "/api/automation/browser",
		`{"action":"echo","url":"https://example.com","selector":"h1","params":{"output":"shots/home.png","min_length":"3"}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	data := body["payload"].(map[string]any)["data"].(map[string]any)
	assert.Equal(t, "https://example.com", data["url"])
	assert.Equal(t, "h1", data["selector"])
	assert.Equal(t, "3", data["min_length"])
	assert.Equal(t, filepath.Join(root, "shots", "home.png"), data["output"])
}

func TestFileParametersAreConfined(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, targets: []automation.Target{device("emulator-5554")}}
	s, root := newTestServer(t, android, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKey  string
		want     string
	}{
		{
			name:     "output escapes workspace",
			body:     `{"action":"echo","params":{"output":"../../etc/shot.png"}}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "install path outside workspace",
			body:     `{"action":"echo","params":{"path":"/etc/passwd"}}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "relative install path",
			body:     `{"action":"echo","params":{"path":"uploads/app-debug.apk"}}`,
			wantCode: http.StatusOK,
			wantKey:  "path",
			want:     filepath.Join(root, "uploads", "app-debug.apk"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, s, http.MethodPost, "/api/automation/android", tt.body)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "InvalidParameter", body["errorKind"])
				return
			}
			data := body["payload"].(map[string]any)["data"].(map[string]any)
			assert.Equal(t, tt.want, data[tt.wantKey])
		})
	}
}

func TestScreenshotDefaultsIntoWorkspace(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, targets: []automation.Target{device("emulator-5554")}}
	browser := &stubBackend{
		kind:    automation.KindBrowserContext,
		targets: []automation.Target{{ID: "new-context", Status: automation.StatusReady, Kind: automation.KindBrowserContext}},
	}
	s, root := newTestServer(t, android, browser)

	tests := []struct {
		path string
		body string
		want string
	}{
		{path: "/api/automation/android", body: `{"action":"screenshot"}`, want: filepath.Join(root, "device-screenshot.png")},
		{path: "/api/automation/browser", body: `{"action":"screenshot","url":"https://example.com"}`, want: filepath.Join(root, "screenshot.png")},
		{path: "/api/automation/android", body: `{"action":"echo"}`},
	}

	for _, tt := range tests {
		rec, body := do(t, s, http.MethodPost, tt.path, tt.body)
		require.Equal(t, http.StatusOK, rec.Code)
		data := body["payload"].(map[string]any)["data"].(map[string]any)
		if tt.want == "" {
			assert.NotContains(t, data, "output")
			continue
		}
		assert.Equal(t, tt.want, data["output"])
	}
}

func TestDevices(t *testing.T) {
	android := &stubBackend{kind: automation.KindDevice, targets: []automation.Target{device("emulator-5554")}}
	s, _ := newTestServer(t, android, nil)

	rec, body := do(t, s, http.MethodGet, "/api/automation/android/devices", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["skipped"])
	targets := body["targets"].([]any)
	require.Len(t, targets, 1)
	assert.Equal(t, "emulator-5554", targets[0].(map[string]any)["id"])
}

func TestMetricsRoute(t *testing.T) {
	metrics := telemetry.NewMetrics()
	android := &stubBackend{kind: automation.KindDevice, targets: []automation.Target{device("emulator-5554")}}
	androidCtl := automation.NewController(android, automation.WithObserver(metrics))
	s, err := New(Config{Addr: ":0", Workspace: t.TempDir()}, androidCtl, nil,
		WithMetrics(metrics.Handler()),
		WithLogger(logging.NewWriterLogger("server", &strings.Builder{})))
	require.NoError(t, err)

	rec, _ := do(t, s, http.MethodPost, "/api/automation/android", `{"action":"echo"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `autopilot_actions_total{action="echo",error_kind="",kind="device"} 1`)
}

func TestMetricsRouteAbsentWithoutHandler(t *testing.T) {
	s, _ := newTestServer(t, nil, nil)
	rec, _ := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
