package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/entrhq/autopilot/pkg/execution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bindFake(t *testing.T, backend *fakeBackend, id string) *Session {
	t.Helper()
	s, err := Bind(context.Background(), backend, device(id, StatusReady), nil)
	require.NoError(t, err)
	return s
}

func TestBind_Success(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	s := bindFake(t, backend, "a")

	assert.Equal(t, StateBound, s.State())
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, "a", s.Target().ID)
	assert.False(t, s.BoundAt().IsZero())
}

func TestBind_FailureLeavesNoSession(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	backend.bindErr = errBoom

	s, err := Bind(context.Background(), backend, device("a", StatusReady), nil)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, errors.Is(err, errBoom))
}

func TestBind_KindMismatch(t *testing.T) {
	backend := newFakeBackend()
	_, err := Bind(context.Background(), backend, Target{ID: "x", Status: StatusReady, Kind: KindBrowserContext}, nil)
	assert.True(t, errors.Is(err, ErrTargetUnavailable))
	assert.Equal(t, 0, backend.bindCount())
}

func TestSession_ReleaseIsIdempotent(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	s := bindFake(t, backend, "a")

	require.NoError(t, s.Release(context.Background()))
	require.NoError(t, s.Release(context.Background()))

	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, backend.handle("a").closeCount())
}

func TestDispatch_AfterCloseFailsSessionClosed(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	s := bindFake(t, backend, "a")
	require.NoError(t, s.Release(context.Background()))

	result := NewDispatcher(nil).Dispatch(context.Background(), s, NewActionRequest("noop"))

	assert.False(t, result.Success)
	assert.Equal(t, SessionClosed, result.ErrorKind)
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, 1, backend.handle("a").closeCount(), "a closed session never reopens")
}

func TestDispatch_NilSession(t *testing.T) {
	result := NewDispatcher(nil).Dispatch(context.Background(), nil, NewActionRequest("noop"))
	assert.False(t, result.Success)
	assert.Equal(t, SessionClosed, result.ErrorKind)
}

func TestDispatch_LostHandleClosesSession(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	s := bindFake(t, backend, "a")
	backend.handle("a").kill(errors.New("device disconnected"))

	result := NewDispatcher(nil).Dispatch(context.Background(), s, NewActionRequest("noop"))

	assert.Equal(t, SessionClosed, result.ErrorKind)
	assert.Contains(t, result.Error, "device disconnected")
	assert.Equal(t, StateClosed, s.State())
	assert.NoError(t, s.Release(context.Background()))
}

func TestDispatch_HandleLostDuringActionClosesAfterwards(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	backend.actions["unplug"] = func(_ context.Context, h Handle, _ Params) (Payload, error) {
		h.(*fakeHandle).kill(errors.New("gone"))
		return NoPayload(), execution.NewFailure(execution.ReasonUnreachable, "adb shell", errors.New("gone"))
	}
	s := bindFake(t, backend, "a")
	dispatcher := NewDispatcher(nil)

	first := dispatcher.Dispatch(context.Background(), s, NewActionRequest("unplug"))
	assert.Equal(t, ExecutionFailure, first.ErrorKind)
	assert.Equal(t, StateClosed, s.State())

	second := dispatcher.Dispatch(context.Background(), s, NewActionRequest("noop"))
	assert.Equal(t, SessionClosed, second.ErrorKind)
}

func TestDispatch_Success(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	s := bindFake(t, backend, "a")

	result := NewDispatcher(nil).Dispatch(context.Background(), s, NewActionRequest("echo", "text", "hi"))

	assert.True(t, result.Success)
	assert.Equal(t, "echo", result.Action)
	assert.Equal(t, "a", result.TargetID)
	assert.Equal(t, PayloadText, result.Payload.Kind)
	assert.Equal(t, "hi", result.Payload.Text)
	assert.Empty(t, result.ErrorKind)
	assert.False(t, result.Timestamp.IsZero())
}

func TestDispatch_FailureClassification(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	backend.actions["step"] = func(context.Context, Handle, Params) (Payload, error) {
		return NoPayload(), NewStepError("step", "transfer", errBoom)
	}
	backend.actions["timeout"] = func(context.Context, Handle, Params) (Payload, error) {
		return NoPayload(), NewStepError("timeout", "capture",
			execution.NewFailure(execution.ReasonTimeout, "adb shell screencap", context.DeadlineExceeded))
	}
	backend.actions["param"] = func(_ context.Context, _ Handle, p Params) (Payload, error) {
		_, err := p.Require("path")
		return NoPayload(), err
	}
	backend.actions["panic"] = func(context.Context, Handle, Params) (Payload, error) {
		panic("unexpected")
	}
	s := bindFake(t, backend, "a")
	dispatcher := NewDispatcher(nil)

	tests := []struct {
		action   string
		wantKind ErrorKind
		wantStep string
	}{
		{action: "step", wantKind: ProtocolStepFailure, wantStep: "transfer"},
		{action: "timeout", wantKind: ExecutionFailure, wantStep: "capture"},
		{action: "param", wantKind: InvalidParameter},
		{action: "panic", wantKind: Internal},
		{action: "teleport", wantKind: UnrecognizedAction},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			result := dispatcher.Dispatch(context.Background(), s, NewActionRequest(tt.action))
			assert.False(t, result.Success)
			assert.Equal(t, tt.wantKind, result.ErrorKind)
			assert.Equal(t, tt.wantStep, result.Step)
			assert.NotEmpty(t, result.Error)
			assert.Equal(t, PayloadNone, result.Payload.Kind)
		})
	}

	assert.Equal(t, StateBound, s.State(), "action failures keep the session bound")
}

func TestDispatch_IsSequentialPerSession(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	var inFlight, maxInFlight int32
	backend.actions["slow"] = func(context.Context, Handle, Params) (Payload, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return NoPayload(), nil
	}
	s := bindFake(t, backend, "a")
	dispatcher := NewDispatcher(nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dispatcher.Dispatch(context.Background(), s, NewActionRequest("slow"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestDispatch_CleanupFailureIsReportedNotEscalated(t *testing.T) {
	backend := newFakeBackend(device("a", StatusReady))
	backend.actions["capture"] = func(ctx context.Context, _ Handle, _ Params) (Payload, error) {
		ReportCleanupFailure(ctx, "remove-temp", errors.New("rm failed"))
		return StructuredPayload(Artifact{Path: "out.png"}), nil
	}
	s := bindFake(t, backend, "a")
	observer := &recordingObserver{}

	result := NewDispatcher(observer).Dispatch(context.Background(), s, NewActionRequest("capture"))

	assert.True(t, result.Success)
	assert.Equal(t, []string{"capture/remove-temp: rm failed"}, observer.cleanups)
	require.Len(t, observer.results, 1)
}

func TestReportCleanupFailure_WithoutReporterIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		ReportCleanupFailure(context.Background(), "step", errBoom)
		ReportCleanupFailure(context.Background(), "step", nil)
	})
}

func TestActionResult_JSON(t *testing.T) {
	result := ActionResult{
		Success:   false,
		Action:    "install",
		TargetID:  "emulator-5554",
		Payload:   NoPayload(),
		ErrorKind: ProtocolStepFailure,
		Error:     "install failed",
		Step:      "install",
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Duration:  1500 * time.Millisecond,
	}

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, false, decoded["success"])
	assert.Equal(t, "ProtocolStepFailure", decoded["errorKind"])
	assert.Equal(t, float64(1500), decoded["durationMs"])
	assert.Equal(t, "2026-01-02T03:04:05Z", decoded["timestamp"])
	assert.Equal(t, "none", decoded["payload"].(map[string]any)["kind"])
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{err: nil, want: ""},
		{err: fmt.Errorf("wrap: %w", ErrSessionClosed), want: SessionClosed},
		{err: execution.NewFailure(execution.ReasonNotFound, "adb", nil), want: ExecutionFailure},
		{err: NewStepError("install", "install", errBoom), want: ProtocolStepFailure},
		{err: &AmbiguousTargetError{Candidates: []string{"a", "b"}}, want: AmbiguousTarget},
		{err: fmt.Errorf("%w: x", ErrTargetNotFound), want: TargetNotFound},
		{err: ErrNoTargetsAvailable, want: NoTargetsAvailable},
		{err: ErrTargetUnavailable, want: TargetUnavailable},
		{err: ErrTargetBusy, want: TargetBusy},
		{err: MissingParameter("url"), want: InvalidParameter},
		{err: InvalidParam("level", "must be one of V, D, I, W, E, F, S"), want: InvalidParameter},
		{err: errBoom, want: Internal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}
}
