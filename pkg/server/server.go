// Package server is the demo HTTP shim in front of the automation
// controllers. It translates JSON request bodies into action requests and
// returns the resulting ActionResult as JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/entrhq/autopilot/pkg/android"
	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/entrhq/autopilot/pkg/browser"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/security/workspace"
)

const (
	screenshotAction = "screenshot"
	maxBodyBytes     = 1 << 20
	preflightTimeout = 10 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Config configures the HTTP server.
type Config struct {
	Addr string

	// Workspace receives screenshots requested over HTTP and is where
	// relative input paths are read from.
	Workspace string

	// InputDirs are extra directories packages may be installed from.
	InputDirs []string

	// RequestTimeout bounds a single automation request, 0 for none.
	RequestTimeout time.Duration
}

// Server serves the automation API.
type Server struct {
	cfg        Config
	guard      *workspace.Guard
	android    *automation.Controller
	browser    *automation.Controller
	metrics    http.Handler
	logger     *logging.Logger
	router     chi.Router
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts h on GET /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a server for the two controllers. Either may be nil, in which
// case its routes answer 503.
func New(cfg Config, androidCtl, browserCtl *automation.Controller, opts ...Option) (*Server, error) {
	if cfg.Workspace == "" {
		cfg.Workspace = filepath.Join(os.TempDir(), "autopilot-artifacts")
	}
	guard, err := workspace.NewGuard(cfg.Workspace)
	if err != nil {
		return nil, err
	}
	for _, dir := range cfg.InputDirs {
		if err := guard.Allow(dir); err != nil {
			return nil, err
		}
	}

	s := &Server{
		cfg:     cfg,
		guard:   guard,
		android: androidCtl,
		browser: browserCtl,
		logger:  logging.NewWriterLogger("server", os.Stderr),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)

	router.Get("/api/status", s.handleStatus)
	router.Route("/api/automation", func(r chi.Router) {
		r.Get("/android/devices", s.handleDevices)
		r.Post("/android", s.handleAndroid)
		r.Post("/browser", s.handleBrowser)
	})
	if s.metrics != nil {
		router.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return router
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Infof("serving automation API on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Infof("%s %s %d %s [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Millisecond), middleware.GetReqID(r.Context()))
	})
}

// BackendStatus describes one backend in the status response.
type BackendStatus struct {
	Available bool     `json:"available"`
	Detail    string   `json:"detail,omitempty"`
	Error     string   `json:"error,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	RunID   string        `json:"runId"`
	Android BackendStatus `json:"android"`
	Browser BackendStatus `json:"browser"`
	Time    time.Time     `json:"time"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), preflightTimeout)
	defer cancel()

	respondJSON(w, http.StatusOK, StatusResponse{
		RunID:   logging.GetRunID(),
		Android: backendStatus(ctx, s.android),
		Browser: backendStatus(ctx, s.browser),
		Time:    time.Now().UTC(),
	})
}

func backendStatus(ctx context.Context, c *automation.Controller) BackendStatus {
	if c == nil {
		return BackendStatus{Error: "not configured"}
	}
	detail, err := c.Preflight(ctx)
	if err != nil {
		return BackendStatus{Error: err.Error(), Actions: c.Actions()}
	}
	return BackendStatus{Available: true, Detail: detail, Actions: c.Actions()}
}

// DevicesResponse is the body of GET /api/automation/android/devices.
type DevicesResponse struct {
	Targets  []automation.Target `json:"targets"`
	Skipped  int                 `json:"skipped"`
	Filtered int                 `json:"filtered"`
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	if s.android == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("android backend not configured"))
		return
	}
	d, err := s.android.Discover(r.Context())
	if err != nil {
		respondError(w, statusFor(automation.KindOf(err)), err)
		return
	}
	respondJSON(w, http.StatusOK, DevicesResponse{
		Targets:  d.Targets(),
		Skipped:  d.Skipped(),
		Filtered: d.Filtered(),
	})
}

// AndroidRequest is the body of POST /api/automation/android.
type AndroidRequest struct {
	Action   string            `json:"action"`
	DeviceID string            `json:"deviceId,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func (s *Server) handleAndroid(w http.ResponseWriter, r *http.Request) {
	var req AndroidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	s.run(w, r, s.android, req.DeviceID, req.Action, req.Params, android.DefaultScreenshotOutput)
}

// BrowserRequest is the body of POST /api/automation/browser. URL and
// Selector are shorthands for the url and selector parameters.
type BrowserRequest struct {
	Action   string            `json:"action"`
	URL      string            `json:"url,omitempty"`
	Selector string            `json:"selector,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

func (s *Server) handleBrowser(w http.ResponseWriter, r *http.Request) {
	var req BrowserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	params := make(map[string]string, len(req.Params)+2)
	for k, v := range req.Params {
		params[k] = v
	}
	if req.URL != "" {
		params["url"] = req.URL
	}
	if req.Selector != "" {
		params["selector"] = req.Selector
	}
	s.run(w, r, s.browser, "", req.Action, params, browser.DefaultScreenshotOutput)
}

// run drives one full lifecycle. Lifecycle failures map to an HTTP error
// status; dispatched actions always answer 200 with the result. A screenshot
// without an output is written to defaultOutput inside the workspace.
func (s *Server) run(w http.ResponseWriter, r *http.Request, c *automation.Controller, id, action string, params map[string]string, defaultOutput string) {
	if c == nil {
		respondError(w, http.StatusServiceUnavailable, errors.New("backend not configured"))
		return
	}
	if strings.TrimSpace(action) == "" {
		respondError(w, http.StatusBadRequest, errors.New("action is required"))
		return
	}

	ctx := r.Context()
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	if action == screenshotAction && params["output"] == "" {
		params = withParam(params, "output", defaultOutput)
	}
	confined, err := s.confine(params)
	if err != nil {
		respondJSON(w, statusFor(automation.KindOf(err)), automation.FailedResult(action, id, err))
		return
	}

	result, err := c.Run(ctx, id, automation.ActionRequest{Action: action, Parameters: confined})
	if err != nil {
		respondJSON(w, statusFor(automation.KindOf(err)), automation.FailedResult(action, id, err))
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// confine resolves file parameters through the workspace guard: output is
// written inside the workspace, path is read from it or an input directory.
func (s *Server) confine(params map[string]string) (automation.Params, error) {
	out := make(automation.Params, len(params))
	for k, v := range params {
		out[k] = v
	}
	if name := out.Get("output", ""); name != "" {
		resolved, err := s.guard.Output(name)
		if err != nil {
			return nil, automation.InvalidParam("output", err.Error())
		}
		out["output"] = resolved
	}
	if name := out.Get("path", ""); name != "" {
		resolved, err := s.guard.Input(name)
		if err != nil {
			return nil, automation.InvalidParam("path", err.Error())
		}
		out["path"] = resolved
	}
	return out, nil
}

func withParam(params map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for k, v := range params {
		out[k] = v
	}
	out[key] = value
	return out
}

func statusFor(kind automation.ErrorKind) int {
	switch kind {
	case automation.TargetNotFound:
		return http.StatusNotFound
	case automation.AmbiguousTarget, automation.TargetBusy, automation.TargetUnavailable:
		return http.StatusConflict
	case automation.NoTargetsAvailable:
		return http.StatusServiceUnavailable
	case automation.InvalidParameter, automation.UnrecognizedAction:
		return http.StatusBadRequest
	case automation.ExecutionFailure, automation.ProtocolStepFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, struct {
		Error     string `json:"error"`
		Status    int    `json:"status"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}{
		Error:     http.StatusText(status),
		Status:    status,
		Message:   err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
