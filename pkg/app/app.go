// Package app wires configuration, logging, telemetry and the two
// automation backends into controllers shared by the CLI and the server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/entrhq/autopilot/pkg/android"
	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/entrhq/autopilot/pkg/browser"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/execution"
	"github.com/entrhq/autopilot/pkg/logging"
	"github.com/entrhq/autopilot/pkg/telemetry"
)

const serviceName = "autopilot"

// App holds the controllers and the resources they share.
type App struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *telemetry.Metrics
	Android *automation.Controller
	Browser *automation.Controller

	driver         browser.Driver
	tracerProvider *sdktrace.TracerProvider
}

// Option configures New.
type Option func(*options)

type options struct {
	logger      *logging.Logger
	traceWriter io.Writer
	concurrency int
}

// WithLogger uses logger instead of the run file logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracing exports one span per dispatched action to w.
func WithTracing(w io.Writer) Option {
	return func(o *options) {
		o.traceWriter = w
	}
}

// WithConcurrency limits how many devices RunAll drives at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// New builds both controllers from cfg. The browser driver is created but
// no browser is started until a session binds.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	level, err := logging.ParseLevel(cfg.LogLevel())
	if err != nil {
		return nil, err
	}
	logging.SetLevel(level)

	logger := o.logger
	if logger == nil {
		// NewLogger falls back to stderr on error, which is good enough here
		logger, _ = logging.NewLogger("autopilot")
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: telemetry.NewMetrics(),
	}

	observers := automation.MultiObserver{automation.NewLogObserver(logger), a.Metrics}
	if o.traceWriter != nil {
		tp, err := telemetry.NewStdoutTracerProvider(serviceName, o.traceWriter)
		if err != nil {
			return nil, err
		}
		a.tracerProvider = tp
		observers = append(observers, telemetry.NewTracer(tp))
	}

	filter, err := android.NewSerialFilter(cfg.Android.SerialPatterns)
	if err != nil {
		return nil, fmt.Errorf("invalid serial patterns: %w", err)
	}
	androidBackend := android.NewBackend(
		execution.NewProcessExecutor(execution.WithDefaultTimeout(cfg.Android.CommandTimeout)),
		android.WithADBPath(cfg.Android.ADBPath),
		android.WithCommandTimeout(cfg.Android.CommandTimeout),
		android.WithRemoteTempDir(cfg.Android.RemoteTempDir),
		android.WithSerialFilter(filter),
	)
	a.Android = automation.NewController(androidBackend,
		automation.WithObserver(observers),
		automation.WithConcurrency(o.concurrency),
	)

	driver, err := browser.NewDriver(ctx, cfg.Browser.Driver, cfg.Browser.Install)
	if err != nil {
		return nil, err
	}
	a.driver = driver
	browserOpts := browser.DefaultOptions()
	browserOpts.Headless = cfg.Browser.Headless
	browserOpts.Timeout = cfg.Browser.Timeout
	browserOpts.Viewport = browser.Viewport{
		Width:  cfg.Browser.Viewport.Width,
		Height: cfg.Browser.Viewport.Height,
	}
	a.Browser = automation.NewController(browser.NewBackend(driver, browserOpts),
		automation.WithObserver(observers),
	)

	return a, nil
}

// Controller returns the controller for kind ("android" or "browser").
func (a *App) Controller(kind string) (*automation.Controller, error) {
	switch kind {
	case "android", string(automation.KindDevice):
		return a.Android, nil
	case "browser", string(automation.KindBrowserContext):
		return a.Browser, nil
	default:
		return nil, fmt.Errorf("unknown target kind %q (must be 'android' or 'browser')", kind)
	}
}

// Close stops the browser driver, flushes spans and closes the log file.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.driver != nil {
		errs = append(errs, a.driver.Close())
	}
	if a.tracerProvider != nil {
		errs = append(errs, a.tracerProvider.Shutdown(ctx))
	}
	if a.Logger != nil {
		errs = append(errs, a.Logger.Close())
	}
	return errors.Join(errs...)
}
