package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightDriver launches Chromium contexts through Playwright. The
// Playwright server is started lazily and shared by every launched context.
type PlaywrightDriver struct {
	install bool

	mu          sync.Mutex
	playwright  *playwright.Playwright
	initialized bool
}

// PlaywrightOption configures a PlaywrightDriver.
type PlaywrightOption func(*PlaywrightDriver)

// WithInstall downloads the Playwright driver and Chromium on first use.
func WithInstall(install bool) PlaywrightOption {
	return func(d *PlaywrightDriver) {
		d.install = install
	}
}

// NewPlaywrightDriver creates a Playwright driver.
func NewPlaywrightDriver(opts ...PlaywrightOption) *PlaywrightDriver {
	d := &PlaywrightDriver{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns "playwright".
func (d *PlaywrightDriver) Name() string {
	return DriverPlaywright
}

func (d *PlaywrightDriver) initialize() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized {
		return d.playwright, nil
	}

	// Driver output would interleave with CLI output
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if d.install {
		if err := playwright.Install(runOpts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	d.playwright = pw
	d.initialized = true
	return pw, nil
}

// Launch starts a Chromium browser with one context and one page.
func (d *PlaywrightDriver) Launch(ctx context.Context, opts Options) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	pw, err := d.initialize()
	if err != nil {
		return nil, err
	}

	timeout := float64(opts.Timeout.Milliseconds())
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     opts.Args,
		Timeout:  &timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		_ = browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(timeout)

	return &playwrightPage{
		browser: browser,
		context: bctx,
		page:    page,
		timeout: timeout,
	}, nil
}

// Close stops the Playwright server.
func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.initialized && d.playwright != nil {
		if err := d.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		d.initialized = false
		d.playwright = nil
	}
	return nil
}

type playwrightPage struct {
	browser playwright.Browser
	context playwright.BrowserContext
	page    playwright.Page
	timeout float64
}

func (p *playwrightPage) Goto(_ context.Context, url string) error {
	waitUntil := playwright.WaitUntilState(WaitUntilNetworkIdle)
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: &waitUntil,
		Timeout:   &p.timeout,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Content(context.Context) (string, error) {
	return p.page.Content()
}

func (p *playwrightPage) Title(context.Context) (string, error) {
	return p.page.Title()
}

func (p *playwrightPage) URL(context.Context) (string, error) {
	return p.page.URL(), nil
}

func (p *playwrightPage) Screenshot(_ context.Context, path string) error {
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	return err
}

func (p *playwrightPage) Err() error {
	if !p.browser.IsConnected() {
		return ErrDisconnected
	}
	return nil
}

func (p *playwrightPage) Close(context.Context) error {
	var errs []error
	if err := p.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.context.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
