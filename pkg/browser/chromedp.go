package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
)

// ChromeDPDriver launches Chrome directly over the DevTools protocol. Each
// launch gets its own Chrome process in incognito mode.
type ChromeDPDriver struct {
	parent context.Context
}

// NewChromeDPDriver creates a chromedp driver. Cancelling parent tears down
// every Chrome process the driver started.
func NewChromeDPDriver(parent context.Context) *ChromeDPDriver {
	if parent == nil {
		parent = context.Background()
	}
	return &ChromeDPDriver{parent: parent}
}

// Name returns "chromedp".
func (d *ChromeDPDriver) Name() string {
	return DriverChromeDP
}

// Launch starts Chrome and waits for its first tab.
func (d *ChromeDPDriver) Launch(ctx context.Context, opts Options) (Page, error) {
	opts = opts.withDefaults()

	allocOpts := chromedp.DefaultExecAllocatorOptions[:]
	if !opts.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	allocOpts = append(allocOpts,
		chromedp.Flag("incognito", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height),
	)
	for _, arg := range opts.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if hasValue {
			allocOpts = append(allocOpts, chromedp.Flag(name, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(name, true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(d.parent, allocOpts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Force Chrome to start. The first Run must use the tab context itself:
	// the browser lives as long as the context it was allocated with.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &chromedpPage{
		tab:         tabCtx,
		opts:        opts,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

// Close is a no-op; every page owns its Chrome process.
func (d *ChromeDPDriver) Close() error {
	return nil
}

// boundedOp derives an operation context from tab that ends at the
// configured timeout or when the caller's ctx is done.
func boundedOp(ctx, tab context.Context, opts Options) (context.Context, context.CancelFunc) {
	opCtx, cancel := context.WithTimeout(tab, opts.Timeout)
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}
}

type chromedpPage struct {
	tab  context.Context
	opts Options

	closeOnce   sync.Once
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := boundedOp(ctx, p.tab, p.opts)
	defer cancel()
	err := chromedp.Run(opCtx, actions...)
	if err != nil && p.tab.Err() != nil {
		return fmt.Errorf("%w: %w", ErrDisconnected, err)
	}
	return err
}

// Goto settles on a ready body rather than network idle.
func (p *chromedpPage) Goto(ctx context.Context, url string) error {
	if err := p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var content string
	if err := p.run(ctx, chromedp.OuterHTML("html", &content, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return content, nil
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

func (p *chromedpPage) URL(ctx context.Context) (string, error) {
	var location string
	if err := p.run(ctx, chromedp.Location(&location)); err != nil {
		return "", err
	}
	return location, nil
}

// Screenshot captures the full page. Quality 100 makes chromedp emit PNG.
func (p *chromedpPage) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := p.run(ctx, chromedp.FullScreenshot(&buf, 100)); err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

func (p *chromedpPage) Err() error {
	if p.tab.Err() != nil {
		return ErrDisconnected
	}
	return nil
}

func (p *chromedpPage) Close(context.Context) error {
	p.closeOnce.Do(func() {
		// Cancelling the tab context closes the tab; the allocator then
		// kills the Chrome process.
		p.tabCancel()
		p.allocCancel()
	})
	return nil
}
