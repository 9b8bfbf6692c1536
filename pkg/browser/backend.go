// Package browser drives headless browser contexts through a Driver.
//
// Two drivers are provided: Playwright (the default) and chromedp. Browser
// discovery is degenerate: the backend always offers a single synthetic
// target that stands for "launch a new context". Binding launches the
// context; releasing closes it together with its browser.
//
// Extraction rules (headlines, product cards) are evaluated against a DOM
// snapshot taken from the page with goquery, so they behave the same with
// either driver.
package browser

import (
	"context"
	"fmt"
	"sort"

	"github.com/entrhq/autopilot/pkg/automation"
)

// Driver names
const (
	DriverPlaywright = "playwright"
	DriverChromeDP   = "chromedp"
)

// WaitUntilNetworkIdle is the navigation settle condition.
const WaitUntilNetworkIdle = "networkidle"

// NewContextTarget is the id of the synthetic browser target.
const NewContextTarget = "new-context"

// NewDriver returns the driver registered under name.
func NewDriver(ctx context.Context, name string, install bool) (Driver, error) {
	switch name {
	case "", DriverPlaywright:
		return NewPlaywrightDriver(WithInstall(install)), nil
	case DriverChromeDP:
		return NewChromeDPDriver(ctx), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q (supported: %s, %s)", name, DriverPlaywright, DriverChromeDP)
	}
}

// Backend is the browser backend.
type Backend struct {
	driver  Driver
	opts    Options
	actions map[string]automation.ActionFunc
}

// NewBackend creates a browser backend launching contexts with opts.
func NewBackend(driver Driver, opts Options) *Backend {
	b := &Backend{driver: driver, opts: opts.withDefaults()}
	b.actions = map[string]automation.ActionFunc{
		ActionNavigate:   b.navigate,
		ActionExtract:    b.extract,
		ActionScrape:     b.scrape,
		ActionScreenshot: b.screenshot,
		ActionGetInfo:    b.getInfo,
	}
	return b
}

// Kind returns automation.KindBrowserContext.
func (b *Backend) Kind() automation.Kind {
	return automation.KindBrowserContext
}

// Discover always yields the single synthetic "new context" target.
func (b *Backend) Discover(context.Context) (automation.Discovery, error) {
	return automation.NewDiscovery(automation.KindBrowserContext, []automation.Target{{
		ID:     NewContextTarget,
		Status: automation.StatusReady,
		Kind:   automation.KindBrowserContext,
	}}, 0, 0), nil
}

// Bind launches a new browser context.
func (b *Backend) Bind(ctx context.Context, _ automation.Target) (automation.Handle, error) {
	page, err := b.driver.Launch(ctx, b.opts)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// Exclusive returns false: every bind launches its own context, so the
// synthetic target backs any number of concurrent sessions.
func (b *Backend) Exclusive() bool {
	return false
}

// Preflight reports the configured driver.
func (b *Backend) Preflight(context.Context) (string, error) {
	return fmt.Sprintf("browser driver %s (headless=%t)", b.driver.Name(), b.opts.Headless), nil
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
