package browser

import (
	"context"
	"errors"
	"time"
)

// Driver launches isolated browser contexts. Each launched Page owns its
// browser context and is torn down by Page.Close.
type Driver interface {
	// Name identifies the driver ("playwright", "chromedp")
	Name() string

	// Launch starts a new context with a single page
	Launch(ctx context.Context, opts Options) (Page, error)

	// Close stops the driver and any resources it shares across launches
	Close() error
}

// Page is one page inside a launched browser context.
type Page interface {
	// Goto loads url and waits for the page to settle: network idle under
	// playwright, a ready document body under chromedp
	Goto(ctx context.Context, url string) error

	// Content returns the serialized DOM of the current document
	Content(ctx context.Context) (string, error)

	// Title returns the document title
	Title(ctx context.Context) (string, error)

	// URL returns the current location
	URL(ctx context.Context) (string, error)

	// Screenshot writes a full-page PNG capture to path
	Screenshot(ctx context.Context, path string) error

	// Err is non-nil once the browser behind the page has gone away
	Err() error

	// Close tears down the page, its context and its browser
	Close(ctx context.Context) error
}

// ErrDisconnected is reported by Page.Err once the browser process is gone.
var ErrDisconnected = errors.New("browser disconnected")

// Options configures a launched browser context.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport Viewport

	// Timeout bounds each navigation or page operation
	Timeout time.Duration

	// Args are extra browser command line flags
	Args []string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// SandboxArgs disable the Chromium sandbox, which cannot start inside most
// containers and CI runners.
var SandboxArgs = []string{"--no-sandbox", "--disable-setuid-sandbox"}

// DefaultOptions returns headless options with the default viewport and
// sandbox-disabling flags.
func DefaultOptions() Options {
	return Options{
		Headless: true,
		Viewport: Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		Timeout:  DefaultTimeout,
		Args:     append([]string(nil), SandboxArgs...),
	}
}

func (o Options) withDefaults() Options {
	if o.Viewport.Width <= 0 || o.Viewport.Height <= 0 {
		o.Viewport = Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight}
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Headline is one element matched by an extraction rule.
type Headline struct {
	Text  string `json:"text"`
	Tag   string `json:"tag"`
	Class string `json:"className"`
}

// Product is one product card found by the scrape action. Image and Link are
// absolute URLs, nil when the card has none.
type Product struct {
	Name  string  `json:"name"`
	Price string  `json:"price"`
	Image *string `json:"image"`
	Link  *string `json:"link"`
}

// PageInfo describes the page currently loaded in a context.
type PageInfo struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Default values for browser contexts and actions
const (
	DefaultTimeout          = 30 * time.Second
	DefaultViewportWidth    = 1280
	DefaultViewportHeight   = 720
	DefaultHeadlineSelector = "h1, h2, h3, .headline, .title"
	DefaultProductSelector  = ".product, .item, [data-product]"
	DefaultMinTextLength    = 11
	DefaultScreenshotOutput = "screenshot.png"
)
