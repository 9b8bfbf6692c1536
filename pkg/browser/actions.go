package browser

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strconv"

	"github.com/entrhq/autopilot/pkg/automation"
)

// Browser action names
const (
	ActionNavigate   = "navigate"
	ActionExtract    = "extract"
	ActionScrape     = "scrape"
	ActionScreenshot = "screenshot"
	ActionGetInfo    = "getInfo"
)

var errNotPage = errors.New("handle is not a browser page")

func page(h automation.Handle) (Page, error) {
	p, ok := h.(Page)
	if !ok {
		return nil, errNotPage
	}
	return p, nil
}

// validateURL accepts absolute http, https, file and about URLs.
func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return automation.InvalidParam("url", err.Error())
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return automation.InvalidParam("url", "missing host")
		}
	case "file", "about":
	default:
		return automation.InvalidParam("url", "must be an absolute http(s) URL")
	}
	return nil
}

// gotoIfRequested navigates first when the request carries a url.
func gotoIfRequested(ctx context.Context, p Page, action string, params automation.Params) error {
	target := params.Get("url", "")
	if target == "" {
		return nil
	}
	if err := validateURL(target); err != nil {
		return err
	}
	if err := p.Goto(ctx, target); err != nil {
		return automation.NewStepError(action, "navigate", driverFailure("goto", err))
	}
	return nil
}

// snapshot takes the current DOM and location of p.
func snapshot(ctx context.Context, p Page, action string) (*Snapshot, error) {
	content, err := p.Content(ctx)
	if err != nil {
		return nil, automation.NewStepError(action, "content", driverFailure("content", err))
	}
	location, err := p.URL(ctx)
	if err != nil {
		return nil, automation.NewStepError(action, "location", driverFailure("url", err))
	}
	snap, err := ParseSnapshot(content, location)
	if err != nil {
		return nil, automation.NewStepError(action, "parse", err)
	}
	return snap, nil
}

func (b *Backend) navigate(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	p, err := page(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	target, err := params.Require("url")
	if err != nil {
		return automation.NoPayload(), err
	}
	if err := validateURL(target); err != nil {
		return automation.NoPayload(), err
	}
	if err := p.Goto(ctx, target); err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionNavigate, "navigate", driverFailure("goto", err))
	}
	return automation.NoPayload(), nil
}

func (b *Backend) extract(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	p, err := page(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	minLength := DefaultMinTextLength
	if raw := params.Get("min_length", ""); raw != "" {
		minLength, err = strconv.Atoi(raw)
		if err != nil || minLength < 0 {
			return automation.NoPayload(), automation.InvalidParam("min_length", "must be a non-negative integer")
		}
	}
	if err := gotoIfRequested(ctx, p, ActionExtract, params); err != nil {
		return automation.NoPayload(), err
	}

	snap, err := snapshot(ctx, p, ActionExtract)
	if err != nil {
		return automation.NoPayload(), err
	}
	headlines, err := snap.Headlines(params.Get("selector", DefaultHeadlineSelector), minLength)
	if err != nil {
		return automation.NoPayload(), automation.InvalidParam("selector", err.Error())
	}
	return automation.StructuredPayload(headlines), nil
}

func (b *Backend) scrape(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	p, err := page(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	if err := gotoIfRequested(ctx, p, ActionScrape, params); err != nil {
		return automation.NoPayload(), err
	}

	snap, err := snapshot(ctx, p, ActionScrape)
	if err != nil {
		return automation.NoPayload(), err
	}
	products, err := snap.Products(params.Get("selector", DefaultProductSelector))
	if err != nil {
		return automation.NoPayload(), automation.InvalidParam("selector", err.Error())
	}
	return automation.StructuredPayload(products), nil
}

func (b *Backend) screenshot(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	p, err := page(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	output, err := filepath.Abs(params.Get("output", DefaultScreenshotOutput))
	if err != nil {
		return automation.NoPayload(), automation.InvalidParam("output", err.Error())
	}
	if err := gotoIfRequested(ctx, p, ActionScreenshot, params); err != nil {
		return automation.NoPayload(), err
	}

	if err := p.Screenshot(ctx, output); err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionScreenshot, "capture", driverFailure("screenshot", err))
	}
	info, err := os.Stat(output)
	if err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionScreenshot, "capture", err)
	}
	return automation.StructuredPayload(automation.Artifact{
		Path:        output,
		Size:        info.Size(),
		ContentType: "image/png",
	}), nil
}

func (b *Backend) getInfo(ctx context.Context, h automation.Handle, _ automation.Params) (automation.Payload, error) {
	p, err := page(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	title, err := p.Title(ctx)
	if err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionGetInfo, "title", driverFailure("title", err))
	}
	location, err := p.URL(ctx)
	if err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionGetInfo, "location", driverFailure("url", err))
	}
	return automation.StructuredPayload(PageInfo{Title: title, URL: location}), nil
}
