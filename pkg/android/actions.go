package android

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/google/uuid"
)

// Device action names
const (
	ActionInstall    = "install"
	ActionUninstall  = "uninstall"
	ActionScreenshot = "screenshot"
	ActionGetInfo    = "getInfo"
	ActionGetLogs    = "getLogs"
	ActionClearLogs  = "clearLogs"
)

// DefaultScreenshotOutput is the local file a device screenshot is pulled to.
const DefaultScreenshotOutput = "device-screenshot.png"

// InfoProperties are the system properties queried by getInfo, in order.
// The record key is the last dot separated segment of each property.
var InfoProperties = []string{
	"ro.product.model",
	"ro.build.version.release",
	"ro.build.version.sdk",
	"ro.product.manufacturer",
}

// logcat priorities from verbose to silent
const logLevels = "VDIWEFS"

func device(h automation.Handle) (*Device, error) {
	d, ok := h.(*Device)
	if !ok {
		return nil, errNotDevice
	}
	return d, nil
}

func (b *Backend) install(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	d, err := device(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	path, err := params.Require("path")
	if err != nil {
		return automation.NoPayload(), err
	}
	if _, err := os.Stat(path); err != nil {
		return automation.NoPayload(), automation.InvalidParam("path", err.Error())
	}

	args := []string{"install"}
	if params.Get("replace", "") == "true" {
		args = append(args, "-r")
	}
	args = append(args, path)

	out, err := d.Run(ctx, args...)
	if err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionInstall, "install", err)
	}
	if !packageCommandSucceeded(out) {
		return automation.NoPayload(), automation.NewStepError(ActionInstall, "install", exitError(out))
	}
	return automation.NoPayload(), nil
}

func (b *Backend) uninstall(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	d, err := device(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	pkg, err := params.Require("package")
	if err != nil {
		return automation.NoPayload(), err
	}

	out, err := d.Run(ctx, "uninstall", pkg)
	if err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionUninstall, "uninstall", err)
	}
	if !packageCommandSucceeded(out) {
		return automation.NoPayload(), automation.NewStepError(ActionUninstall, "uninstall", exitError(out))
	}
	return automation.NoPayload(), nil
}

// screenshot captures to a unique temp file on the device, pulls it to the
// local output path and removes the temp file. Removal is attempted whatever
// happened to the capture or the pull.
func (b *Backend) screenshot(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	d, err := device(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	output, err := filepath.Abs(params.Get("output", DefaultScreenshotOutput))
	if err != nil {
		return automation.NoPayload(), automation.InvalidParam("output", err.Error())
	}
	remote := fmt.Sprintf("%s/autopilot-%s.png", b.remoteTempDir, uuid.NewString())

	defer func() {
		if _, err := d.check(context.WithoutCancel(ctx), "shell", "rm", "-f", remote); err != nil {
			automation.ReportCleanupFailure(ctx, "cleanup", err)
		}
	}()

	if _, err := d.check(ctx, "shell", "screencap", "-p", remote); err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionScreenshot, "capture", err)
	}
	if _, err := d.check(ctx, "pull", remote, output); err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionScreenshot, "transfer", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionScreenshot, "transfer", err)
	}
	return automation.StructuredPayload(automation.Artifact{
		Path:        output,
		Size:        info.Size(),
		ContentType: "image/png",
	}), nil
}

func (b *Backend) getInfo(ctx context.Context, h automation.Handle, _ automation.Params) (automation.Payload, error) {
	d, err := device(h)
	if err != nil {
		return automation.NoPayload(), err
	}

	info := make(map[string]string, len(InfoProperties))
	for _, prop := range InfoProperties {
		out, err := d.check(ctx, "shell", "getprop", prop)
		if err != nil {
			return automation.NoPayload(), automation.NewStepError(ActionGetInfo, prop, err)
		}
		info[prop[strings.LastIndex(prop, ".")+1:]] = strings.TrimSpace(out.Stdout)
	}
	return automation.StructuredPayload(info), nil
}

func (b *Backend) getLogs(ctx context.Context, h automation.Handle, params automation.Params) (automation.Payload, error) {
	d, err := device(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	level := strings.ToUpper(params.Get("level", "V"))
	if len(level) != 1 || !strings.Contains(logLevels, level) {
		return automation.NoPayload(), automation.InvalidParam("level", "must be one of V, D, I, W, E, F, S")
	}

	out, err := d.check(ctx, "logcat", "-d", "*:"+level)
	if err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionGetLogs, "dump", err)
	}
	return automation.StructuredPayload(SplitLogLines(out.Stdout)), nil
}

func (b *Backend) clearLogs(ctx context.Context, h automation.Handle, _ automation.Params) (automation.Payload, error) {
	d, err := device(h)
	if err != nil {
		return automation.NoPayload(), err
	}
	if _, err := d.check(ctx, "logcat", "-c"); err != nil {
		return automation.NoPayload(), automation.NewStepError(ActionClearLogs, "clear", err)
	}
	return automation.NoPayload(), nil
}

// SplitLogLines splits a log dump into entries, dropping blank lines.
func SplitLogLines(raw string) []string {
	entries := []string{}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, line)
	}
	return entries
}
