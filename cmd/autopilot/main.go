// Package main provides the autopilot CLI. It discovers an Android device or
// launches a browser context, runs one or more actions against it and
// releases it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/entrhq/autopilot/pkg/app"
	"github.com/entrhq/autopilot/pkg/automation"
	"github.com/entrhq/autopilot/pkg/config"
)

const version = "0.1.0"

// Options holds the parsed command line
type Options struct {
	ConfigPath  string
	EnvPath     string
	Kind        string
	Actions     string
	Target      string
	Params      paramFlag
	All         bool
	List        bool
	Preflight   bool
	JSON        bool
	Trace       bool
	Verbose     bool
	Concurrency int
	ShowVersion bool
}

// paramFlag collects repeated -p key=value flags.
type paramFlag map[string]string

func (p paramFlag) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (p paramFlag) Set(value string) error {
	key, val, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(key) == "" {
		return fmt.Errorf("parameter %q must be key=value", value)
	}
	p[strings.TrimSpace(key)] = val
	return nil
}

func main() {
	opts := parseFlags(os.Args[1:])

	if opts.ShowVersion {
		fmt.Printf("autopilot v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := run(ctx, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
	}
	os.Exit(code)
}

func parseFlags(args []string) *Options {
	opts := &Options{Params: paramFlag{}}
	fs := flag.NewFlagSet("autopilot", flag.ExitOnError)

	fs.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file (YAML)")
	fs.StringVar(&opts.EnvPath, "env", ".env", "Path to .env file (ignored when missing)")
	fs.StringVar(&opts.Kind, "kind", "android", "Target kind: android or browser")
	fs.StringVar(&opts.Actions, "action", "", "Action to run; several comma-separated actions run in order on one session")
	fs.StringVar(&opts.Target, "target", "", "Device serial (android only; auto-selected when exactly one device is connected)")
	fs.Var(opts.Params, "p", "Action parameter as key=value (repeatable)")
	fs.BoolVar(&opts.All, "all", false, "Run the action on every ready device concurrently")
	fs.BoolVar(&opts.List, "list", false, "List discovered targets and exit")
	fs.BoolVar(&opts.Preflight, "preflight", false, "Check that adb or the browser driver is available and exit")
	fs.BoolVar(&opts.JSON, "json", false, "Print results as JSON")
	fs.BoolVar(&opts.Trace, "trace", false, "Export action spans to stderr")
	fs.BoolVar(&opts.Verbose, "v", false, "Verbose logging")
	fs.IntVar(&opts.Concurrency, "concurrency", automation.DefaultConcurrency, "Devices driven at once with -all")
	fs.BoolVar(&opts.ShowVersion, "version", false, "Show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "autopilot - Android and browser automation\n\n")
		fmt.Fprintf(os.Stderr, "Usage: autopilot [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %-26s path to the adb binary\n", config.EnvADBPath)
		fmt.Fprintf(os.Stderr, "  %-26s browser driver (playwright or chromedp)\n", config.EnvBrowserDriver)
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  autopilot -list\n")
		fmt.Fprintf(os.Stderr, "  autopilot -action getInfo,getLogs -p level=E\n")
		fmt.Fprintf(os.Stderr, "  autopilot -all -action screenshot\n")
		fmt.Fprintf(os.Stderr, "  autopilot -kind browser -action extract -p url=https://news.ycombinator.com\n")
	}

	_ = fs.Parse(args)
	return opts
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, opts *Options) (int, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.EnvPath)
	if err != nil {
		return 2, fmt.Errorf("configuration error: %w", err)
	}
	if opts.Verbose {
		cfg.Logging.Verbosity = "verbose"
	}

	var appOpts []app.Option
	appOpts = append(appOpts, app.WithConcurrency(opts.Concurrency))
	if opts.Trace {
		appOpts = append(appOpts, app.WithTracing(os.Stderr))
	}

	a, err := app.New(ctx, cfg, appOpts...)
	if err != nil {
		return 2, err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	controller, err := a.Controller(opts.Kind)
	if err != nil {
		return 2, err
	}

	switch {
	case opts.Preflight:
		detail, err := controller.Preflight(ctx)
		if err != nil {
			return 1, err
		}
		fmt.Println(successStyle.Render("✓ ") + detail)
		return 0, nil

	case opts.List:
		d, err := controller.Discover(ctx)
		if err != nil {
			return 1, err
		}
		if opts.JSON {
			return 0, printJSON(d.Targets())
		}
		fmt.Println(renderDiscovery(d))
		return 0, nil
	}

	reqs := buildRequests(opts.Actions, opts.Params)
	if len(reqs) == 0 {
		return 2, fmt.Errorf("no action given (use -action; available: %s)", strings.Join(controller.Actions(), ", "))
	}

	var results []automation.ActionResult
	switch {
	case opts.All:
		if len(reqs) > 1 {
			return 2, fmt.Errorf("-all runs a single action")
		}
		results, err = controller.RunAll(ctx, reqs[0])
	default:
		results, err = controller.RunSequence(ctx, opts.Target, reqs)
	}
	if err != nil {
		return 1, err
	}

	if opts.JSON {
		if err := printJSON(results); err != nil {
			return 1, err
		}
	} else {
		for _, r := range results {
			fmt.Println(renderResult(r))
		}
	}

	for _, r := range results {
		if !r.Success {
			return 1, nil
		}
	}
	return 0, nil
}

// buildRequests splits a comma-separated action list. Every action receives
// the same parameters.
func buildRequests(actions string, params map[string]string) []automation.ActionRequest {
	var reqs []automation.ActionRequest
	for _, name := range strings.Split(actions, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		p := make(automation.Params, len(params))
		for k, v := range params {
			p[k] = v
		}
		reqs = append(reqs, automation.ActionRequest{Action: name, Parameters: p})
	}
	return reqs
}
