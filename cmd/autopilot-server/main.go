// Package main runs the autopilot demo HTTP server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/entrhq/autopilot/pkg/app"
	"github.com/entrhq/autopilot/pkg/config"
	"github.com/entrhq/autopilot/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML)")
	envPath := flag.String("env", ".env", "Path to .env file (ignored when missing)")
	workspaceDir := flag.String("workspace", "", "Directory receiving screenshots and holding packages to install (default: a temp directory)")
	apkDir := flag.String("apk-dir", "", "Extra directory packages may be installed from")
	requestTimeout := flag.Duration("request-timeout", 2*time.Minute, "Upper bound for one automation request")
	trace := flag.Bool("trace", false, "Export action spans to stderr")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *envPath, *workspaceDir, *apkDir, *requestTimeout, *trace); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func run(ctx context.Context, configPath, envPath, workspaceDir, apkDir string, requestTimeout time.Duration, trace bool) error {
	cfg, err := config.Load(configPath, envPath)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	var opts []app.Option
	if trace {
		opts = append(opts, app.WithTracing(os.Stderr))
	}
	a, err := app.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	srvCfg := server.Config{
		Addr:           cfg.Server.Addr,
		Workspace:      workspaceDir,
		RequestTimeout: requestTimeout,
	}
	if apkDir != "" {
		srvCfg.InputDirs = []string{apkDir}
	}
	srv, err := server.New(srvCfg, a.Android, a.Browser,
		server.WithMetrics(a.Metrics.Handler()),
		server.WithLogger(a.Logger),
	)
	if err != nil {
		return err
	}

	fmt.Printf("autopilot server listening on %s (status: /api/status, metrics: /metrics)\n", cfg.Server.Addr)
	if path := a.Logger.LogPath(); path != "" {
		fmt.Printf("logging to %s\n", path)
	}
	return srv.Start(ctx)
}
