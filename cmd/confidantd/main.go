// Command confidantd is the daemon process: it loads configuration, opens
// every persistent store exactly once, wires them into one
// [orchestrator.Orchestrator], and serves the admin HTTP surface and the
// scheduled maintenance jobs alongside the message loop.
//
// Grounded on the teacher's root-composition mains (cmd/giztoy2, the
// genx agent runner): flag-driven config path, log/slog for structured
// logging, signal.NotifyContext for graceful shutdown.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	var (
		configPath = flag.String("config", "configs/confidant.yaml", "path to the daemon config file")
		envPath    = flag.String("env", ".env", "path to the secrets .env file")
		logJSON    = flag.Bool("log-json", false, "emit structured JSON logs instead of text")
	)
	flag.Parse()

	logger := newLogger(*logJSON)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := compose(*configPath, *envPath, logger)
	if err != nil {
		logger.Error("confidantd: startup failed", "error", err)
		os.Exit(1)
	}
	defer d.Close()

	if err := d.Run(ctx); err != nil {
		logger.Error("confidantd: exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(asJSON bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if asJSON {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
