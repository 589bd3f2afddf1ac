// Command knowyourdev serves the research HTTP API, its WebSocket stream and
// the MCP endpoint.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/knowyourdev/knowyourdev"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	logger := newLogger(os.Getenv("KYD_LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := knowyourdev.New(
		knowyourdev.WithLogger(logger),
		knowyourdev.WithVersion(version),
	)
	if err != nil {
		logger.Error("knowyourdev: startup failed", "error", err)
		return 1
	}
	if err := app.Run(ctx); err != nil {
		logger.Error("knowyourdev: exited with error", "error", err)
		return 1
	}
	return 0
}

// newLogger emits JSON to stdout. level accepts slog names (debug, info,
// warn, error); anything else means info.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
