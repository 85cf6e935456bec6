// Package main starts the device manager HTTP server.
//
// All settings come from the environment (see internal/config). The minimum
// for a local run:
//
//	GOOGLE_CLIENT_ID=... GOOGLE_CLIENT_SECRET=... SECRET_KEY=$(openssl rand -hex 32) \
//	    go run ./cmd/server
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/sakif/device-manager/internal/config"
	"github.com/sakif/device-manager/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// no configured logger yet
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	srv, err := server.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT or SIGTERM
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
