package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pogodex/dexsync/dexsync"
	"github.com/pogodex/dexsync/dexsync/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	// Initialize custom logger
	customHandler := logger.NewHandler()
	slog.SetDefault(slog.New(customHandler))

	slog.Info("Starting DexSync Engine",
		slog.String("version", version),
		slog.String("commit", commit))

	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := dexsync.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startTime := time.Now()
	app, err := dexsync.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize engine",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(startTime)))
		os.Exit(-1)
	}

	bootCtx, bootCancel := context.WithTimeout(ctx, 2*time.Minute)
	if err := app.Bootstrap(bootCtx); err != nil {
		bootCancel()
		slog.Error("Bootstrap failed", slog.Any("error", err))
		_ = app.Close()
		os.Exit(-1)
	}
	bootCancel()

	slog.Info("Engine ready",
		slog.Duration("took", time.Since(startTime)),
		slog.Bool("session_valid", app.Session.Valid()))

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s

	slog.Info("Shutting down...")
	cancel()
	if err := app.Close(); err != nil {
		slog.Error("Shutdown error", slog.Any("error", err))
	}
}
