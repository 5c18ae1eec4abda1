package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chatrelay/internal/server"
	"chatrelay/pkg/config"
	"chatrelay/pkg/logging"
)

func main() {
	bootLogger := logging.New(logging.LevelInfo)

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := server.NewApp(logger, ctx, cfg)
	if err := app.Run(); err != nil {
		logger.Error("application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application shut down successfully")
}
