package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"guardian-recovery/internal/app"
	"guardian-recovery/internal/config"
	"guardian-recovery/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logHandler := logger.NewPrettyHandler(os.Stdout, &logger.Options{
		Level:   logger.ParseLevel(cfg.LogLevel),
		NoColor: os.Getenv("NO_COLOR") != "",
	})
	slog.SetDefault(slog.New(logHandler))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
