package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tradebot/internal/app"
	"tradebot/internal/infra"
)

func main() {
	configPath := flag.String("config", infra.DefaultConfigPath, "path to the yaml config file")
	resetStop := flag.Bool("reset-emergency-stop", false, "release latched emergency stops before starting")
	flag.Parse()

	// 1. System Bootstrapping
	bootstrap := app.NewBootstrap(*configPath)
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Close()

	if *resetStop {
		for _, ex := range bootstrap.Exchanges {
			if ex.Stop.Halted() {
				ex.Stop.Reset()
			}
		}
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := bootstrap.Config

	// 3. Metrics endpoint
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := bootstrap.Metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				slog.Error("Metrics server failed", slog.Any("error", err))
			}
		}()
		slog.InfoContext(ctx, "✅ Metrics server started", slog.String("listen", cfg.Metrics.Listen))
	}

	// 4. Monitors (blocks until shutdown)
	slog.InfoContext(ctx, "✨ tradebot fully operational. Press Ctrl+C to exit.",
		slog.String("version", cfg.App.Version),
	)
	bootstrap.Run(ctx)

	bootstrap.LogSummary()
	slog.Info("👋 Shutting down gracefully...")
}
