package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/app"
	"github.com/lcalzada-xor/vulnfleet/internal/config"
	"github.com/lcalzada-xor/vulnfleet/internal/telemetry"
)

var version = "dev"

func main() {
	// load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger, err := telemetry.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Initialize Tracing
	if cfg.Trace {
		shutdownTracer, err := telemetry.InitTracer(os.Stdout, version)
		if err != nil {
			logger.Error("failed to init tracer", zap.Error(err))
		} else {
			defer func() {
				if err := shutdownTracer(context.Background()); err != nil {
					logger.Error("failed to shutdown tracer", zap.Error(err))
				}
			}()
		}
	}

	// Root Context with cancellation on Interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("vulnfleet starting", zap.String("version", version), zap.String("addr", cfg.Addr))

	if err := application.Run(ctx); err != nil {
		logger.Error("application error", zap.Error(err))
		cancel()
		os.Exit(1)
	}
}
