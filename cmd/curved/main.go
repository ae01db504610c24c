// ====================================
// File: cmd/curved/main.go
// ====================================
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rovshanmuradov/pumpcurve/internal/config"
	"github.com/rovshanmuradov/pumpcurve/internal/daemon"
	"github.com/rovshanmuradov/pumpcurve/internal/utils/logger"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/curved.yaml", "Path to config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger, err := logger.New(&cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	appLogger.Info("Starting curve daemon", zap.String("config", *configPath))

	runner := daemon.NewRunner(cfg, appLogger)
	if err := runner.Initialize(ctx); err != nil {
		appLogger.Error("Failed to initialize daemon", zap.Error(err))
		_ = runner.Shutdown()
		os.Exit(1)
	}

	runErr := runner.Run(ctx)
	if runErr != nil {
		appLogger.Error("Daemon stopped with error", zap.Error(runErr))
	}
	if err := runner.Shutdown(); err != nil {
		appLogger.Warn("Shutdown incomplete", zap.Error(err))
	}
	if runErr != nil {
		os.Exit(1)
	}
}
