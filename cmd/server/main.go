package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/browser-source/internal/infrastructure/config"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/logging"
	"github.com/GriffinCanCode/browser-source/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	// Flags override the environment
	port := flag.String("port", cfg.Server.Port, "Server port")
	sources := flag.String("sources", cfg.Sources.File, "Source definitions file or glob (.yaml, .toml or .json)")
	level := flag.String("log-level", cfg.Logging.Level, "Log level")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	cfg.Server.Port = *port
	cfg.Sources.File = *sources
	cfg.Logging.Level = *level
	cfg.Logging.Development = *dev

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	srv, err := server.NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)
	if runErr != nil {
		logger.Error("Server error", zap.Error(runErr))
	} else {
		logger.Info("Shutting down gracefully...")
	}

	if err := srv.Close(); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
	if runErr != nil {
		logger.Close()
		os.Exit(1)
	}
}
