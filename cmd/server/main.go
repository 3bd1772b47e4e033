// Package main - Entry point for the SDA calculator API server
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"sda-calculator/internal/app"
	"sda-calculator/internal/config"
	"sda-calculator/internal/logging"
)

var version = "1.0.0"

func main() {
	configPath := flag.String("config", os.Getenv("SDA_CONFIG"), "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	config.Set(cfg)

	if err := logging.Initialize(cfg.Logging); err != nil {
		panic(err)
	}
	defer logging.Sync()
	logger := logging.Named("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, version, logger)
	if err != nil {
		logger.Fatal("failed to start", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("failed to close database", zap.Error(err))
		}
	}()

	logger.Info("SDA calculator API",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("refresh", cfg.Refresh.Enabled),
	)

	if err := a.Run(ctx); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		stop()
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}
