package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/rankboard/rankboard/internal/app"
	"github.com/rankboard/rankboard/internal/config"
	"github.com/rankboard/rankboard/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	log := logging.New("server")

	cfg := config.LoadOrDefault(*configPath)

	application, err := app.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("application setup failed")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.WithError(err).Error("server failed")
		_ = application.Shutdown(context.Background())
		os.Exit(1)
	}

	log.Info("shutting down")
	if err := application.Shutdown(context.Background()); err != nil {
		log.WithError(err).Error("shutdown failed")
		os.Exit(1)
	}
}
