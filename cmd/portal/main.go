package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"unitevol-service/internal/app"
	"unitevol-service/internal/config"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("[MAIN] No .env file found, relying on system env vars")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadPortal()
	logger.Info("starting portal",
		zap.String("instance", cfg.InstanceID),
		zap.String("identity_url", cfg.IdentityURL),
	)

	if err := app.NewPortal(cfg, logger).Start(ctx); err != nil {
		logger.Fatal("portal failed", zap.Error(err))
	}
	logger.Info("portal stopped")
}
