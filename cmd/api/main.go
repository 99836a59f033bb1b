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

	srv := app.NewServer(config.Load(), logger)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("api server failed", zap.Error(err))
	}
	logger.Info("api server stopped")
}
