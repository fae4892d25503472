package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/BearBump/PointBox/config"
	"github.com/BearBump/PointBox/internal/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Setup()

	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := RunPointRefresher(ctx, cfg, defaultRefresherFactories()); err != nil && err != context.Canceled {
		panic(err)
	}
}
