package main

import (
	"context"

	"github.com/joho/godotenv"

	"github.com/BearBump/PointBox/internal/logger"
)

func main() {
	_ = godotenv.Load()
	logger.Setup()

	app := mustBootstrapPointAPI()
	defer app.Close()

	if err := app.Run(); err != nil && err != context.Canceled {
		panic(err)
	}
}
