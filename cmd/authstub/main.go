package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"searchkit/sessionclient/internal/app"
	"searchkit/sessionclient/internal/config"
	"searchkit/sessionclient/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stub, err := app.NewStub(cfg, logger)
	if err != nil {
		log.Fatalf("create stub: %v", err)
	}

	if err := stub.Run(ctx); err != nil {
		log.Fatalf("run stub: %v", err)
	}
}
