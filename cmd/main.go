package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"sales-agent/handler"
	"sales-agent/internal/app"
	"sales-agent/internal/config"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (defaults + SALES_* environment) ----
	cfg, err := config.Load(os.Getenv("SALES_CONFIG_FILE"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	// ---- Service ----
	a, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("failed to build sales service", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	h, err := handler.NewHandler(a.Service)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
