package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sales-agent/handler"
	"sales-agent/internal/app"
	"sales-agent/internal/httpserver"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sales API over HTTP",
		RunE:  runServe,
	}
	cmd.Flags().String("listen", "", "listen address (overrides server.listen)")
	cmd.Flags().StringSlice("cors-origin", nil, "allowed CORS origin, repeatable")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	origins, _ := cmd.Flags().GetStringSlice("cors-origin")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("salesctl: closing app", "err", err)
		}
	}()

	h, err := handler.NewHandler(a.Service)
	if err != nil {
		return err
	}
	srv, err := httpserver.New(httpserver.Config{ListenAddr: cfg.Server.Listen, CORSOrigins: origins}, h.Handle)
	if err != nil {
		return err
	}

	slog.Info("salesctl: serving", "listen", cfg.Server.Listen)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}
