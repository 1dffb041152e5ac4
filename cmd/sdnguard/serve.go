package main

import (
	"context"
	"errors"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mindburn-Labs/sdnguard/pkg/api"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP chat service (default)",
		Args:  noArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.Close(closeCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	srv := api.NewServer(a.assistant, a.catalog,
		api.WithCORSOrigin(cfg.CORSAllowedOrigin),
		api.WithVersion(version),
		api.WithLogger(logger.With("component", "api")),
	)
	addr := net.JoinHostPort("", cfg.Port)
	logger.InfoContext(ctx, "listening", "addr", addr)
	err = api.ListenAndServe(ctx, addr, srv.Handler(), shutdownGrace)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}
