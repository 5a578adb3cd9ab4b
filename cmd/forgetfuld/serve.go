package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/auth"
	"github.com/forgetful-ai/forgetful/internal/config"
	"github.com/forgetful-ai/forgetful/internal/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the multi-tenant HTTP REST surface",
	Long: `serve starts Forgetful's HTTP server: every request carries its
own bearer token, resolved to a UserID per request via the auth
collaborator, so one process serves every tenant.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, tel, err := setupObservability(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = tel.Shutdown(context.Background()) }()

	d, err := buildDeps(cfg, logger.Underlying())
	if err != nil {
		return fmt.Errorf("building dependencies: %w", err)
	}
	defer d.Close()

	namespace, err := cfg.Auth.ParseNamespace()
	if err != nil {
		return fmt.Errorf("auth namespace: %w", err)
	}
	authResolver := auth.NewResolver(namespace)

	srv, err := httpapi.NewServer(d.repo, d.compose, d.traverser, d.linker, authResolver, logger.Underlying(), httpapi.Config{
		Port:    cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("building http server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Underlying().Info("starting forgetfuld HTTP server", zap.Int("port", cfg.Server.Port))
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Underlying().Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
