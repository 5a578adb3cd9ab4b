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
	"github.com/forgetful-ai/forgetful/internal/mcpserver"
)

var mcpToken string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the stdio MCP surface for a single resolved user",
	Long: `mcp starts Forgetful's MCP server on stdio: unlike serve, a
stdio process is launched per-user by its MCP client (e.g. an editor),
so the user identity is resolved once from --token at startup rather
than per request.`,
	RunE: runMCP,
}

func init() {
	mcpCmd.Flags().StringVar(&mcpToken, "token", "", "bearer token identifying the user this process serves (required)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	if mcpToken == "" {
		return fmt.Errorf("--token is required")
	}

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
	userID := auth.DeriveUserID(namespace, mcpToken)

	instanceScopes, err := cfg.Scope.Parse()
	if err != nil {
		return fmt.Errorf("instance scope: %w", err)
	}

	mcpSrv, err := mcpserver.NewServer(&mcpserver.Config{Name: "forgetfuld", Version: version}, d.dispatch, userID, instanceScopes, logger.Underlying())
	if err != nil {
		return fmt.Errorf("building mcp server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Underlying().Info("serving MCP", zap.String("user_id", userID.String()))
	return mcpSrv.Run(ctx)
}
