package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/auth"
	"github.com/forgetful-ai/forgetful/internal/config"
	"github.com/forgetful-ai/forgetful/internal/reembed"
)

var reembedToken string

var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Re-embed a user's memories against the configured embedding adapter",
	Long: `reembed runs the five-step re-embed pipeline (count, reset
vector storage, re-embed in pages, bulk write, validate) for one user,
used after switching embedding providers or models, or to recover from
a corrupted vector index.`,
	RunE: runReembed,
}

func init() {
	reembedCmd.Flags().StringVar(&reembedToken, "token", "", "bearer token identifying the user to re-embed (required)")
}

func runReembed(cmd *cobra.Command, args []string) error {
	if reembedToken == "" {
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
	userID := auth.DeriveUserID(namespace, reembedToken)

	orchestrator := reembed.New(d.repo, d.embedder, reembed.DefaultPageSize, logger.Underlying())

	result, err := orchestrator.Run(context.Background(), userID, func(p reembed.Progress) {
		logger.Underlying().Info("reembed progress",
			zap.Int("processed", p.Processed), zap.Int("total", p.Total))
	})
	if err != nil {
		return fmt.Errorf("reembed: %w", err)
	}

	logger.Underlying().Info("reembed complete",
		zap.Bool("count_ok", result.CountOK),
		zap.Bool("dimensions_ok", result.DimensionsOK),
		zap.Bool("search_ok", result.SearchOK))
	if !result.AllPassed() {
		return fmt.Errorf("reembed validation failed: %+v", result)
	}
	return nil
}
