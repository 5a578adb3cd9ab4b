package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/auth"
	"github.com/forgetful-ai/forgetful/internal/config"
	"github.com/forgetful-ai/forgetful/internal/embeddings"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage"
	embeddedstore "github.com/forgetful-ai/forgetful/internal/storage/embedded"
	serverstore "github.com/forgetful-ai/forgetful/internal/storage/server"
)

var (
	migrateFromBackend string
	migrateToBackend    string
	migrateToken        string
	migrateDryRun        bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy one user's data between storage backends",
	Long: `migrate copies a single user's projects, documents, code
artifacts, entities, relationships, and memories (with links
re-created) from one storage.Repository backend to another, e.g. moving
a deployment from the embedded (chromem-go) backend to Qdrant. It reads
and writes through the storage.Repository contract directly, so it
works against either concrete backend without a wire-format
dependency.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFromBackend, "from", "embedded", "source backend: embedded | qdrant")
	migrateCmd.Flags().StringVar(&migrateToBackend, "to", "qdrant", "destination backend: embedded | qdrant")
	migrateCmd.Flags().StringVar(&migrateToken, "token", "", "bearer token identifying the user to migrate (required)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "report counts without writing to the destination")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateToken == "" {
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
	zlog := logger.Underlying()

	embedder, err := embeddings.NewAdapter(embeddings.ProviderConfig{
		Provider: cfg.Embeddings.Provider, Model: cfg.Embeddings.Model,
		BaseURL: cfg.Embeddings.BaseURL, CacheDir: cfg.Embeddings.CacheDir,
	})
	if err != nil {
		return fmt.Errorf("embedding adapter: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	src, err := openBackend(migrateFromBackend, cfg, embedder, zlog)
	if err != nil {
		return fmt.Errorf("opening source backend %q: %w", migrateFromBackend, err)
	}
	defer func() { _ = src.Close() }()

	var dst storage.Repository
	if !migrateDryRun {
		dst, err = openBackend(migrateToBackend, cfg, embedder, zlog)
		if err != nil {
			return fmt.Errorf("opening destination backend %q: %w", migrateToBackend, err)
		}
		defer func() { _ = dst.Close() }()
	}

	namespace, err := cfg.Auth.ParseNamespace()
	if err != nil {
		return fmt.Errorf("auth namespace: %w", err)
	}
	userID := auth.DeriveUserID(namespace, migrateToken)

	return copyUser(context.Background(), src, dst, userID, migrateDryRun, zlog)
}

func openBackend(backend string, cfg *config.Config, embedder embeddings.Adapter, logger *zap.Logger) (storage.Repository, error) {
	switch backend {
	case "embedded":
		return embeddedstore.New(embeddedstore.Config{
			Path: cfg.Storage.Embedded.Path, Compress: cfg.Storage.Embedded.Compress,
		}, embedder, logger)
	case "qdrant":
		scfg := serverstore.Config{
			Host: cfg.Storage.Qdrant.Host, Port: cfg.Storage.Qdrant.Port,
			CollectionName: cfg.Storage.Qdrant.CollectionName,
			VectorSize:     uint64(cfg.Embeddings.Dimensions),
			UseTLS:         cfg.Storage.Qdrant.UseTLS,
		}
		scfg.ApplyDefaults()
		return serverstore.New(scfg, embedder, logger)
	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

// copyUser copies every row owned by userID from src to dst in this
// order: entities, then their relationships (endpoints mapped to the new
// entity IDs), then projects, documents and code artifacts, then
// memories, then the links among the copied memories (mapped to the new
// memory IDs).
func copyUser(ctx context.Context, src, dst storage.Repository, userID uuid.UUID, dryRun bool, logger *zap.Logger) error {
	projects, err := src.ListProjects(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing projects: %w", err)
	}
	documents, err := src.ListDocuments(ctx, userID, nil)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	artifacts, err := src.ListCodeArtifacts(ctx, userID, nil)
	if err != nil {
		return fmt.Errorf("listing code artifacts: %w", err)
	}
	entities, err := src.ListEntities(ctx, userID, nil)
	if err != nil {
		return fmt.Errorf("listing entities: %w", err)
	}
	memories, total, err := src.ListMemories(ctx, userID, storage.ListMemoriesOptions{
		Limit: 1 << 30, SortBy: storage.SortByCreatedAt, SortOrder: storage.SortAsc, IncludeObsolete: true,
	})
	if err != nil {
		return fmt.Errorf("listing memories: %w", err)
	}

	logger.Info("migration source counts",
		zap.Int("projects", len(projects)), zap.Int("documents", len(documents)),
		zap.Int("code_artifacts", len(artifacts)), zap.Int("entities", len(entities)),
		zap.Int("memories", total))

	if dryRun {
		logger.Info("dry run: no data written")
		return nil
	}

	entityIDMap := make(map[int64]int64, len(entities))
	for _, e := range entities {
		e := e
		created, err := dst.CreateEntity(ctx, userID, &model.Entity{
			Name: e.Name, EntityType: e.EntityType, CustomType: e.CustomType,
			ProjectID: e.ProjectID, AKA: e.AKA, Tags: e.Tags,
		})
		if err != nil {
			return fmt.Errorf("copying entity %d: %w", e.ID, err)
		}
		entityIDMap[e.ID] = created.ID
	}

	for _, rels := range entities {
		relationships, err := src.ListRelationshipsForEntity(ctx, userID, rels.ID)
		if err != nil {
			return fmt.Errorf("listing relationships for entity %d: %w", rels.ID, err)
		}
		for _, r := range relationships {
			r := r
			if _, err := dst.CreateRelationship(ctx, userID, &model.EntityRelationship{
				SourceEntityID: entityIDMap[r.SourceEntityID], TargetEntityID: entityIDMap[r.TargetEntityID],
				RelationshipType: r.RelationshipType, Strength: r.Strength,
				Confidence: r.Confidence, Metadata: r.Metadata,
			}); err != nil {
				return fmt.Errorf("copying relationship %d: %w", r.ID, err)
			}
		}
	}

	for _, p := range projects {
		p := p
		if _, err := dst.CreateProject(ctx, userID, &p); err != nil {
			return fmt.Errorf("copying project %d: %w", p.ID, err)
		}
	}
	for _, d := range documents {
		d := d
		if _, err := dst.CreateDocument(ctx, userID, &d); err != nil {
			return fmt.Errorf("copying document %d: %w", d.ID, err)
		}
	}
	for _, a := range artifacts {
		a := a
		if _, err := dst.CreateCodeArtifact(ctx, userID, &a); err != nil {
			return fmt.Errorf("copying code artifact %d: %w", a.ID, err)
		}
	}

	memoryIDMap := make(map[int64]int64, len(memories))
	for _, m := range memories {
		m := m
		created, err := dst.CreateMemory(ctx, userID, model.MemoryCreate{
			Title: m.Title, Content: m.Content, Context: m.Context,
			Keywords: m.Keywords, Tags: m.Tags, Importance: m.Importance,
			ProjectIDs: m.ProjectIDs, CodeArtifactIDs: m.CodeArtifactIDs,
			DocumentIDs: m.DocumentIDs, EntityIDs: m.EntityIDs,
		})
		if err != nil {
			return fmt.Errorf("copying memory %d: %w", m.ID, err)
		}
		memoryIDMap[m.ID] = created.ID
		if m.IsObsolete {
			if _, err := dst.MarkObsolete(ctx, userID, created.ID, m.ObsoleteReason, nil); err != nil {
				return fmt.Errorf("marking memory %d obsolete: %w", created.ID, err)
			}
		}
	}

	for _, m := range memories {
		linked, err := src.GetLinkedMemories(ctx, userID, m.ID, nil, 1<<30)
		if err != nil {
			return fmt.Errorf("listing links for memory %d: %w", m.ID, err)
		}
		targetIDs := make([]int64, 0, len(linked))
		for _, l := range linked {
			if newID, ok := memoryIDMap[l.ID]; ok {
				targetIDs = append(targetIDs, newID)
			}
		}
		if len(targetIDs) == 0 {
			continue
		}
		if _, err := dst.CreateLinksBatch(ctx, userID, memoryIDMap[m.ID], targetIDs); err != nil {
			return fmt.Errorf("copying links for memory %d: %w", m.ID, err)
		}
	}

	logger.Info("migration complete", zap.Int("memories_copied", len(memoryIDMap)))
	return nil
}
