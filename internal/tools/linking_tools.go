package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/scope"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// registerLinkingTools registers the linking-category tools: symmetric
// memory-to-memory links, distinct from the typed
// project/document/code_artifact/entity associations a memory also carries.
func registerLinkingTools(r *Registry, deps Deps) error {
	if err := r.Register(Metadata{
		Name:        "get_linked_memories",
		Description: "Fetch a memory's one-hop linked neighbors via the link table, excluding obsolete rows.",
		Category:    scope.CategoryLinking,
		Parameters: []Parameter{
			{Name: "memory_id", Type: "integer", Required: true},
			{Name: "project_ids", Type: "array", Description: "Restrict to neighbors sharing at least one of these projects"},
			{Name: "max_links", Type: "integer", Default: defaultLinkedMax},
		},
		Returns: "List of linked Memories, ordered by importance DESC.",
	}, getLinkedMemoriesImpl(deps.Repo)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "create_link",
		Description: "Link two memories symmetrically. A duplicate link is reported as AlreadyLinked, not a fatal error.",
		Category:    scope.CategoryLinking,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "source_id", Type: "integer", Required: true},
			{Name: "target_id", Type: "integer", Required: true},
		},
		Returns: "{success: bool}",
	}, createLinkImpl(deps.Repo)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "create_links_batch",
		Description: "Link one memory to many others, skipping self-links, duplicates, and missing targets.",
		Category:    scope.CategoryLinking,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "source_id", Type: "integer", Required: true},
			{Name: "target_ids", Type: "array", Required: true},
		},
		Returns: "{linked_ids: list<int>}",
	}, createLinksBatchImpl(deps.Repo)); err != nil {
		return err
	}

	return nil
}

func getLinkedMemoriesImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			MemoryID   int64   `json:"memory_id"`
			ProjectIDs []int64 `json:"project_ids"`
			MaxLinks   int     `json:"max_links"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.MaxLinks <= 0 {
			in.MaxLinks = defaultLinkedMax
		}
		linked, err := repo.GetLinkedMemories(ctx, userID, in.MemoryID, in.ProjectIDs, in.MaxLinks)
		if err != nil {
			return nil, err
		}
		return struct {
			MemoryID       int64          `json:"memory_id"`
			LinkedMemories []model.Memory `json:"linked_memories"`
		}{in.MemoryID, linked}, nil
	}
}

func createLinkImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			SourceID int64 `json:"source_id"`
			TargetID int64 `json:"target_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.SourceID == 0 || in.TargetID == 0 {
			return nil, apperr.Validationf("source_id and target_id are required")
		}
		if err := repo.CreateLink(ctx, userID, in.SourceID, in.TargetID); err != nil && !apperr.Is(err, apperr.AlreadyLinked) {
			return nil, err
		}
		return map[string]bool{"success": true}, nil
	}
}

func createLinksBatchImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			SourceID  int64   `json:"source_id"`
			TargetIDs []int64 `json:"target_ids"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.SourceID == 0 || len(in.TargetIDs) == 0 {
			return nil, apperr.Validationf("source_id and target_ids are required")
		}
		linkedIDs, err := repo.CreateLinksBatch(ctx, userID, in.SourceID, in.TargetIDs)
		if err != nil {
			return nil, err
		}
		return map[string]any{"linked_ids": linkedIDs}, nil
	}
}
