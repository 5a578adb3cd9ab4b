package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/autolink"
	"github.com/forgetful-ai/forgetful/internal/composer"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/scope"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// Defaults mirrored from internal/httpapi's search handler, since
// query_memory is the tool-surface equivalent of POST
// /api/v1/memories/search and must apply the same fallbacks.
const (
	defaultSearchK            = 10
	defaultTokenContextBudget = 4000
	defaultMaxMemories        = 20
	defaultMaxLinksPerPrimary = 3
	defaultFindSimilarMax     = 5
	defaultLinkedMax          = 10
)

// registerMemoryTools registers the memory-category tools: the
// atomic-memory CRUD surface, the composed-query tool, and the
// similarity/linking primitives that back auto-linking.
func registerMemoryTools(r *Registry, deps Deps) error {
	if err := r.Register(Metadata{
		Name:        "create_memory",
		Description: "Create a new atomic memory. An embedding is generated from title+content+context+keywords+tags, and (when enabled) the memory is auto-linked to similar existing memories.",
		Category:    scope.CategoryMemory,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "title", Type: "string", Description: "Short label for the memory", Required: true},
			{Name: "content", Type: "string", Description: "The memory's body", Required: true},
			{Name: "context", Type: "string", Description: "Situational context the memory applies to"},
			{Name: "keywords", Type: "array", Description: "Up to 10 keywords"},
			{Name: "tags", Type: "array", Description: "Up to 10 tags"},
			{Name: "importance", Type: "integer", Description: "1-10, defaults to 7"},
			{Name: "project_ids", Type: "array", Description: "Projects this memory belongs to"},
			{Name: "code_artifact_ids", Type: "array"},
			{Name: "document_ids", Type: "array"},
			{Name: "entity_ids", Type: "array"},
		},
		Returns: "The created Memory, including auto-linked memory IDs.",
	}, createMemoryImpl(deps.Linker)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "get_memory_by_id",
		Description: "Fetch a memory by ID. Returns obsolete memories too.",
		Category:    scope.CategoryMemory,
		Parameters:  []Parameter{{Name: "id", Type: "integer", Required: true}},
		Returns:     "The Memory, or NotFound.",
	}, getMemoryByIDImpl(deps.Repo)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "list_memories",
		Description: "List memories with optional filters, sorting, and pagination.",
		Category:    scope.CategoryMemory,
		Parameters: []Parameter{
			{Name: "limit", Type: "integer", Default: 20},
			{Name: "offset", Type: "integer", Default: 0},
			{Name: "sort_by", Type: "string", Description: "created_at | updated_at | importance"},
			{Name: "sort_order", Type: "string", Description: "asc | desc"},
			{Name: "tags", Type: "array"},
			{Name: "importance_min", Type: "integer"},
			{Name: "project_id", Type: "integer"},
			{Name: "include_obsolete", Type: "boolean"},
		},
		Returns: "{memories, total, limit, offset}",
	}, listMemoriesImpl(deps.Repo)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "update_memory",
		Description: "Apply a partial update to a memory. Fields touching the embedding text trigger regeneration.",
		Category:    scope.CategoryMemory,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "id", Type: "integer", Required: true},
			{Name: "title", Type: "string"}, {Name: "content", Type: "string"}, {Name: "context", Type: "string"},
			{Name: "keywords", Type: "array"}, {Name: "tags", Type: "array"}, {Name: "importance", Type: "integer"},
			{Name: "project_ids", Type: "array"}, {Name: "code_artifact_ids", Type: "array"},
			{Name: "document_ids", Type: "array"}, {Name: "entity_ids", Type: "array"},
		},
		Returns: "The updated Memory.",
	}, updateMemoryImpl(deps.Repo)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "mark_obsolete",
		Description: "Mark a memory obsolete. It is excluded from semantic search and linking but remains fetchable by ID.",
		Category:    scope.CategoryMemory,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "id", Type: "integer", Required: true},
			{Name: "reason", Type: "string"},
			{Name: "superseded_by", Type: "integer"},
		},
		Returns: "{success: bool}",
	}, markObsoleteImpl(deps.Repo)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "query_memory",
		Description: "Run the composed retrieval pipeline: semantic search plus optional one-hop linked memories, truncated to a token budget.",
		Category:    scope.CategoryMemory,
		Parameters: []Parameter{
			{Name: "query", Type: "string", Required: true},
			{Name: "query_context", Type: "string"},
			{Name: "k", Type: "integer", Default: defaultSearchK},
			{Name: "include_links", Type: "boolean"},
			{Name: "max_links_per_primary", Type: "integer", Default: defaultMaxLinksPerPrimary},
			{Name: "token_context_threshold", Type: "integer", Default: defaultTokenContextBudget},
			{Name: "max_memories", Type: "integer", Default: defaultMaxMemories},
			{Name: "importance_threshold", Type: "integer"},
			{Name: "project_ids", Type: "array"},
			{Name: "strict_project_filter", Type: "boolean"},
		},
		Returns: "{query, primary_memories, linked_memories, total_count, token_count, truncated}",
	}, queryMemoryImpl(deps.Compose)); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "find_similar_memories",
		Description: "Find the nearest neighbors of an existing memory's embedding, excluding itself and obsolete rows.",
		Category:    scope.CategoryMemory,
		Parameters: []Parameter{
			{Name: "memory_id", Type: "integer", Required: true},
			{Name: "max_links", Type: "integer", Default: defaultFindSimilarMax},
		},
		Returns: "List of similar Memories.",
	}, findSimilarMemoriesImpl(deps.Repo)); err != nil {
		return err
	}

	return nil
}

func createMemoryImpl(linker *autolink.Linker) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in model.MemoryCreate
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Title == "" || in.Content == "" {
			return nil, apperr.Validationf("title and content are required")
		}
		memory, similar, err := linker.Create(ctx, userID, in)
		if err != nil {
			return nil, err
		}
		return struct {
			model.Memory
			SimilarMemories []model.Memory `json:"similar_memories,omitempty"`
		}{Memory: *memory, SimilarMemories: similar}, nil
	}
}

func getMemoryByIDImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID int64 `json:"id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return repo.GetMemoryByID(ctx, userID, in.ID)
	}
}

func listMemoriesImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			Limit           int      `json:"limit"`
			Offset          int      `json:"offset"`
			SortBy          string   `json:"sort_by"`
			SortOrder       string   `json:"sort_order"`
			Tags            []string `json:"tags"`
			ImportanceMin   *int     `json:"importance_min"`
			ProjectID       *int64   `json:"project_id"`
			IncludeObsolete bool     `json:"include_obsolete"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Limit <= 0 {
			in.Limit = defaultMaxMemories
		}
		sortBy := storage.SortField(in.SortBy)
		if sortBy == "" {
			sortBy = storage.SortByCreatedAt
		}
		sortOrder := storage.SortOrder(in.SortOrder)
		if sortOrder == "" {
			sortOrder = storage.SortDesc
		}

		memories, total, err := repo.ListMemories(ctx, userID, storage.ListMemoriesOptions{
			Limit: in.Limit, Offset: in.Offset, SortBy: sortBy, SortOrder: sortOrder,
			Tags: in.Tags, ImportanceMin: in.ImportanceMin, ProjectID: in.ProjectID,
			IncludeObsolete: in.IncludeObsolete,
		})
		if err != nil {
			return nil, err
		}
		return struct {
			Memories []model.Memory `json:"memories"`
			Total    int            `json:"total"`
			Limit    int            `json:"limit"`
			Offset   int            `json:"offset"`
		}{memories, total, in.Limit, in.Offset}, nil
	}
}

func updateMemoryImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID              int64     `json:"id"`
			Title           *string   `json:"title"`
			Content         *string   `json:"content"`
			Context         *string   `json:"context"`
			Keywords        *[]string `json:"keywords"`
			Tags            *[]string `json:"tags"`
			Importance      *int      `json:"importance"`
			ProjectIDs      *[]int64  `json:"project_ids"`
			CodeArtifactIDs *[]int64  `json:"code_artifact_ids"`
			DocumentIDs     *[]int64  `json:"document_ids"`
			EntityIDs       *[]int64  `json:"entity_ids"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.ID == 0 {
			return nil, apperr.Validationf("id is required")
		}

		patch := model.MemoryUpdate{Title: in.Title, Content: in.Content, Context: in.Context, Importance: in.Importance}
		if in.Keywords != nil {
			patch.Keywords, patch.KeywordsSet = *in.Keywords, true
		}
		if in.Tags != nil {
			patch.Tags, patch.TagsSet = *in.Tags, true
		}
		if in.ProjectIDs != nil {
			patch.ProjectIDs, patch.ProjectIDsSet = *in.ProjectIDs, true
		}
		if in.CodeArtifactIDs != nil {
			patch.CodeArtifactIDs, patch.CodeArtifactIDsSet = *in.CodeArtifactIDs, true
		}
		if in.DocumentIDs != nil {
			patch.DocumentIDs, patch.DocumentIDsSet = *in.DocumentIDs, true
		}
		if in.EntityIDs != nil {
			patch.EntityIDs, patch.EntityIDsSet = *in.EntityIDs, true
		}

		return repo.UpdateMemory(ctx, userID, in.ID, patch)
	}
}

func markObsoleteImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID           int64  `json:"id"`
			Reason       string `json:"reason"`
			SupersededBy *int64 `json:"superseded_by"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.ID == 0 {
			return nil, apperr.Validationf("id is required")
		}
		ok, err := repo.MarkObsolete(ctx, userID, in.ID, in.Reason, in.SupersededBy)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"success": ok}, nil
	}
}

func queryMemoryImpl(compose *composer.Composer) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			Query                 string  `json:"query"`
			QueryContext           string  `json:"query_context"`
			K                      int     `json:"k"`
			IncludeLinks           bool    `json:"include_links"`
			MaxLinksPerPrimary     int     `json:"max_links_per_primary"`
			TokenContextThreshold  int     `json:"token_context_threshold"`
			MaxMemories            int     `json:"max_memories"`
			ImportanceThreshold    *int    `json:"importance_threshold"`
			ProjectIDs             []int64 `json:"project_ids"`
			StrictProjectFilter    bool    `json:"strict_project_filter"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Query == "" {
			return nil, apperr.Validationf("query is required")
		}
		if in.K <= 0 {
			in.K = defaultSearchK
		}
		if in.TokenContextThreshold <= 0 {
			in.TokenContextThreshold = defaultTokenContextBudget
		}
		if in.MaxMemories <= 0 {
			in.MaxMemories = defaultMaxMemories
		}
		if in.IncludeLinks && in.MaxLinksPerPrimary <= 0 {
			in.MaxLinksPerPrimary = defaultMaxLinksPerPrimary
		}

		result, err := compose.Query(ctx, userID, composer.Request{
			Query: in.Query, QueryContext: in.QueryContext, K: in.K,
			IncludeLinks: in.IncludeLinks, MaxLinksPerPrimary: in.MaxLinksPerPrimary,
			TokenContextThreshold: in.TokenContextThreshold, MaxMemories: in.MaxMemories,
			ImportanceThreshold: in.ImportanceThreshold, ProjectIDs: in.ProjectIDs,
			StrictProjectFilter: in.StrictProjectFilter,
		})
		if err != nil {
			return nil, err
		}
		return struct {
			Query           string                  `json:"query"`
			PrimaryMemories []model.Memory          `json:"primary_memories"`
			LinkedMemories  []composer.LinkedMemory `json:"linked_memories"`
			TotalCount      int                     `json:"total_count"`
			TokenCount      int                     `json:"token_count"`
			Truncated       bool                    `json:"truncated"`
		}{result.Query, result.Primary, result.Linked, result.TotalCount, result.TokenCount, result.Truncated}, nil
	}
}

func findSimilarMemoriesImpl(repo storage.Repository) Implementation {
	return func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			MemoryID  int64 `json:"memory_id"`
			MaxLinks  int   `json:"max_links"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.MaxLinks <= 0 {
			in.MaxLinks = defaultFindSimilarMax
		}
		return repo.FindSimilarMemories(ctx, userID, in.MemoryID, in.MaxLinks)
	}
}
