package httpapi

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/auth"
	"github.com/forgetful-ai/forgetful/internal/composer"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

const (
	// defaultSearchK is the number of primary memories returned when a
	// search request omits k.
	defaultSearchK             = 10
	defaultTokenContextBudget  = 4000
	defaultMaxMemories         = 20
	defaultMaxLinksPerPrimary  = 3
)

func userIDOrUnauthorized(c echo.Context) (uuid.UUID, error) {
	id, ok := auth.UserIDFromContext(c)
	if !ok {
		return uuid.Nil, apperr.New(apperr.PermissionDenied, "no authenticated user in request context")
	}
	return id, nil
}

// listMemoriesResponse is GET /api/v1/memories' success body.
type listMemoriesResponse struct {
	Memories []model.Memory `json:"memories"`
	Total    int            `json:"total"`
	Limit    int            `json:"limit"`
	Offset   int            `json:"offset"`
}

func (s *Server) handleListMemories(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}

	limit, offset, err := parseLimitOffset(c)
	if err != nil {
		return writeError(c, err)
	}
	sortBy, err := parseSortBy(c)
	if err != nil {
		return writeError(c, err)
	}
	sortOrder, err := parseSortOrder(c)
	if err != nil {
		return writeError(c, err)
	}
	importanceMin, err := parseIntPtr(c, "importance_min")
	if err != nil {
		return writeError(c, err)
	}
	projectID, err := parseInt64Ptr(c, "project_id")
	if err != nil {
		return writeError(c, err)
	}
	includeObsolete, err := parseBool(c, "include_obsolete")
	if err != nil {
		return writeError(c, err)
	}

	memories, total, err := s.repo.ListMemories(c.Request().Context(), userID, storage.ListMemoriesOptions{
		Limit:           limit,
		Offset:          offset,
		SortBy:          sortBy,
		SortOrder:       sortOrder,
		Tags:            parseTags(c),
		ImportanceMin:   importanceMin,
		ProjectID:       projectID,
		IncludeObsolete: includeObsolete,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, listMemoriesResponse{
		Memories: memories,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

// createMemoryResponse is POST /api/v1/memories' success body, augmenting
// the created Memory with the auto-linker's similarity hints.
type createMemoryResponse struct {
	model.Memory
	SimilarMemories []model.Memory `json:"similar_memories,omitempty"`
}

func (s *Server) handleCreateMemory(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}

	var in model.MemoryCreate
	if err := c.Bind(&in); err != nil {
		return writeError(c, apperr.Validationf("invalid request body: %v", err))
	}

	memory, similar, err := s.linker.Create(c.Request().Context(), userID, in)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusCreated, createMemoryResponse{Memory: *memory, SimilarMemories: similar})
}

func (s *Server) handleGetMemory(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := parsePathID(c)
	if err != nil {
		return writeError(c, err)
	}

	memory, err := s.repo.GetMemoryByID(c.Request().Context(), userID, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, memory)
}

// updateMemoryRequest captures PATCH semantics: a field is "present" (and
// thus applied) exactly when the request body's JSON includes that key,
// which double-pointer/pointer-to-slice unmarshalling distinguishes from
// "omitted".
type updateMemoryRequest struct {
	Title      *string   `json:"title"`
	Content    *string   `json:"content"`
	Context    *string   `json:"context"`
	Keywords   *[]string `json:"keywords"`
	Tags       *[]string `json:"tags"`
	Importance *int      `json:"importance"`

	ProjectIDs      *[]int64 `json:"project_ids"`
	CodeArtifactIDs *[]int64 `json:"code_artifact_ids"`
	DocumentIDs     *[]int64 `json:"document_ids"`
	EntityIDs       *[]int64 `json:"entity_ids"`
}

func (req updateMemoryRequest) toPatch() model.MemoryUpdate {
	patch := model.MemoryUpdate{
		Title:      req.Title,
		Content:    req.Content,
		Context:    req.Context,
		Importance: req.Importance,
	}
	if req.Keywords != nil {
		patch.Keywords = *req.Keywords
		patch.KeywordsSet = true
	}
	if req.Tags != nil {
		patch.Tags = *req.Tags
		patch.TagsSet = true
	}
	if req.ProjectIDs != nil {
		patch.ProjectIDs = *req.ProjectIDs
		patch.ProjectIDsSet = true
	}
	if req.CodeArtifactIDs != nil {
		patch.CodeArtifactIDs = *req.CodeArtifactIDs
		patch.CodeArtifactIDsSet = true
	}
	if req.DocumentIDs != nil {
		patch.DocumentIDs = *req.DocumentIDs
		patch.DocumentIDsSet = true
	}
	if req.EntityIDs != nil {
		patch.EntityIDs = *req.EntityIDs
		patch.EntityIDsSet = true
	}
	return patch
}

func (s *Server) handleUpdateMemory(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := parsePathID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req updateMemoryRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperr.Validationf("invalid request body: %v", err))
	}

	memory, err := s.repo.UpdateMemory(c.Request().Context(), userID, id, req.toPatch())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, memory)
}

type deleteMemoryRequest struct {
	Reason       string `json:"reason"`
	SupersededBy *int64 `json:"superseded_by"`
}

func (s *Server) handleDeleteMemory(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := parsePathID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req deleteMemoryRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperr.Validationf("invalid request body: %v", err))
	}

	ok, err := s.repo.MarkObsolete(c.Request().Context(), userID, id, req.Reason, req.SupersededBy)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"success": ok})
}

// searchMemoriesRequest is POST /api/v1/memories/search's body.
type searchMemoriesRequest struct {
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

// searchMemoriesResponse is the composed, budget-applied query result.
type searchMemoriesResponse struct {
	Query          string                  `json:"query"`
	PrimaryMemories []model.Memory         `json:"primary_memories"`
	LinkedMemories []composer.LinkedMemory `json:"linked_memories"`
	TotalCount     int                     `json:"total_count"`
	TokenCount     int                     `json:"token_count"`
	Truncated      bool                    `json:"truncated"`
}

func (s *Server) handleSearchMemories(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}

	var req searchMemoriesRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if req.Query == "" {
		return writeError(c, apperr.Validationf("query is required"))
	}
	if req.K <= 0 {
		req.K = defaultSearchK
	}
	if req.TokenContextThreshold <= 0 {
		req.TokenContextThreshold = defaultTokenContextBudget
	}
	if req.MaxMemories <= 0 {
		req.MaxMemories = defaultMaxMemories
	}
	if req.IncludeLinks && req.MaxLinksPerPrimary <= 0 {
		req.MaxLinksPerPrimary = defaultMaxLinksPerPrimary
	}

	result, err := s.compose.Query(c.Request().Context(), userID, composer.Request{
		Query:                 req.Query,
		QueryContext:          req.QueryContext,
		K:                     req.K,
		IncludeLinks:          req.IncludeLinks,
		MaxLinksPerPrimary:    req.MaxLinksPerPrimary,
		TokenContextThreshold: req.TokenContextThreshold,
		MaxMemories:           req.MaxMemories,
		ImportanceThreshold:   req.ImportanceThreshold,
		ProjectIDs:            req.ProjectIDs,
		StrictProjectFilter:   req.StrictProjectFilter,
	})
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, searchMemoriesResponse{
		Query:           result.Query,
		PrimaryMemories: result.Primary,
		LinkedMemories:  result.Linked,
		TotalCount:      result.TotalCount,
		TokenCount:      result.TokenCount,
		Truncated:       result.Truncated,
	})
}

type createLinksRequest struct {
	RelatedIDs []int64 `json:"related_ids"`
}

func (s *Server) handleCreateLinks(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := parsePathID(c)
	if err != nil {
		return writeError(c, err)
	}

	var req createLinksRequest
	if err := c.Bind(&req); err != nil {
		return writeError(c, apperr.Validationf("invalid request body: %v", err))
	}
	if len(req.RelatedIDs) == 0 {
		return writeError(c, apperr.Validationf("related_ids must be non-empty"))
	}

	linkedIDs, err := s.repo.CreateLinksBatch(c.Request().Context(), userID, id, req.RelatedIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"linked_ids": linkedIDs})
}

func (s *Server) handleGetLinks(c echo.Context) error {
	userID, err := userIDOrUnauthorized(c)
	if err != nil {
		return writeError(c, err)
	}
	id, err := parsePathID(c)
	if err != nil {
		return writeError(c, err)
	}
	limit, _, err := parseLimitOffset(c)
	if err != nil {
		return writeError(c, err)
	}

	linked, err := s.repo.GetLinkedMemories(c.Request().Context(), userID, id, nil, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"memory_id":       id,
		"linked_memories": linked,
	})
}
