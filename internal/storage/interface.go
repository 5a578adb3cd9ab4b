// Package storage defines the Repository contract shared by the embedded
// (chromem-go) and server (Qdrant) storage backends.
package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/model"
)

// Sentinel errors returned by Repository implementations. Callers translate
// these into apperr.Kind values at the HTTP/tool-dispatch boundary.
var (
	// ErrNotFound is returned when a row does not exist for the given user.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyLinked signals that a link already exists between the two
	// memories. It is treated as success-equivalent, never a fatal error.
	ErrAlreadyLinked = errors.New("storage: already linked")

	// ErrInvalidConfig indicates a misconfigured backend.
	ErrInvalidConfig = errors.New("storage: invalid configuration")

	// ErrForeignUser is returned when a referenced row belongs to a
	// different user than the caller.
	ErrForeignUser = errors.New("storage: row belongs to a different user")
)

// NodeType enumerates the five node kinds the graph traversal and tool
// registry operate over.
type NodeType string

const (
	NodeTypeMemory      NodeType = "memory"
	NodeTypeProject     NodeType = "project"
	NodeTypeDocument    NodeType = "document"
	NodeTypeCodeArtifact NodeType = "code_artifact"
	NodeTypeEntity      NodeType = "entity"
)

// NodeRef identifies a single node by type and numeric ID.
type NodeRef struct {
	Type NodeType
	ID   int64
}

// Edge is a typed, already-canonicalized connection between two nodes.
type Edge struct {
	ID         string
	Source     NodeRef
	Target     NodeRef
	EdgeType   string
}

// SearchOptions carries the optional predicates for SemanticSearch.
type SearchOptions struct {
	ImportanceThreshold *int
	ProjectIDs          []int64
	ExcludeIDs          []int64
}

// SortField enumerates the columns ListMemories may sort by.
type SortField string

const (
	SortByCreatedAt  SortField = "created_at"
	SortByUpdatedAt  SortField = "updated_at"
	SortByImportance SortField = "importance"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ListMemoriesOptions carries GET /api/v1/memories' query-param
// predicates. Tags use OR semantics: a memory matches if it carries any
// listed tag.
type ListMemoriesOptions struct {
	Limit, Offset   int
	SortBy          SortField
	SortOrder       SortOrder
	Tags            []string
	ImportanceMin   *int
	ProjectID       *int64
	IncludeObsolete bool
}

// EmbeddingUpdate pairs a memory ID with its freshly computed vector, used
// by the re-embed orchestrator's bulk write step.
type EmbeddingUpdate struct {
	MemoryID  int64
	Embedding []float32
}

// ValidationResult is the three-predicate outcome of a re-embed run.
type ValidationResult struct {
	CountOK      bool
	DimensionsOK bool
	SearchOK     bool
}

// AllPassed reports whether every predicate succeeded.
func (v ValidationResult) AllPassed() bool {
	return v.CountOK && v.DimensionsOK && v.SearchOK
}

// Repository is the storage contract implemented by storage/embedded
// (chromem-go) and storage/server (Qdrant). Every method is scoped to a
// single owning user; no method may return or mutate another user's rows.
type Repository interface {
	// Memory

	CreateMemory(ctx context.Context, userID uuid.UUID, in model.MemoryCreate) (*model.Memory, error)
	GetMemoryByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Memory, error)
	ListMemories(ctx context.Context, userID uuid.UUID, opts ListMemoriesOptions) (memories []model.Memory, total int, err error)
	UpdateMemory(ctx context.Context, userID uuid.UUID, id int64, patch model.MemoryUpdate) (*model.Memory, error)
	MarkObsolete(ctx context.Context, userID uuid.UUID, id int64, reason string, supersededBy *int64) (bool, error)
	SemanticSearch(ctx context.Context, userID uuid.UUID, query string, k int, opts SearchOptions) ([]model.Memory, error)
	FindSimilarMemories(ctx context.Context, userID uuid.UUID, memoryID int64, maxLinks int) ([]model.Memory, error)
	GetLinkedMemories(ctx context.Context, userID uuid.UUID, memoryID int64, projectIDs []int64, maxLinks int) ([]model.Memory, error)
	CreateLink(ctx context.Context, userID uuid.UUID, sourceID, targetID int64) error
	CreateLinksBatch(ctx context.Context, userID uuid.UUID, sourceID int64, targetIDs []int64) ([]int64, error)

	// Project / Document / CodeArtifact / Entity / EntityRelationship CRUD

	CreateProject(ctx context.Context, userID uuid.UUID, p *model.Project) (*model.Project, error)
	GetProjectByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Project, error)
	ListProjects(ctx context.Context, userID uuid.UUID) ([]model.Project, error)
	DeleteProject(ctx context.Context, userID uuid.UUID, id int64) error

	CreateDocument(ctx context.Context, userID uuid.UUID, d *model.Document) (*model.Document, error)
	GetDocumentByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Document, error)
	ListDocuments(ctx context.Context, userID uuid.UUID, projectID *int64) ([]model.Document, error)
	DeleteDocument(ctx context.Context, userID uuid.UUID, id int64) error

	CreateCodeArtifact(ctx context.Context, userID uuid.UUID, a *model.CodeArtifact) (*model.CodeArtifact, error)
	GetCodeArtifactByID(ctx context.Context, userID uuid.UUID, id int64) (*model.CodeArtifact, error)
	ListCodeArtifacts(ctx context.Context, userID uuid.UUID, projectID *int64) ([]model.CodeArtifact, error)
	DeleteCodeArtifact(ctx context.Context, userID uuid.UUID, id int64) error

	CreateEntity(ctx context.Context, userID uuid.UUID, e *model.Entity) (*model.Entity, error)
	GetEntityByID(ctx context.Context, userID uuid.UUID, id int64) (*model.Entity, error)
	ListEntities(ctx context.Context, userID uuid.UUID, entityType *model.EntityType) ([]model.Entity, error)
	DeleteEntity(ctx context.Context, userID uuid.UUID, id int64) error

	CreateRelationship(ctx context.Context, userID uuid.UUID, r *model.EntityRelationship) (*model.EntityRelationship, error)
	ListRelationshipsForEntity(ctx context.Context, userID uuid.UUID, entityID int64) ([]model.EntityRelationship, error)
	DeleteRelationship(ctx context.Context, userID uuid.UUID, id int64) error

	// Subgraph primitives. The BFS/cycle-detection algorithm itself lives
	// in internal/graph; these are the low-level row accessors it drives.

	NodeExists(ctx context.Context, userID uuid.UUID, ref NodeRef) (bool, error)
	Neighbors(ctx context.Context, userID uuid.UUID, ref NodeRef, allowed []NodeType) ([]NodeRef, error)
	EdgesAmong(ctx context.Context, userID uuid.UUID, refs []NodeRef, allowed []NodeType) ([]Edge, error)

	// Re-embed primitives.

	CountAllMemories(ctx context.Context, userID uuid.UUID) (int, error)
	ResetEmbeddingStorage(ctx context.Context, userID uuid.UUID) error
	GetMemoriesForReembedding(ctx context.Context, userID uuid.UUID, limit, offset int) ([]model.Memory, error)
	BulkUpdateEmbeddings(ctx context.Context, userID uuid.UUID, updates []EmbeddingUpdate) error

	Close() error
}

// CompareMemories implements the memory tie-breaking rule: higher
// importance first, then newer created_at, then smaller id. Both storage
// backends use this exact comparator so ranking is deterministic across
// implementations.
func CompareMemories(a, b model.Memory) bool {
	if a.Importance != b.Importance {
		return a.Importance > b.Importance
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID < b.ID
}

// SortMemoriesByImportance sorts in place by importance DESC, the
// ordering the query composer's budget walk requires for both the
// primary and linked stages.
func SortMemoriesByImportance(memories []model.Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		if memories[i].Importance != memories[j].Importance {
			return memories[i].Importance > memories[j].Importance
		}
		return memories[i].CreatedAt.After(memories[j].CreatedAt)
	})
}

// now is a variable for testing.
var now = time.Now
