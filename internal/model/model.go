// Package model defines Forgetful's core data types: the per-user atomic
// memory and the typed entities/associations it can be linked to.
//
// Field length limits and list-size caps are the only enforcement of the
// "atomic memory" principle (one concept per memory) — this package does
// not attempt semantic analysis.
package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Field limits enforced at validation time (see Memory.Validate).
const (
	MemoryTitleMaxLen   = 200
	MemoryContentMaxLen = 2000
	MemoryContextMaxLen = 500
	MemoryKeywordsMax   = 10
	MemoryTagsMax       = 10
	MemoryImportanceMin = 1
	MemoryImportanceMax = 10

	// DefaultImportance matches the original system's "useful pattern /
	// preference" band (7-8) and is applied when a caller omits importance.
	DefaultImportance = 7
)

// User is the tenant boundary: every other row is owned by exactly one User.
type User struct {
	ID         uuid.UUID       `json:"id"`
	ExternalID string          `json:"external_id"`
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	IdPMeta    json.RawMessage `json:"idp_metadata,omitempty"`
	Notes      string          `json:"notes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Memory is the central entity: one concept, title+content+context, plus
// classification fields and embedding-backed indexing.
type Memory struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	Title   string `json:"title"`
	Content string `json:"content"`
	Context string `json:"context"`

	Keywords   []string `json:"keywords"`
	Tags       []string `json:"tags"`
	Importance int      `json:"importance"`

	ProjectIDs      []int64 `json:"project_ids,omitempty"`
	CodeArtifactIDs []int64 `json:"code_artifact_ids,omitempty"`
	DocumentIDs     []int64 `json:"document_ids,omitempty"`
	EntityIDs       []int64 `json:"entity_ids,omitempty"`

	// Embedding is populated by the repository from the canonical
	// embedding text (see EmbeddingText); callers never set it directly.
	Embedding []float32 `json:"-"`

	IsObsolete     bool       `json:"is_obsolete"`
	ObsoleteReason string     `json:"obsolete_reason,omitempty"`
	SupersededBy   *int64     `json:"superseded_by,omitempty"`
	ObsoletedAt    *time.Time `json:"obsoleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// LinkedMemoryIDs is populated on create by the auto-linker and on
	// read by the repositories' GetMemoryByID from the link table; it is
	// never stored directly on the row.
	LinkedMemoryIDs []int64 `json:"linked_memory_ids,omitempty"`
}

// EmbeddingText builds the canonical text used to generate a memory's
// embedding: title, content, context, then space-joined keywords and tags.
func (m *Memory) EmbeddingText() string {
	return joinParts([]string{
		m.Title,
		m.Content,
		m.Context,
		joinWords(m.Keywords),
		joinWords(m.Tags),
	})
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

func joinParts(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// MemoryCreate is the caller-supplied payload for creating a memory.
type MemoryCreate struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Context    string   `json:"context"`
	Keywords   []string `json:"keywords,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Importance int      `json:"importance,omitempty"`

	ProjectIDs      []int64 `json:"project_ids,omitempty"`
	CodeArtifactIDs []int64 `json:"code_artifact_ids,omitempty"`
	DocumentIDs     []int64 `json:"document_ids,omitempty"`
	EntityIDs       []int64 `json:"entity_ids,omitempty"`
}

// MemoryUpdate is a PATCH payload: nil pointers/slices mean "leave
// unchanged", a present-but-empty slice clears the association.
type MemoryUpdate struct {
	Title      *string  `json:"title,omitempty"`
	Content    *string  `json:"content,omitempty"`
	Context    *string  `json:"context,omitempty"`
	Keywords   []string `json:"keywords"`
	KeywordsSet bool    `json:"-"`
	Tags        []string `json:"tags"`
	TagsSet     bool     `json:"-"`
	Importance *int `json:"importance,omitempty"`

	ProjectIDs      []int64 `json:"project_ids"`
	ProjectIDsSet   bool    `json:"-"`
	CodeArtifactIDs []int64 `json:"code_artifact_ids"`
	CodeArtifactIDsSet bool `json:"-"`
	DocumentIDs     []int64 `json:"document_ids"`
	DocumentIDsSet  bool    `json:"-"`
	EntityIDs       []int64 `json:"entity_ids"`
	EntityIDsSet    bool    `json:"-"`
}

// SearchFieldsChanged reports whether the patch touches any field that
// contributes to the embedding text, per storage.Repository.UpdateMemory's
// contract: these updates require regenerating the embedding.
func (u *MemoryUpdate) SearchFieldsChanged() bool {
	return u.Title != nil || u.Content != nil || u.Context != nil || u.KeywordsSet || u.TagsSet
}

// MemoryLink is a symmetric, unweighted edge stored once with the
// convention SourceID < TargetID.
type MemoryLink struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	SourceID  int64     `json:"source_id"`
	TargetID  int64     `json:"target_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Project is a typed, per-user owned grouping entity.
type Project struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a typed, per-user owned entity optionally scoped to a project.
type Document struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProjectID *int64    `json:"project_id,omitempty"`
	Title     string    `json:"title"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CodeArtifact is a typed, per-user owned entity optionally scoped to a project.
type CodeArtifact struct {
	ID        int64     `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ProjectID *int64    `json:"project_id,omitempty"`
	Name      string    `json:"name"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityType enumerates the kinds an Entity can take.
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityIndividual   EntityType = "individual"
	EntityTeam         EntityType = "team"
	EntityDevice       EntityType = "device"
	EntityOther        EntityType = "other"
)

// Entity is a typed, per-user owned entity carrying alternate names ("aka")
// that are searchable alongside its primary name.
type Entity struct {
	ID         int64      `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	ProjectID  *int64     `json:"project_id,omitempty"`
	Name       string     `json:"name"`
	EntityType EntityType `json:"entity_type"`
	CustomType string     `json:"custom_type,omitempty"`
	AKA        []string   `json:"aka,omitempty"`
	Tags       []string   `json:"tags,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EntityRelationship is a directed edge between two entities.
type EntityRelationship struct {
	ID               int64           `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	SourceEntityID   int64           `json:"source_entity_id"`
	TargetEntityID   int64           `json:"target_entity_id"`
	RelationshipType string          `json:"relationship_type"`
	Strength         *float64        `json:"strength,omitempty"`
	Confidence       *float64        `json:"confidence,omitempty"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
}
