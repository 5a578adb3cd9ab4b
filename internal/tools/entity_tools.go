package tools

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/scope"
)

// registerEntityTools registers the entity-category tools: CRUD over the
// typed entity (with alternate-name search via "aka") and its directed
// relationships to other entities.
func registerEntityTools(r *Registry, deps Deps) error {
	if err := r.Register(Metadata{
		Name:        "create_entity",
		Description: "Create an entity (organization, individual, team, device, or other), optionally scoped to a project.",
		Category:    scope.CategoryEntity,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "name", Type: "string", Required: true},
			{Name: "entity_type", Type: "string", Required: true, Description: "organization | individual | team | device | other"},
			{Name: "custom_type", Type: "string"},
			{Name: "project_id", Type: "integer"},
			{Name: "aka", Type: "array", Description: "Alternate names, searchable alongside the primary name"},
			{Name: "tags", Type: "array"},
		},
		Returns: "The created Entity.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			Name       string   `json:"name"`
			EntityType string   `json:"entity_type"`
			CustomType string   `json:"custom_type"`
			ProjectID  *int64   `json:"project_id"`
			AKA        []string `json:"aka"`
			Tags       []string `json:"tags"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Name == "" || in.EntityType == "" {
			return nil, apperr.Validationf("name and entity_type are required")
		}
		return deps.Repo.CreateEntity(ctx, userID, &model.Entity{
			Name: in.Name, EntityType: model.EntityType(in.EntityType), CustomType: in.CustomType,
			ProjectID: in.ProjectID, AKA: in.AKA, Tags: in.Tags,
		})
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "get_entity_by_id",
		Description: "Fetch an entity by ID.",
		Category:    scope.CategoryEntity,
		Parameters:  []Parameter{{Name: "id", Type: "integer", Required: true}},
		Returns:     "The Entity, or NotFound.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID int64 `json:"id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return deps.Repo.GetEntityByID(ctx, userID, in.ID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "list_entities",
		Description: "List entities, optionally restricted to one entity_type.",
		Category:    scope.CategoryEntity,
		Parameters:  []Parameter{{Name: "entity_type", Type: "string"}},
		Returns:     "List of Entities.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			EntityType string `json:"entity_type"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		var entityType *model.EntityType
		if in.EntityType != "" {
			t := model.EntityType(in.EntityType)
			entityType = &t
		}
		return deps.Repo.ListEntities(ctx, userID, entityType)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "delete_entity",
		Description: "Delete an entity.",
		Category:    scope.CategoryEntity,
		Mutates:     true,
		Parameters:  []Parameter{{Name: "id", Type: "integer", Required: true}},
		Returns:     "{success: bool}",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID int64 `json:"id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := deps.Repo.DeleteEntity(ctx, userID, in.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"success": true}, nil
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "create_relationship",
		Description: "Create a directed relationship between two entities. A relationship with the same (source, target, relationship_type) as an existing one is not rejected.",
		Category:    scope.CategoryEntity,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "source_entity_id", Type: "integer", Required: true},
			{Name: "target_entity_id", Type: "integer", Required: true},
			{Name: "relationship_type", Type: "string", Required: true},
			{Name: "strength", Type: "number"},
			{Name: "confidence", Type: "number"},
			{Name: "metadata", Type: "object"},
		},
		Returns: "The created EntityRelationship.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			SourceEntityID   int64           `json:"source_entity_id"`
			TargetEntityID   int64           `json:"target_entity_id"`
			RelationshipType string          `json:"relationship_type"`
			Strength         *float64        `json:"strength"`
			Confidence       *float64        `json:"confidence"`
			Metadata         json.RawMessage `json:"metadata"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.SourceEntityID == 0 || in.TargetEntityID == 0 || in.RelationshipType == "" {
			return nil, apperr.Validationf("source_entity_id, target_entity_id, and relationship_type are required")
		}
		return deps.Repo.CreateRelationship(ctx, userID, &model.EntityRelationship{
			SourceEntityID: in.SourceEntityID, TargetEntityID: in.TargetEntityID,
			RelationshipType: in.RelationshipType, Strength: in.Strength,
			Confidence: in.Confidence, Metadata: in.Metadata,
		})
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "list_relationships_for_entity",
		Description: "List every relationship where the given entity is the source or the target.",
		Category:    scope.CategoryEntity,
		Parameters:  []Parameter{{Name: "entity_id", Type: "integer", Required: true}},
		Returns:     "List of EntityRelationships.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			EntityID int64 `json:"entity_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return deps.Repo.ListRelationshipsForEntity(ctx, userID, in.EntityID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "delete_relationship",
		Description: "Delete an entity relationship.",
		Category:    scope.CategoryEntity,
		Mutates:     true,
		Parameters:  []Parameter{{Name: "id", Type: "integer", Required: true}},
		Returns:     "{success: bool}",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID int64 `json:"id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if err := deps.Repo.DeleteRelationship(ctx, userID, in.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"success": true}, nil
	}); err != nil {
		return err
	}

	return nil
}
