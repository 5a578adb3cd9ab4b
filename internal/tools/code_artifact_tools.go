package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/scope"
)

// registerCodeArtifactTools registers the code_artifact-category tools:
// CRUD over the typed, project-scopable code-artifact entity.
func registerCodeArtifactTools(r *Registry, deps Deps) error {
	if err := r.Register(Metadata{
		Name:        "create_code_artifact",
		Description: "Create a code artifact, optionally scoped to a project.",
		Category:    scope.CategoryCodeArtifact,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "name", Type: "string", Required: true},
			{Name: "project_id", Type: "integer"},
			{Name: "tags", Type: "array"},
		},
		Returns: "The created CodeArtifact.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			Name      string   `json:"name"`
			ProjectID *int64   `json:"project_id"`
			Tags      []string `json:"tags"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Name == "" {
			return nil, apperr.Validationf("name is required")
		}
		return deps.Repo.CreateCodeArtifact(ctx, userID, &model.CodeArtifact{Name: in.Name, ProjectID: in.ProjectID, Tags: in.Tags})
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "get_code_artifact_by_id",
		Description: "Fetch a code artifact by ID.",
		Category:    scope.CategoryCodeArtifact,
		Parameters:  []Parameter{{Name: "id", Type: "integer", Required: true}},
		Returns:     "The CodeArtifact, or NotFound.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID int64 `json:"id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return deps.Repo.GetCodeArtifactByID(ctx, userID, in.ID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "list_code_artifacts",
		Description: "List code artifacts, optionally restricted to one project.",
		Category:    scope.CategoryCodeArtifact,
		Parameters:  []Parameter{{Name: "project_id", Type: "integer"}},
		Returns:     "List of CodeArtifacts.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ProjectID *int64 `json:"project_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return deps.Repo.ListCodeArtifacts(ctx, userID, in.ProjectID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "delete_code_artifact",
		Description: "Delete a code artifact.",
		Category:    scope.CategoryCodeArtifact,
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
		if err := deps.Repo.DeleteCodeArtifact(ctx, userID, in.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"success": true}, nil
	}); err != nil {
		return err
	}

	return nil
}
