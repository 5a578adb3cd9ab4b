package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/scope"
)

// registerProjectTools registers the project-category tools: plain CRUD
// over the typed grouping entity memories can associate with.
func registerProjectTools(r *Registry, deps Deps) error {
	if err := r.Register(Metadata{
		Name:        "create_project",
		Description: "Create a project.",
		Category:    scope.CategoryProject,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "name", Type: "string", Required: true},
			{Name: "tags", Type: "array"},
		},
		Returns: "The created Project.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			Name string   `json:"name"`
			Tags []string `json:"tags"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Name == "" {
			return nil, apperr.Validationf("name is required")
		}
		return deps.Repo.CreateProject(ctx, userID, &model.Project{Name: in.Name, Tags: in.Tags})
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "get_project_by_id",
		Description: "Fetch a project by ID.",
		Category:    scope.CategoryProject,
		Parameters:  []Parameter{{Name: "id", Type: "integer", Required: true}},
		Returns:     "The Project, or NotFound.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID int64 `json:"id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return deps.Repo.GetProjectByID(ctx, userID, in.ID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "list_projects",
		Description: "List every project owned by the caller.",
		Category:    scope.CategoryProject,
		Returns:     "List of Projects.",
	}, func(ctx context.Context, userID uuid.UUID, _ map[string]any) (any, error) {
		return deps.Repo.ListProjects(ctx, userID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "delete_project",
		Description: "Delete a project.",
		Category:    scope.CategoryProject,
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
		if err := deps.Repo.DeleteProject(ctx, userID, in.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"success": true}, nil
	}); err != nil {
		return err
	}

	return nil
}
