package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/scope"
)

// registerDocumentTools registers the document-category tools: CRUD over
// the typed, project-scopable document entity.
func registerDocumentTools(r *Registry, deps Deps) error {
	if err := r.Register(Metadata{
		Name:        "create_document",
		Description: "Create a document, optionally scoped to a project.",
		Category:    scope.CategoryDocument,
		Mutates:     true,
		Parameters: []Parameter{
			{Name: "title", Type: "string", Required: true},
			{Name: "project_id", Type: "integer"},
			{Name: "tags", Type: "array"},
		},
		Returns: "The created Document.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			Title     string   `json:"title"`
			ProjectID *int64   `json:"project_id"`
			Tags      []string `json:"tags"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		if in.Title == "" {
			return nil, apperr.Validationf("title is required")
		}
		return deps.Repo.CreateDocument(ctx, userID, &model.Document{Title: in.Title, ProjectID: in.ProjectID, Tags: in.Tags})
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "get_document_by_id",
		Description: "Fetch a document by ID.",
		Category:    scope.CategoryDocument,
		Parameters:  []Parameter{{Name: "id", Type: "integer", Required: true}},
		Returns:     "The Document, or NotFound.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ID int64 `json:"id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return deps.Repo.GetDocumentByID(ctx, userID, in.ID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "list_documents",
		Description: "List documents, optionally restricted to one project.",
		Category:    scope.CategoryDocument,
		Parameters:  []Parameter{{Name: "project_id", Type: "integer"}},
		Returns:     "List of Documents.",
	}, func(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
		var in struct {
			ProjectID *int64 `json:"project_id"`
		}
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return deps.Repo.ListDocuments(ctx, userID, in.ProjectID)
	}); err != nil {
		return err
	}

	if err := r.Register(Metadata{
		Name:        "delete_document",
		Description: "Delete a document.",
		Category:    scope.CategoryDocument,
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
		if err := deps.Repo.DeleteDocument(ctx, userID, in.ID); err != nil {
			return nil, err
		}
		return map[string]bool{"success": true}, nil
	}); err != nil {
		return err
	}

	return nil
}
