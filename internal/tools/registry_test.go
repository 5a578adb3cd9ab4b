package tools

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/scope"
)

func noopImpl(ctx context.Context, userID uuid.UUID, args map[string]any) (any, error) {
	return "ok", nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	err := r.Register(Metadata{Name: "search_memories", Description: "search", Category: scope.CategoryMemory}, noopImpl)
	require.NoError(t, err)

	meta, impl, ok := r.Get("search_memories")
	require.True(t, ok)
	assert.Equal(t, "search_memories", meta.Name)
	assert.NotNil(t, impl)
}

func TestRegistry_RejectsDuplicateName(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{Name: "a", Description: "d", Category: scope.CategoryMemory}, noopImpl))
	err := r.Register(Metadata{Name: "a", Description: "d", Category: scope.CategoryMemory}, noopImpl)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestRegistry_RejectsMissingFields(t *testing.T) {
	r := NewRegistry()
	require.Error(t, r.Register(Metadata{Description: "d", Category: scope.CategoryMemory}, noopImpl))
	require.Error(t, r.Register(Metadata{Name: "a", Category: scope.CategoryMemory}, noopImpl))
	require.Error(t, r.Register(Metadata{Name: "a", Description: "d"}, noopImpl))
	require.Error(t, r.Register(Metadata{Name: "a", Description: "d", Category: scope.CategoryMemory}, nil))
}

func TestRegistry_ListByCategory(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{Name: "a", Description: "d", Category: scope.CategoryMemory}, noopImpl))
	require.NoError(t, r.Register(Metadata{Name: "b", Description: "d", Category: scope.CategoryProject}, noopImpl))

	mem := r.ListByCategory(scope.CategoryMemory)
	require.Len(t, mem, 1)
	assert.Equal(t, "a", mem[0].Name)
}

func TestDispatcher_Discover_HonorsPermissions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{Name: "read_tool", Description: "d", Category: scope.CategoryMemory, Mutates: false}, noopImpl))
	require.NoError(t, r.Register(Metadata{Name: "write_tool", Description: "d", Category: scope.CategoryMemory, Mutates: true}, noopImpl))

	d := NewDispatcher(r)
	permitted := map[string]bool{"read_tool": true}
	summaries := d.Discover(nil, permitted)
	require.Len(t, summaries, 1)
	assert.Equal(t, "read_tool", summaries[0].Name)
}

func TestDispatcher_HowToUse_NotFoundWhenUnpermitted(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{Name: "a", Description: "d", Category: scope.CategoryMemory}, noopImpl))
	d := NewDispatcher(r)

	_, err := d.HowToUse("a", map[string]bool{})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))

	meta, err := d.HowToUse("a", map[string]bool{"a": true})
	require.NoError(t, err)
	assert.Equal(t, "a", meta.Name)
}

func TestDispatcher_Execute_PermissionDenied(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{Name: "write_memory", Description: "d", Category: scope.CategoryMemory, Mutates: true}, noopImpl))
	d := NewDispatcher(r)

	_, err := d.Execute(context.Background(), uuid.New(), "write_memory", nil, map[string]bool{})
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok)
	assert.Equal(t, apperr.PermissionDenied, appErr.Kind)
	assert.Equal(t, "write:memory", appErr.RequiredScope)
}

func TestDispatcher_Execute_InvokesImplementation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(Metadata{Name: "a", Description: "d", Category: scope.CategoryMemory}, noopImpl))
	d := NewDispatcher(r)

	result, err := d.Execute(context.Background(), uuid.New(), "a", nil, map[string]bool{"a": true})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestDispatcher_Execute_UnknownTool(t *testing.T) {
	r := NewRegistry()
	d := NewDispatcher(r)
	_, err := d.Execute(context.Background(), uuid.New(), "missing", nil, map[string]bool{})
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}
