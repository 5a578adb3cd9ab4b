package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgetful-ai/forgetful/internal/apperr"
)

var sampleTools = []ToolInfo{
	{Name: "search_memories", Category: CategoryMemory, Mutates: false},
	{Name: "create_memory", Category: CategoryMemory, Mutates: true},
	{Name: "list_projects", Category: CategoryProject, Mutates: false},
	{Name: "create_project", Category: CategoryProject, Mutates: true},
}

func TestParseScopes_Valid(t *testing.T) {
	cases := []string{"*", "read", "write", "read:memory", "write:project", "read,write:memory"}
	for _, c := range cases {
		_, err := ParseScopes(c)
		assert.NoError(t, err, c)
	}
}

func TestParseScopes_Invalid(t *testing.T) {
	cases := []string{"", "  ", "bogus", "delete:memory", "read:bogus_category"}
	for _, c := range cases {
		_, err := ParseScopes(c)
		require.Error(t, err, c)
		assert.Equal(t, apperr.Validation, apperr.KindOf(err))
	}
}

func TestResolvePermittedTools_Wildcard(t *testing.T) {
	scopes, err := ParseScopes("*")
	require.NoError(t, err)
	permitted := ResolvePermittedTools(scopes, sampleTools)
	assert.Len(t, permitted, 4)
}

func TestResolvePermittedTools_ReadOnly(t *testing.T) {
	scopes, err := ParseScopes("read")
	require.NoError(t, err)
	permitted := ResolvePermittedTools(scopes, sampleTools)
	assert.True(t, permitted["search_memories"])
	assert.True(t, permitted["list_projects"])
	assert.False(t, permitted["create_memory"])
	assert.False(t, permitted["create_project"])
}

func TestResolvePermittedTools_CategoryScoped(t *testing.T) {
	scopes, err := ParseScopes("write:memory")
	require.NoError(t, err)
	permitted := ResolvePermittedTools(scopes, sampleTools)
	assert.True(t, permitted["create_memory"])
	assert.False(t, permitted["create_project"])
	assert.False(t, permitted["search_memories"])
}

func TestEffectiveScope_IntersectsInstanceAndSession(t *testing.T) {
	instance, err := ParseScopes("*")
	require.NoError(t, err)
	session, err := ParseScopes("read:memory")
	require.NoError(t, err)

	effective := EffectiveScope(instance, session, sampleTools)
	assert.True(t, effective["search_memories"])
	assert.False(t, effective["create_memory"])
	assert.False(t, effective["list_projects"])
}

func TestEffectiveScope_NoSessionFallsBackToInstance(t *testing.T) {
	instance, err := ParseScopes("read")
	require.NoError(t, err)

	effective := EffectiveScope(instance, nil, sampleTools)
	assert.True(t, effective["search_memories"])
	assert.True(t, effective["list_projects"])
	assert.False(t, effective["create_memory"])
}

func TestRequiredScope(t *testing.T) {
	assert.Equal(t, "write:memory", RequiredScope(ToolInfo{Category: CategoryMemory, Mutates: true}))
	assert.Equal(t, "read:project", RequiredScope(ToolInfo{Category: CategoryProject, Mutates: false}))
}
