// Package integration exercises the full memory-store stack (storage,
// retrieval, composer, autolink, graph traversal, tool registry/scope)
// wired together the way cmd/forgetfuld's buildDeps assembles it, against
// the embedded chromem-go backend. These are concrete end-to-end
// scenarios exercising the stack as a whole rather than one package at a
// time.
package integration

import (
	"context"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/autolink"
	"github.com/forgetful-ai/forgetful/internal/composer"
	"github.com/forgetful-ai/forgetful/internal/graph"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/reranker"
	"github.com/forgetful-ai/forgetful/internal/retrieval"
	"github.com/forgetful-ai/forgetful/internal/scope"
	"github.com/forgetful-ai/forgetful/internal/storage"
	"github.com/forgetful-ai/forgetful/internal/storage/embedded"
	"github.com/forgetful-ai/forgetful/internal/tokencount"
	"github.com/forgetful-ai/forgetful/internal/tools"
)

// bagOfWordsEmbedder embeds a word's presence into a fixed bucket per
// token, so two texts sharing keywords land close together in cosine
// space and texts with nothing in common land near-orthogonal. Unlike a
// byte-sum fake (used by the package-level unit tests), this gives a
// keyword-overlap scenario a deterministic, meaningful similarity
// ranking instead of an arbitrary one.
type bagOfWordsEmbedder struct{ dim int }

func (e *bagOfWordsEmbedder) embed(text string) []float32 {
	v := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,!?\"'()[]{}:;")
		if tok == "" {
			continue
		}
		h := uint32(2166136261)
		for i := 0; i < len(tok); i++ {
			h ^= uint32(tok[i])
			h *= 16777619
		}
		v[int(h)%e.dim]++
	}
	return v
}

func (e *bagOfWordsEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *bagOfWordsEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *bagOfWordsEmbedder) Dimension() int { return e.dim }
func (e *bagOfWordsEmbedder) Close() error   { return nil }

// stack bundles every domain component buildDeps wires in cmd/forgetfuld,
// built against the embedded backend so these tests need nothing running
// alongside them.
type stack struct {
	repo      storage.Repository
	compose   *composer.Composer
	traverser *graph.Traverser
	linker    *autolink.Linker
	registry  *tools.Registry
	dispatch  *tools.Dispatcher
	permitted map[string]bool
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := zap.NewNop()

	repo, err := embedded.New(embedded.Config{Path: t.TempDir()}, &bagOfWordsEmbedder{dim: 64}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	pipeline := retrieval.New(repo, retrieval.KeywordTagScorer{}, reranker.NewSimpleReranker(), logger)
	compose := composer.New(pipeline, repo, tokencount.New(logger), logger)
	traverser := graph.New(repo, logger)
	linker := autolink.New(repo, 3, logger)

	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterAll(registry, tools.Deps{
		Repo: repo, Linker: linker, Compose: compose, Traverser: traverser,
	}))
	permitted := make(map[string]bool)
	for _, m := range registry.ListAll() {
		permitted[m.Name] = true
	}

	return &stack{
		repo: repo, compose: compose, traverser: traverser, linker: linker,
		registry: registry, dispatch: tools.NewDispatcher(registry), permitted: permitted,
	}
}

func create(t *testing.T, s *stack, userID uuid.UUID, in model.MemoryCreate) *model.Memory {
	t.Helper()
	m, _, err := s.linker.Create(context.Background(), userID, in)
	require.NoError(t, err)
	return m
}

// Scenario 1 — Auto-linking.
func TestLifecycle_AutoLinking(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()
	ctx := context.Background()

	m1 := create(t, s, userID, model.MemoryCreate{
		Title: "Async test setup", Content: "Notes on python asyncio testing patterns",
		Keywords: []string{"python", "asyncio", "testing"},
	})
	m2 := create(t, s, userID, model.MemoryCreate{
		Title: "Integration test harness", Content: "Notes on python integration testing harness",
		Keywords: []string{"python", "integration", "testing"},
	})

	assert.Contains(t, m2.LinkedMemoryIDs, m1.ID, "M2 should auto-link to M1 on keyword overlap")

	gotM1, err := s.repo.GetMemoryByID(ctx, userID, m1.ID)
	require.NoError(t, err)
	assert.Contains(t, gotM1.LinkedMemoryIDs, m2.ID, "M1 should show M2 in its own linked_memory_ids")
}

// Scenario 2 — Query with linked.
func TestLifecycle_QueryWithLinked(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()
	ctx := context.Background()

	m1 := create(t, s, userID, model.MemoryCreate{
		Title: "Primary fact", Content: "The primary memory about deployment rollback",
		Keywords: []string{"deploy", "rollback"},
	})
	create(t, s, userID, model.MemoryCreate{
		Title: "Linked fact", Content: "A secondary memory about deployment rollback procedure",
		Keywords: []string{"deploy", "rollback"},
	})

	result, err := s.compose.Query(ctx, userID, composer.Request{
		Query: "primary", K: 1, IncludeLinks: true, MaxLinksPerPrimary: 5,
		TokenContextThreshold: 4000, MaxMemories: 20,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Primary)
	assert.Equal(t, m1.ID, result.Primary[0].ID)

	found := false
	for _, l := range result.Linked {
		if l.LinkSourceID == m1.ID {
			found = true
		}
	}
	assert.True(t, found, "expected at least one linked_memories entry sourced from M1")
}

// Scenario 3 — Obsolete filtering.
func TestLifecycle_ObsoleteFiltering(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()
	ctx := context.Background()

	m := create(t, s, userID, model.MemoryCreate{
		Title: "Kubernetes Obsolete", Content: "Old kubernetes deployment notes",
	})

	ok, err := s.repo.MarkObsolete(ctx, userID, m.ID, "test", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	result, err := s.compose.Query(ctx, userID, composer.Request{Query: "kubernetes", K: 10})
	require.NoError(t, err)
	for _, p := range result.Primary {
		assert.NotEqual(t, m.ID, p.ID, "obsolete memory must not appear in semantic search")
	}

	byID, err := s.repo.GetMemoryByID(ctx, userID, m.ID)
	require.NoError(t, err)
	assert.True(t, byID.IsObsolete)

	// mark_obsolete is idempotent: a second call still succeeds.
	ok, err = s.repo.MarkObsolete(ctx, userID, m.ID, "test again", nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

// Scenario 4 — Budget truncation.
func TestLifecycle_BudgetTruncation(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()
	ctx := context.Background()

	filler := strings.Repeat("token ", 1000)
	for i := 0; i < 10; i++ {
		create(t, s, userID, model.MemoryCreate{Title: "Filler", Content: "x content " + filler})
	}

	result, err := s.compose.Query(ctx, userID, composer.Request{
		Query: "x", K: 10, TokenContextThreshold: 3500, MaxMemories: 20,
	})
	require.NoError(t, err)

	assert.LessOrEqual(t, result.TokenCount, 3500)
	assert.LessOrEqual(t, len(result.Primary), 4)
	assert.True(t, result.Truncated)
}

// Scenario 5 — Subgraph cycle.
func TestLifecycle_SubgraphCycle(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()
	ctx := context.Background()

	// Created through the repository, not the auto-linker, so the three
	// explicit links below are new and are the only links.
	a, err := s.repo.CreateMemory(ctx, userID, model.MemoryCreate{Title: "A", Content: "node a"})
	require.NoError(t, err)
	b, err := s.repo.CreateMemory(ctx, userID, model.MemoryCreate{Title: "B", Content: "node b"})
	require.NoError(t, err)
	c, err := s.repo.CreateMemory(ctx, userID, model.MemoryCreate{Title: "C", Content: "node c"})
	require.NoError(t, err)

	require.NoError(t, s.repo.CreateLink(ctx, userID, a.ID, b.ID))
	require.NoError(t, s.repo.CreateLink(ctx, userID, b.ID, c.ID))
	require.NoError(t, s.repo.CreateLink(ctx, userID, c.ID, a.ID))

	centerID := "memory_" + strconv.FormatInt(a.ID, 10)
	sub, err := s.traverser.GetSubgraph(ctx, userID, centerID, 3, nil, 50)
	require.NoError(t, err)
	assert.Len(t, sub.Nodes, 3)
	assert.Len(t, sub.Edges, 3)

	seen := make(map[storage.NodeRef]bool)
	for _, n := range sub.Nodes {
		assert.False(t, seen[n.Ref], "node %v appeared twice", n.Ref)
		seen[n.Ref] = true
	}
	for _, e := range sub.Edges {
		assert.True(t, seen[e.Source], "edge source %v not in node set", e.Source)
		assert.True(t, seen[e.Target], "edge target %v not in node set", e.Target)
	}
}

// Scenario 6 — Scope intersection.
func TestLifecycle_ScopeIntersection(t *testing.T) {
	s := newStack(t)
	userID := uuid.New()
	ctx := context.Background()

	all := scope.ResolvePermittedTools(scope.Scopes{"*": true}, s.registry.ToolInfos())
	assert.Equal(t, len(s.permitted), len(all))

	readOnly := scope.ResolvePermittedTools(scope.Scopes{"read:memory": true}, s.registry.ToolInfos())

	_, err := s.dispatch.Execute(ctx, userID, "create_memory", map[string]any{
		"title": "x", "content": "y",
	}, readOnly)
	require.Error(t, err, "create_memory requires write:memory")

	_, err = s.dispatch.Execute(ctx, userID, "query_memory", map[string]any{
		"query": "x", "k": 5,
	}, readOnly)
	assert.NoError(t, err, "query_memory only requires read:memory")
}
