package graph

import (
	"context"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/apperr"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage"
	"github.com/forgetful-ai/forgetful/internal/storage/embedded"
)

type fakeEmbedder struct{ dim int }

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i, c := range text {
		v[i%f.dim] += float32(c)
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.EmbedQuery(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Close() error   { return nil }

func newTestRepo(t *testing.T) storage.Repository {
	t.Helper()
	s, err := embedded.New(embedded.Config{Path: t.TempDir()}, &fakeEmbedder{dim: 8}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestParseNodeID(t *testing.T) {
	ref, err := ParseNodeID("memory_42")
	require.NoError(t, err)
	assert.Equal(t, storage.NodeRef{Type: storage.NodeTypeMemory, ID: 42}, ref)

	ref, err = ParseNodeID("code_artifact_7")
	require.NoError(t, err)
	assert.Equal(t, storage.NodeRef{Type: storage.NodeTypeCodeArtifact, ID: 7}, ref)

	_, err = ParseNodeID("bogus")
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	_, err = ParseNodeID("widget_1")
	require.Error(t, err)

	_, err = ParseNodeID("memory_notanumber")
	require.Error(t, err)
}

func TestCanonicalEdgeID_OrderIndependent(t *testing.T) {
	a := storage.NodeRef{Type: storage.NodeTypeMemory, ID: 1}
	b := storage.NodeRef{Type: storage.NodeTypeMemory, ID: 2}
	assert.Equal(t, CanonicalEdgeID(a, b), CanonicalEdgeID(b, a))
}

func TestGetSubgraph_CenterOnly(t *testing.T) {
	repo := newTestRepo(t)
	userID := uuid.New()
	ctx := context.Background()

	m, err := repo.CreateMemory(ctx, userID, model.MemoryCreate{Title: "A", Content: "x"})
	require.NoError(t, err)

	tr := New(repo, zap.NewNop())
	sg, err := tr.GetSubgraph(ctx, userID, "memory_"+strconv.FormatInt(m.ID, 10), 1, nil, 10)
	require.NoError(t, err)
	require.Len(t, sg.Nodes, 1)
	assert.Equal(t, 0, sg.Nodes[0].Depth)
	assert.False(t, sg.Truncated)
}

func TestGetSubgraph_NotFound(t *testing.T) {
	repo := newTestRepo(t)
	tr := New(repo, zap.NewNop())
	_, err := tr.GetSubgraph(context.Background(), uuid.New(), "memory_999", 1, nil, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestGetSubgraph_InvalidDepth(t *testing.T) {
	repo := newTestRepo(t)
	tr := New(repo, zap.NewNop())
	_, err := tr.GetSubgraph(context.Background(), uuid.New(), "memory_1", 0, nil, 10)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestGetSubgraph_WalksOneHopLink(t *testing.T) {
	repo := newTestRepo(t)
	userID := uuid.New()
	ctx := context.Background()

	a, err := repo.CreateMemory(ctx, userID, model.MemoryCreate{Title: "A", Content: "x"})
	require.NoError(t, err)
	b, err := repo.CreateMemory(ctx, userID, model.MemoryCreate{Title: "B", Content: "y"})
	require.NoError(t, err)
	require.NoError(t, repo.CreateLink(ctx, userID, a.ID, b.ID))

	tr := New(repo, zap.NewNop())
	sg, err := tr.GetSubgraph(ctx, userID, "memory_"+strconv.FormatInt(a.ID, 10), 1, nil, 10)
	require.NoError(t, err)
	assert.Len(t, sg.Nodes, 2)
	assert.NotEmpty(t, sg.Edges)
}

