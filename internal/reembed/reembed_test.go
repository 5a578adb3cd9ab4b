package reembed

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage/embedded"
)

type fakeEmbedder struct {
	dim   int
	calls int
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v := make([]float32, f.dim)
	for i, c := range text {
		v[i%f.dim] += float32(c)
	}
	return v, nil
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := f.EmbedQuery(ctx, t)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return f.dim }
func (f *fakeEmbedder) Close() error   { return nil }

func newTestRepo(t *testing.T, embedder *fakeEmbedder) *embedded.Store {
	t.Helper()
	repo, err := embedded.New(embedded.Config{Path: t.TempDir()}, embedder, zap.NewNop())
	require.NoError(t, err)
	return repo
}

func TestOrchestrator_Run_ReembedsAllMemoriesInBatches(t *testing.T) {
	embedder := &fakeEmbedder{dim: 8}
	repo := newTestRepo(t, embedder)
	userID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := repo.CreateMemory(ctx, userID, model.MemoryCreate{
			Title: "memory", Content: "deploy runbook content", Importance: 5,
		})
		require.NoError(t, err)
	}

	o := New(repo, embedder, 2, zap.NewNop())

	var progressed []Progress
	result, err := o.Run(ctx, userID, func(p Progress) { progressed = append(progressed, p) })
	require.NoError(t, err)

	assert.True(t, result.CountOK)
	assert.True(t, result.DimensionsOK)
	assert.True(t, result.SearchOK)
	assert.True(t, result.AllPassed())

	require.Len(t, progressed, 3)
	assert.Equal(t, 2, progressed[0].Processed)
	assert.Equal(t, 4, progressed[1].Processed)
	assert.Equal(t, 5, progressed[2].Processed)
	assert.Equal(t, 5, progressed[2].Total)
}

func TestOrchestrator_Run_EmptyUserValidatesClean(t *testing.T) {
	embedder := &fakeEmbedder{dim: 8}
	repo := newTestRepo(t, embedder)
	userID := uuid.New()

	o := New(repo, embedder, 10, zap.NewNop())
	result, err := o.Run(context.Background(), userID, nil)
	require.NoError(t, err)
	assert.True(t, result.AllPassed())
}

func TestOrchestrator_Run_DefaultsPageSizeWhenNonPositive(t *testing.T) {
	embedder := &fakeEmbedder{dim: 8}
	repo := newTestRepo(t, embedder)
	o := New(repo, embedder, 0, zap.NewNop())
	assert.Equal(t, DefaultPageSize, o.PageSize)
}
