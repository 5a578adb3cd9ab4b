package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/auth"
	"github.com/forgetful-ai/forgetful/internal/autolink"
	"github.com/forgetful-ai/forgetful/internal/composer"
	"github.com/forgetful-ai/forgetful/internal/graph"
	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/retrieval"
	"github.com/forgetful-ai/forgetful/internal/storage/embedded"
)

// fakeEmbedder is the same deterministic-hash embedder used throughout the
// storage/reembed test suites.
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

const testBearerToken = "test-token"

// newTestServer wires a full Server against an in-process embedded store,
// mirroring the harness used by internal/reembed and internal/storage/embedded.
func newTestServer(t *testing.T) (*Server, uuid.UUID) {
	t.Helper()

	embedder := &fakeEmbedder{dim: 8}
	repo, err := embedded.New(embedded.Config{Path: t.TempDir()}, embedder, zap.NewNop())
	require.NoError(t, err)

	pipeline := retrieval.New(repo, nil, nil, zap.NewNop())
	compose := composer.New(pipeline, repo, nil, zap.NewNop())
	traverser := graph.New(repo, zap.NewNop())
	linker := autolink.New(repo, 3, zap.NewNop())
	resolver := auth.NewResolver(uuid.Nil)

	srv, err := NewServer(repo, compose, traverser, linker, resolver, zap.NewNop(), Config{})
	require.NoError(t, err)

	userID, err := resolver.ResolveUser(authedRequest(httptest.NewRequest(http.MethodGet, "/", nil)))
	require.NoError(t, err)

	return srv, userID
}

func authedRequest(r *http.Request) *http.Request {
	r.Header.Set("Authorization", "Bearer "+testBearerToken)
	return r
}

func newRequest(method, target string, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return authedRequest(r)
}

func mustCreateMemory(t *testing.T, srv *Server, title, content string, importance int) model.Memory {
	t.Helper()
	body := `{"title":"` + title + `","content":"` + content + `","context":"ctx","importance":` + strconv.Itoa(importance) + `}`
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/memories", body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeMemory(t, rec.Body.String())
}
