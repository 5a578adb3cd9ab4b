// Package retrieval implements the retrieval pipeline: a 1- to 4-stage
// search over dense vector similarity, an optional lexical keyword pass
// fused via reciprocal rank fusion, and an optional cross-encoder
// rerank.
package retrieval

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/reranker"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// kRRF is the reciprocal rank fusion constant, the standard unweighted
// value.
const kRRF = 60

// DefaultFanout is the minimum number of dense candidates the pipeline
// requests (k is used instead when it is larger), giving the
// lexical/rerank stages headroom to re-rank without re-querying storage.
const DefaultFanout = 40

// LexicalScorer scores a set of candidates against a query using
// keyword/tag overlap, independent of the dense embedding space. An
// implementation lives in lexical.go.
type LexicalScorer interface {
	Score(ctx context.Context, query string, candidates []model.Memory) map[int64]float64
}

// Pipeline orchestrates the retrieval stages. Lexical and Rerank are
// optional: a nil value disables that stage and the pipeline degrades
// gracefully to the stages configured.
type Pipeline struct {
	Repo     storage.Repository
	Lexical  LexicalScorer
	Rerank   reranker.Adapter
	Fanout   int
	Logger   *zap.Logger
}

// New constructs a Pipeline with DefaultFanout if Fanout is unset.
func New(repo storage.Repository, lexical LexicalScorer, rerank reranker.Adapter, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{Repo: repo, Lexical: lexical, Rerank: rerank, Fanout: DefaultFanout, Logger: logger}
}

// Request carries the retrieval pipeline's inputs.
type Request struct {
	UserID       uuid.UUID
	Query        string
	QueryContext string
	K            int
	Filters      storage.SearchOptions
}

// Search runs the configured stages and returns at most K memories.
func (p *Pipeline) Search(ctx context.Context, req Request) ([]model.Memory, error) {
	fanout := req.K
	if p.Fanout > fanout {
		fanout = p.Fanout
	}

	denseTimer := prometheus.NewTimer(stageDuration.WithLabelValues("dense"))
	dense, err := p.Repo.SemanticSearch(ctx, req.UserID, req.Query, fanout, req.Filters)
	denseTimer.ObserveDuration()
	if err != nil {
		return nil, err
	}
	if len(dense) == 0 {
		return dense, nil
	}

	fused := dense
	if p.Lexical != nil {
		lexicalTimer := prometheus.NewTimer(stageDuration.WithLabelValues("lexical"))
		fused = p.fuseWithLexical(ctx, req.Query, dense)
		lexicalTimer.ObserveDuration()
	}

	reranked := fused
	if p.Rerank != nil {
		rerankTimer := prometheus.NewTimer(stageDuration.WithLabelValues("rerank"))
		reranked, err = p.applyRerank(ctx, req, fused)
		rerankTimer.ObserveDuration()
		if err != nil {
			rerankFallbackTotal.Inc()
			p.Logger.Warn("rerank stage failed, falling back to fused order", zap.Error(err))
			reranked = fused
		}
	}

	if req.K > 0 && req.K < len(reranked) {
		reranked = reranked[:req.K]
	}
	return reranked, nil
}

// fuseWithLexical combines the dense ranking with the lexical scorer's
// ranking via reciprocal rank fusion: score(m) = Σ 1/(k_rrf + rank_i(m)).
func (p *Pipeline) fuseWithLexical(ctx context.Context, query string, dense []model.Memory) []model.Memory {
	lexicalScores := p.Lexical.Score(ctx, query, dense)

	lexicalOrder := make([]model.Memory, len(dense))
	copy(lexicalOrder, dense)
	sort.SliceStable(lexicalOrder, func(i, j int) bool {
		return lexicalScores[lexicalOrder[i].ID] > lexicalScores[lexicalOrder[j].ID]
	})

	denseRank := make(map[int64]int, len(dense))
	for i, m := range dense {
		denseRank[m.ID] = i + 1
	}
	lexicalRank := make(map[int64]int, len(lexicalOrder))
	for i, m := range lexicalOrder {
		lexicalRank[m.ID] = i + 1
	}

	fusedScore := make(map[int64]float64, len(dense))
	for _, m := range dense {
		score := 1.0 / float64(kRRF+denseRank[m.ID])
		score += 1.0 / float64(kRRF+lexicalRank[m.ID])
		fusedScore[m.ID] = score
	}

	out := make([]model.Memory, len(dense))
	copy(out, dense)
	sort.SliceStable(out, func(i, j int) bool {
		if fusedScore[out[i].ID] != fusedScore[out[j].ID] {
			return fusedScore[out[i].ID] > fusedScore[out[j].ID]
		}
		return storage.CompareMemories(out[i], out[j])
	})
	return out
}

// candidateText builds the canonical reranker document text:
// "title + \n + content + \n + context".
func candidateText(m model.Memory) string {
	return strings.Join([]string{m.Title, m.Content, m.Context}, "\n")
}

func (p *Pipeline) applyRerank(ctx context.Context, req Request, candidates []model.Memory) ([]model.Memory, error) {
	byID := make(map[string]model.Memory, len(candidates))
	docs := make([]reranker.Document, len(candidates))
	for i, m := range candidates {
		id := strconv.FormatInt(m.ID, 10)
		byID[id] = m
		docs[i] = reranker.Document{ID: id, Content: candidateText(m)}
	}

	query := strings.Join([]string{req.Query, req.QueryContext}, "\n")
	scored, err := p.Rerank.Rerank(ctx, query, docs, len(docs))
	if err != nil {
		return nil, err
	}

	out := make([]model.Memory, 0, len(scored))
	for _, s := range scored {
		if m, ok := byID[s.ID]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}
