package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// ErrInvalidConfig is returned when a CrossEncoder is misconfigured.
var ErrInvalidConfig = errors.New("invalid cross-encoder config")

// ErrRerankFailed wraps a failure calling the cross-encoder endpoint.
var ErrRerankFailed = errors.New("cross-encoder rerank failed")

// CrossEncoderConfig configures a CrossEncoder adapter.
type CrossEncoderConfig struct {
	// BaseURL points at a cross-encoder reranking endpoint, e.g. a TEI
	// server started with --model-id BAAI/bge-reranker-base.
	BaseURL string
}

// CrossEncoder reranks documents by calling out to an HTTP cross-encoder
// service, trading the SimpleReranker's pure-Go term overlap heuristic for
// a model-scored relevance judgment. It implements Adapter.
type CrossEncoder struct {
	baseURL string
	client  *http.Client
}

// NewCrossEncoder constructs a CrossEncoder adapter.
func NewCrossEncoder(cfg CrossEncoderConfig) (*CrossEncoder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	return &CrossEncoder{baseURL: cfg.BaseURL, client: &http.Client{}}, nil
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Texts     []string `json:"texts"`
	RawScores bool     `json:"raw_scores"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float32 `json:"score"`
}

// Rerank scores docs against query via the configured HTTP endpoint and
// returns the top topK by that score, falling back to the documents'
// original score ordering if the endpoint returns zero results.
func (c *CrossEncoder) Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if len(docs) == 0 {
		return []ScoredDocument{}, nil
	}
	if topK <= 0 {
		topK = len(docs)
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, RawScores: false})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRerankFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrRerankFailed, resp.StatusCode, string(respBody))
	}

	var results []rerankResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(results) == 0 {
		return fallbackRank(docs, topK), nil
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	limit := topK
	if limit > len(results) {
		limit = len(results)
	}

	out := make([]ScoredDocument, 0, limit)
	for rank, r := range results[:limit] {
		if r.Index < 0 || r.Index >= len(docs) {
			continue
		}
		out = append(out, ScoredDocument{
			Document:      docs[r.Index],
			RerankerScore: r.Score,
			OriginalRank:  rank,
		})
	}
	return out, nil
}

// Close releases resources held by the cross-encoder client. The
// underlying http.Client needs no explicit teardown.
func (c *CrossEncoder) Close() error { return nil }
