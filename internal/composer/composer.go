// Package composer implements the query composer: runs the retrieval
// pipeline for primary memories, optionally hydrates one-hop linked
// memories, and applies a two-stage token budget so the result fits a
// downstream LLM's context window.
package composer

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/retrieval"
	"github.com/forgetful-ai/forgetful/internal/storage"
	"github.com/forgetful-ai/forgetful/internal/tokencount"
)

// LinkedMemory pairs a linked memory with the primary memory that first
// surfaced it.
type LinkedMemory struct {
	Memory       model.Memory
	LinkSourceID int64
}

// Request carries the query composer's inputs.
type Request struct {
	Query                 string
	QueryContext          string
	K                      int
	IncludeLinks          bool
	MaxLinksPerPrimary    int
	TokenContextThreshold int
	MaxMemories           int
	ImportanceThreshold   *int
	ProjectIDs            []int64
	StrictProjectFilter   bool
}

// Result is the composed, budget-applied query response.
type Result struct {
	Query      string
	Primary    []model.Memory
	Linked     []LinkedMemory
	TotalCount int
	TokenCount int
	Truncated  bool
}

// Composer wires the retrieval pipeline, repository, and token counter
// together.
type Composer struct {
	Pipeline *retrieval.Pipeline
	Repo     storage.Repository
	Counter  *tokencount.Counter
	Logger   *zap.Logger
}

// New constructs a Composer. A nil counter builds a default one.
func New(pipeline *retrieval.Pipeline, repo storage.Repository, counter *tokencount.Counter, logger *zap.Logger) *Composer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counter == nil {
		counter = tokencount.New(logger)
	}
	return &Composer{Pipeline: pipeline, Repo: repo, Counter: counter, Logger: logger}
}

// Query runs the full composition algorithm: search, link hydration,
// then budget truncation.
func (c *Composer) Query(ctx context.Context, userID uuid.UUID, req Request) (*Result, error) {
	primary, err := c.Pipeline.Search(ctx, retrieval.Request{
		UserID:       userID,
		Query:        req.Query,
		QueryContext: req.QueryContext,
		K:            req.K,
		Filters: storage.SearchOptions{
			ImportanceThreshold: req.ImportanceThreshold,
			ProjectIDs:          req.ProjectIDs,
		},
	})
	if err != nil {
		return nil, err
	}

	var linked []LinkedMemory
	if req.IncludeLinks && req.MaxLinksPerPrimary > 0 {
		linked = c.fetchLinkedMemories(ctx, userID, primary, req)
	}

	finalPrimary, primaryTokens, primaryTruncated := c.truncateByBudget(primary, req.TokenContextThreshold, req.MaxMemories)
	if primaryTruncated {
		return &Result{
			Query:      req.Query,
			Primary:    finalPrimary,
			Linked:     nil,
			TotalCount: len(finalPrimary),
			TokenCount: primaryTokens,
			Truncated:  true,
		}, nil
	}

	remainingTokens := req.TokenContextThreshold - primaryTokens
	remainingCount := req.MaxMemories - len(finalPrimary)

	linkedMemories := make([]model.Memory, len(linked))
	for i, l := range linked {
		linkedMemories[i] = l.Memory
	}
	finalLinkedMemories, linkedTokens, linkedTruncated := c.truncateByBudget(linkedMemories, remainingTokens, remainingCount)

	finalLinked := make([]LinkedMemory, 0, len(finalLinkedMemories))
	sourceByID := make(map[int64]int64, len(linked))
	for _, l := range linked {
		sourceByID[l.Memory.ID] = l.LinkSourceID
	}
	for _, m := range finalLinkedMemories {
		finalLinked = append(finalLinked, LinkedMemory{Memory: m, LinkSourceID: sourceByID[m.ID]})
	}

	return &Result{
		Query:      req.Query,
		Primary:    finalPrimary,
		Linked:     finalLinked,
		TotalCount: len(finalPrimary) + len(finalLinked),
		TokenCount: primaryTokens + linkedTokens,
		Truncated:  linkedTruncated,
	}, nil
}

// fetchLinkedMemories hydrates one-hop links for every primary result,
// skipping anything already seen as a primary or an earlier linked entry.
// A per-primary lookup failure is logged and skipped, per the original
// service's try/except around get_linked_memories.
func (c *Composer) fetchLinkedMemories(ctx context.Context, userID uuid.UUID, primary []model.Memory, req Request) []LinkedMemory {
	seen := make(map[int64]bool, len(primary))
	for _, p := range primary {
		seen[p.ID] = true
	}

	var projectIDs []int64
	if req.StrictProjectFilter {
		projectIDs = req.ProjectIDs
	}

	var linked []LinkedMemory
	for _, p := range primary {
		links, err := c.Repo.GetLinkedMemories(ctx, userID, p.ID, projectIDs, req.MaxLinksPerPrimary)
		if err != nil {
			c.Logger.Warn("failed to fetch linked memories", zap.Int64("primary_id", p.ID), zap.Error(err))
			continue
		}
		for _, m := range links {
			if seen[m.ID] {
				continue
			}
			linked = append(linked, LinkedMemory{Memory: m, LinkSourceID: p.ID})
			seen[m.ID] = true
		}
	}
	return linked
}

// truncateByBudget sorts memories by importance descending, caps at
// maxCount, then greedily accumulates until the next memory would exceed
// maxTokens. If the greedy walk selects nothing but a candidate exists,
// the first (highest-importance) candidate is kept anyway so a single
// oversized memory is never silently dropped to zero results.
func (c *Composer) truncateByBudget(memories []model.Memory, maxTokens, maxCount int) ([]model.Memory, int, bool) {
	if len(memories) == 0 {
		return nil, 0, false
	}

	sorted := make([]model.Memory, len(memories))
	copy(sorted, memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance > sorted[j].Importance
	})
	if maxCount >= 0 && maxCount < len(sorted) {
		sorted = sorted[:maxCount]
	}

	var selected []model.Memory
	runningTotal := 0
	truncated := false
	for _, m := range sorted {
		tokens := c.countMemoryTokens(m)
		if runningTotal+tokens > maxTokens {
			truncated = true
			break
		}
		selected = append(selected, m)
		runningTotal += tokens
	}

	if len(selected) == 0 && len(sorted) > 0 {
		selected = sorted[:1]
		runningTotal = c.countMemoryTokens(sorted[0])
	}

	return selected, runningTotal, truncated
}

// countMemoryTokens counts tokens over the canonical budget text: title,
// content, context, then space-joined keywords and tags.
func (c *Composer) countMemoryTokens(m model.Memory) int {
	return c.Counter.Count(joinWithSpaces(m.Title, m.Content, m.Context, joinWords(m.Keywords), joinWords(m.Tags)))
}

func joinWords(words []string) string {
	out := ""
	for i, w := range words {
		if i > 0 {
			out += " "
		}
		out += w
	}
	return out
}

func joinWithSpaces(parts ...string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
