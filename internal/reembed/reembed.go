// Package reembed implements the re-embed orchestrator: a five-step
// pipeline (count -> reset vector column -> iterate pages -> batch
// write -> validate) used when switching embedding providers or
// recovering from a corrupted vector index.
package reembed

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/embeddings"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// DefaultPageSize is used when a caller passes a non-positive page size.
const DefaultPageSize = 100

// Progress is fired once per batch, after that batch's embeddings have
// been written.
type Progress struct {
	Processed int
	Total     int
}

// ProgressFunc receives a Progress callback per batch.
type ProgressFunc func(Progress)

// Orchestrator drives the re-embed pipeline against a repository and
// embedding adapter.
type Orchestrator struct {
	Repo      storage.Repository
	Embedder  embeddings.Adapter
	PageSize  int
	Logger    *zap.Logger
}

// New constructs an Orchestrator. A non-positive pageSize uses
// DefaultPageSize.
func New(repo storage.Repository, embedder embeddings.Adapter, pageSize int, logger *zap.Logger) *Orchestrator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{Repo: repo, Embedder: embedder, PageSize: pageSize, Logger: logger}
}

// Run executes the full pipeline for a single user: count, reset, page
// through memories regenerating embeddings in batches, then validate.
// Failure of any predicate is surfaced in the returned ValidationResult;
// there is no automatic rollback (an operator uses internal/backup).
func (o *Orchestrator) Run(ctx context.Context, userID uuid.UUID, onProgress ProgressFunc) (storage.ValidationResult, error) {
	total, err := o.Repo.CountAllMemories(ctx, userID)
	if err != nil {
		return storage.ValidationResult{}, err
	}

	if err := o.Repo.ResetEmbeddingStorage(ctx, userID); err != nil {
		return storage.ValidationResult{}, err
	}

	processed := 0
	for offset := 0; offset < total; offset += o.PageSize {
		memories, err := o.Repo.GetMemoriesForReembedding(ctx, userID, o.PageSize, offset)
		if err != nil {
			return storage.ValidationResult{}, err
		}
		if len(memories) == 0 {
			break
		}

		texts := make([]string, len(memories))
		for i, m := range memories {
			texts[i] = m.EmbeddingText()
		}

		vectors, err := o.Embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return storage.ValidationResult{}, err
		}

		updates := make([]storage.EmbeddingUpdate, len(memories))
		for i, m := range memories {
			updates[i] = storage.EmbeddingUpdate{MemoryID: m.ID, Embedding: vectors[i]}
		}

		if err := o.Repo.BulkUpdateEmbeddings(ctx, userID, updates); err != nil {
			return storage.ValidationResult{}, err
		}

		processed += len(memories)
		o.Logger.Info("re-embed batch written",
			zap.Int("processed", processed), zap.Int("total", total))
		if onProgress != nil {
			onProgress(Progress{Processed: processed, Total: total})
		}
	}

	return o.validate(ctx, userID, total)
}

// validate runs three predicates: count matches, all embeddings have
// expected dimension, a representative search returns non-empty.
func (o *Orchestrator) validate(ctx context.Context, userID uuid.UUID, expectedCount int) (storage.ValidationResult, error) {
	var result storage.ValidationResult

	count, err := o.Repo.CountAllMemories(ctx, userID)
	if err != nil {
		return result, err
	}
	result.CountOK = count == expectedCount

	result.DimensionsOK = true
	expectedDim := o.Embedder.Dimension()
	for offset := 0; offset < count; offset += o.PageSize {
		memories, err := o.Repo.GetMemoriesForReembedding(ctx, userID, o.PageSize, offset)
		if err != nil {
			return result, err
		}
		if len(memories) == 0 {
			break
		}
		for _, m := range memories {
			if len(m.Embedding) != expectedDim {
				result.DimensionsOK = false
			}
		}
	}

	if count > 0 {
		sample, err := o.Repo.GetMemoriesForReembedding(ctx, userID, 1, 0)
		if err == nil && len(sample) > 0 {
			hits, searchErr := o.Repo.SemanticSearch(ctx, userID, sample[0].Title, 1, storage.SearchOptions{})
			result.SearchOK = searchErr == nil && len(hits) > 0
		}
	} else {
		result.SearchOK = true
	}

	return result, nil
}
