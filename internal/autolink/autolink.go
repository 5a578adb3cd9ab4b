// Package autolink implements the auto-linker: after a memory is
// created, find similar existing memories and link to them
// automatically. This is the one place in the codebase allowed to log
// and swallow an inner error rather than propagate it, since a linking
// failure must never cause the create itself to fail.
package autolink

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/forgetful-ai/forgetful/internal/model"
	"github.com/forgetful-ai/forgetful/internal/storage"
)

// Linker wraps a repository's create-memory flow with automatic
// similarity linking.
type Linker struct {
	Repo      storage.Repository
	MaxLinks  int
	Logger    *zap.Logger
}

// New constructs a Linker. maxLinks is N_AUTO_LINK; a value <= 0 disables
// auto-linking entirely and Create becomes a plain passthrough.
func New(repo storage.Repository, maxLinks int, logger *zap.Logger) *Linker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Linker{Repo: repo, MaxLinks: maxLinks, Logger: logger}
}

// Create inserts a memory and, when enabled, links it to similar existing
// memories:
//  1. find_similar_memories(user, new_id, max_links = N_AUTO_LINK)
//  2. create_links_batch(user, new_id, [m.id for m in similar])
//  3. attach the returned linked IDs onto the returned Memory.
//
// Similarity-lookup or link-write failures are logged and swallowed; they
// never fail the create. The similar-memories list is still returned as a
// review hint even when the link write itself failed.
func (l *Linker) Create(ctx context.Context, userID uuid.UUID, in model.MemoryCreate) (*model.Memory, []model.Memory, error) {
	memory, err := l.Repo.CreateMemory(ctx, userID, in)
	if err != nil {
		return nil, nil, err
	}

	if l.MaxLinks <= 0 {
		return memory, nil, nil
	}

	similar, err := l.Repo.FindSimilarMemories(ctx, userID, memory.ID, l.MaxLinks)
	if err != nil {
		l.Logger.Warn("auto-link similarity lookup failed",
			zap.Int64("memory_id", memory.ID), zap.Error(err))
		return memory, nil, nil
	}
	if len(similar) == 0 {
		l.Logger.Info("auto-link found no similar memories", zap.Int64("memory_id", memory.ID))
		return memory, nil, nil
	}

	targetIDs := make([]int64, len(similar))
	for i, m := range similar {
		targetIDs[i] = m.ID
	}

	linkedIDs, err := l.Repo.CreateLinksBatch(ctx, userID, memory.ID, targetIDs)
	if err != nil {
		l.Logger.Warn("auto-link batch write failed",
			zap.Int64("memory_id", memory.ID), zap.Error(err))
		return memory, similar, nil
	}

	memory.LinkedMemoryIDs = linkedIDs
	l.Logger.Info("auto-linked memory",
		zap.Int64("memory_id", memory.ID), zap.Int("linked_count", len(linkedIDs)))
	return memory, similar, nil
}
