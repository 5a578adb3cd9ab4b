// Package reranker provides the Adapter contract the retrieval pipeline's
// optional rerank stage runs documents through, plus a default in-process
// implementation.
package reranker

import (
	"context"
)

// Document represents a searchable document with metadata and scores.
type Document struct {
	ID      string  // Unique identifier for the document
	Content string  // Text content to be re-ranked
	Score   float32 // Original similarity score from search
}

// ScoredDocument represents a document with re-ranking scores.
type ScoredDocument struct {
	Document
	RerankerScore float32 // Score from re-ranker (0.0-1.0)
	OriginalRank  int     // Original rank position in results (0-indexed)
}

// Adapter provides the interface for document re-ranking algorithms. A nil
// Adapter means the retrieval pipeline's rerank stage is disabled.
type Adapter interface {
	// Rerank re-ranks documents based on query relevance.
	// Takes a query string, list of documents, and desired top K results.
	// Returns re-ranked documents sorted by RerankerScore in descending order,
	// limited to topK results.
	//
	// The caller is responsible for ensuring ctx is not nil.
	Rerank(ctx context.Context, query string, docs []Document, topK int) ([]ScoredDocument, error)

	// Close closes the reranker and releases any resources.
	// Should be called when the reranker is no longer needed.
	Close() error
}
