package vector

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// VectorIndex owns the chunk collection and answers similarity queries over it.
// Mutations are per document and atomic: a search sees either all of a
// document's chunks or none of them.
type VectorIndex interface {
	// Add inserts one document's chunks. The whole batch is rejected if any chunk is invalid.
	Add(ctx context.Context, documentID string, chunks []*models.DocumentChunk) error
	// Replace swaps a document's chunks for a new batch in one step and returns how many were removed.
	Replace(ctx context.Context, documentID string, chunks []*models.DocumentChunk) (int, error)
	// Remove deletes every chunk of the document and returns how many were removed.
	// Removing an unknown document is not an error.
	Remove(ctx context.Context, documentID string) (int, error)
	// Search returns up to k chunks ranked by cosine similarity to query.
	Search(ctx context.Context, query []float32, k int, opts *SearchOptions) ([]*models.ScoredChunk, error)
	// Count returns the number of indexed chunks.
	Count() int
	// DocumentCount returns the number of documents with at least one chunk.
	DocumentCount() int
	// ChunkCount returns how many chunks the document has in the index.
	ChunkCount(documentID string) int
	// ListAll returns a snapshot of every chunk in insertion order.
	ListAll() []*models.DocumentChunk
	// Restore replaces the whole collection, e.g. from a persisted snapshot.
	Restore(chunks []*models.DocumentChunk) error
	Dimensions() int
}

// SearchOptions narrows a search. A nil *SearchOptions means no filtering.
type SearchOptions struct {
	// DocumentIDs restricts results to these documents when non-empty.
	DocumentIDs []string
	// MinScore drops results scoring below it when positive.
	MinScore float64
}
