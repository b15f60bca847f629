package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hyperjump/kotae/internal/models"
)

// MemoryIndex is a brute-force cosine index over chunks held in memory.
// Writers take the exclusive lock; searches hold the shared lock while scoring,
// so they never observe a half-applied mutation. The index takes ownership of
// added chunks; callers must not modify them afterwards.
type MemoryIndex struct {
	dimensions int
	entries    []entry
	ids        map[string]string // chunk ID to document ID
	docs       map[string]int
	mu         sync.RWMutex
}

type entry struct {
	chunk *models.DocumentChunk
	norm  float64
}

// NewMemoryIndex creates an empty index for vectors of the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: dimensions must be positive", models.ErrConfiguration)
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make(map[string]string),
		docs:       make(map[string]int),
	}, nil
}

// Dimensions returns the vector dimension accepted by the index.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Add appends the document's chunks. It fails without inserting anything if a
// chunk has the wrong dimension, no content, a foreign document ID, or an ID
// that is already indexed.
func (m *MemoryIndex) Add(ctx context.Context, documentID string, chunks []*models.DocumentChunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	batch, err := m.prepare(documentID, chunks)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range batch {
		if _, ok := m.ids[e.chunk.ID]; ok {
			return fmt.Errorf("%w: %w: chunk %s is already indexed", models.ErrIndex, models.ErrConflict, e.chunk.ID)
		}
	}
	m.insert(documentID, batch)
	return nil
}

// Replace removes the document's current chunks and inserts the new batch under one lock.
func (m *MemoryIndex) Replace(ctx context.Context, documentID string, chunks []*models.DocumentChunk) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	batch, err := m.prepare(documentID, chunks)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range batch {
		if owner, ok := m.ids[e.chunk.ID]; ok && owner != documentID {
			return 0, fmt.Errorf("%w: %w: chunk %s belongs to document %s", models.ErrIndex, models.ErrConflict, e.chunk.ID, owner)
		}
	}
	removed := m.remove(documentID)
	m.insert(documentID, batch)
	return removed, nil
}

// Remove deletes every chunk of documentID. Unknown documents are a no-op.
func (m *MemoryIndex) Remove(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remove(documentID), nil
}

// Search scores every chunk against query and returns the best min(k, matches)
// in descending score order. Equal scores keep insertion order.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, opts *SearchOptions) ([]*models.ScoredChunk, error) {
	if len(query) != m.dimensions {
		return nil, fmt.Errorf("%w: query dimension mismatch: got %d, expected %d",
			models.ErrEmbedding, len(query), m.dimensions)
	}
	if !Finite(query) {
		return nil, fmt.Errorf("%w: query embedding has a non-finite component", models.ErrEmbedding)
	}
	if k <= 0 {
		return []*models.ScoredChunk{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var allowed map[string]bool
	minScore := math.Inf(-1)
	if opts != nil {
		if len(opts.DocumentIDs) > 0 {
			allowed = make(map[string]bool, len(opts.DocumentIDs))
			for _, id := range opts.DocumentIDs {
				allowed[id] = true
			}
		}
		if opts.MinScore > 0 {
			minScore = opts.MinScore
		}
	}

	queryNorm := L2Norm(query)
	m.mu.RLock()
	results := make([]*models.ScoredChunk, 0, len(m.entries))
	for _, e := range m.entries {
		if allowed != nil && !allowed[e.chunk.DocumentID] {
			continue
		}
		score := cosine(query, e.chunk.Embedding, queryNorm, e.norm)
		if score < minScore {
			continue
		}
		results = append(results, &models.ScoredChunk{Chunk: e.chunk, Score: score})
	}
	m.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Count returns the number of indexed chunks.
func (m *MemoryIndex) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// DocumentCount returns the number of documents with at least one chunk.
func (m *MemoryIndex) DocumentCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// ChunkCount returns how many chunks documentID has in the index.
func (m *MemoryIndex) ChunkCount(documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs[documentID]
}

// ListAll returns the indexed chunks in insertion order.
func (m *MemoryIndex) ListAll() []*models.DocumentChunk {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.DocumentChunk, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.chunk
	}
	return out
}

// Restore replaces the collection with chunks, keeping their order. Chunks are
// grouped by document for validation; nothing changes if any chunk is invalid.
func (m *MemoryIndex) Restore(chunks []*models.DocumentChunk) error {
	entries := make([]entry, 0, len(chunks))
	ids := make(map[string]string, len(chunks))
	docs := make(map[string]int)
	for _, c := range chunks {
		if c == nil || c.DocumentID == "" {
			return fmt.Errorf("%w: snapshot chunk without document", models.ErrIndex)
		}
		e, err := m.validate(c.DocumentID, c)
		if err != nil {
			return err
		}
		if _, ok := ids[c.ID]; ok {
			return fmt.Errorf("%w: duplicate chunk %s in snapshot", models.ErrIndex, c.ID)
		}
		ids[c.ID] = c.DocumentID
		docs[c.DocumentID]++
		entries = append(entries, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries, m.ids, m.docs = entries, ids, docs
	return nil
}

// prepare validates a batch and precomputes norms without touching shared state.
func (m *MemoryIndex) prepare(documentID string, chunks []*models.DocumentChunk) ([]entry, error) {
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id is required", models.ErrIndex)
	}
	batch := make([]entry, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if c == nil {
			return nil, fmt.Errorf("%w: nil chunk for document %s", models.ErrIndex, documentID)
		}
		e, err := m.validate(documentID, c)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[c.ID]; ok {
			return nil, fmt.Errorf("%w: duplicate chunk %s in batch", models.ErrIndex, c.ID)
		}
		seen[c.ID] = struct{}{}
		batch = append(batch, e)
	}
	return batch, nil
}

func (m *MemoryIndex) validate(documentID string, c *models.DocumentChunk) (entry, error) {
	switch {
	case c.ID == "":
		return entry{}, fmt.Errorf("%w: chunk without id in document %s", models.ErrIndex, documentID)
	case c.DocumentID != documentID:
		return entry{}, fmt.Errorf("%w: chunk %s belongs to document %q, not %q", models.ErrIndex, c.ID, c.DocumentID, documentID)
	case c.Content == "":
		return entry{}, fmt.Errorf("%w: chunk %s has no content", models.ErrIndex, c.ID)
	case len(c.Embedding) != m.dimensions:
		return entry{}, fmt.Errorf("%w: chunk %s has dimension %d, expected %d",
			models.ErrEmbedding, c.ID, len(c.Embedding), m.dimensions)
	case !Finite(c.Embedding):
		return entry{}, fmt.Errorf("%w: chunk %s has a non-finite embedding component", models.ErrEmbedding, c.ID)
	}
	return entry{chunk: c, norm: L2Norm(c.Embedding)}, nil
}

// insert appends a validated batch. Callers hold the write lock.
func (m *MemoryIndex) insert(documentID string, batch []entry) {
	for _, e := range batch {
		m.entries = append(m.entries, e)
		m.ids[e.chunk.ID] = documentID
	}
	if len(batch) > 0 {
		m.docs[documentID] += len(batch)
	}
}

// remove filters out documentID's chunks. Callers hold the write lock.
func (m *MemoryIndex) remove(documentID string) int {
	n := m.docs[documentID]
	if n == 0 {
		return 0
	}
	kept := make([]entry, 0, len(m.entries)-n)
	for _, e := range m.entries {
		if e.chunk.DocumentID == documentID {
			delete(m.ids, e.chunk.ID)
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	delete(m.docs, documentID)
	return n
}
