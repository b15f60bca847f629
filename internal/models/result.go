package models

// ScoredChunk is one search hit.
type ScoredChunk struct {
	Chunk *DocumentChunk `json:"chunk"`
	Score float64        `json:"score"`
}

// ContextBlock is a numbered piece of prompt context with its provenance.
type ContextBlock struct {
	Text   string `json:"text"`
	Source Source `json:"source"`
}

// Source attributes a context block to its chunk. Content is a truncated preview.
type Source struct {
	DocumentID string                 `json:"document_id"`
	ChunkID    string                 `json:"chunk_id"`
	ChunkIndex int                    `json:"chunk_index"`
	Content    string                 `json:"content"`
	Score      float64                `json:"score"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Retrieval is the assembled context for a query.
type Retrieval struct {
	Query   string          `json:"query"`
	Blocks  []*ContextBlock `json:"blocks"`
	Results []*ScoredChunk  `json:"-"`
}

// Sources returns the provenance of every block, in block order.
func (r *Retrieval) Sources() []Source {
	sources := make([]Source, 0, len(r.Blocks))
	for _, b := range r.Blocks {
		sources = append(sources, b.Source)
	}
	return sources
}

// Answer is the response to a QueryRequest.
type Answer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []Source `json:"sources"`
	// NoContext is set when retrieval found nothing to ground the answer on.
	NoContext bool  `json:"no_context"`
	QueryTime int64 `json:"query_time_ms"`
}
