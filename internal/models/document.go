// Package models defines core data structures for documents, chunks, queries, and answers.
package models

import "time"

// MetadataChunkIndex is the chunk metadata key carrying the chunk's position in its document.
const MetadataChunkIndex = "chunk_index"

// MetadataTitle is the chunk metadata key carrying the document title.
const MetadataTitle = "title"

// Document is a registry entry for an ingested document. The text itself lives in its chunks.
type Document struct {
	ID         string                 `json:"id" db:"id"`
	Title      string                 `json:"title" db:"title"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	ChunkCount int                    `json:"chunk_count" db:"chunk_count"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at" db:"updated_at"`
}

// DocumentChunk is a segment of a document's text, the unit of embedding and retrieval.
type DocumentChunk struct {
	ID         string                 `json:"id" db:"id"`
	DocumentID string                 `json:"document_id" db:"document_id"`
	Content    string                 `json:"content" db:"content"`
	ChunkIndex int                    `json:"chunk_index" db:"chunk_index"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	Embedding  []float32              `json:"-" db:"embedding"`
	CreatedAt  time.Time              `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for ingesting a document.
type DocumentInput struct {
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	// Chunking overrides the configured chunk window for this document.
	Chunking *ChunkOverride `json:"chunking,omitempty"`
}

// ChunkConfig is a resolved chunk window.
type ChunkConfig struct {
	Size    int `json:"size"`
	Overlap int `json:"overlap"`
}

// ChunkOverride changes the chunk window for one document. A zero Size and a
// nil Overlap take the configured defaults; an Overlap of 0 means no overlap.
type ChunkOverride struct {
	Size    int  `json:"size,omitempty"`
	Overlap *int `json:"overlap,omitempty"`
}

// IngestResult reports what an ingest produced.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	ChunkCount int    `json:"chunk_count"`
	Replaced   bool   `json:"replaced"`
	// Skipped is set when a file was already indexed with the same size and mtime.
	Skipped bool `json:"skipped,omitempty"`
}
