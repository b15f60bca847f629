// Package storage persists the document registry and snapshots of the chunk collection.
package storage

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage is the persistence collaborator of the in-memory index. Documents
// are written as they are ingested; chunks are saved and loaded wholesale.
type Storage interface {
	// Document registry
	UpsertDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)
	CountDocuments(ctx context.Context) (int64, error)

	// Chunk snapshot
	SaveSnapshot(ctx context.Context, chunks []*models.DocumentChunk) error
	LoadSnapshot(ctx context.Context) ([]*models.DocumentChunk, error)
	CountChunks(ctx context.Context) (int64, error)

	// SizeBytes returns the on-disk size of the database files.
	SizeBytes() (int64, error)
	Close() error
}
