// Package indexer turns documents into embedded chunks and keeps the vector index current.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

const (
	metaKeySourcePath  = "source_path"
	metaKeySourceMtime = "source_mtime"
	metaKeySourceSize  = "source_size"
)

// Indexer ingests documents: preprocess, chunk, embed and replace in the vector index.
// The document registry is optional; without it file ingestion never skips unchanged files.
type Indexer struct {
	embedder  embedding.Embedder
	index     vector.VectorIndex
	storage   storage.Storage
	defaults  models.ChunkConfig
	extractor *extract.Extractor
	logger    *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithStorage records ingested documents in s.
func WithStorage(s storage.Storage) IndexerOption {
	return func(idx *Indexer) { idx.storage = s }
}

// WithExtractor sets the extractor used by IndexFile. The default handles
// every format in extract.SupportedExtensions.
func WithExtractor(e *extract.Extractor) IndexerOption {
	return func(idx *Indexer) { idx.extractor = e }
}

// NewIndexer returns an Indexer that chunks with defaults unless a document overrides them.
func NewIndexer(embedder embedding.Embedder, index vector.VectorIndex, defaults models.ChunkConfig, opts ...IndexerOption) (*Indexer, error) {
	if _, err := NewChunker(defaults.Size, defaults.Overlap); err != nil {
		return nil, err
	}
	if embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, index expects %d",
			models.ErrConfiguration, embedder.Dimensions(), index.Dimensions())
	}
	idx := &Indexer{
		embedder:  embedder,
		index:     index,
		defaults:  defaults,
		extractor: extract.NewExtractor(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

// chunkerFor resolves a per-document override against the defaults. When only
// the size is overridden and the default overlap no longer fits, a fifth of
// the size is used instead.
func (idx *Indexer) chunkerFor(override *models.ChunkOverride) (*Chunker, error) {
	if override == nil {
		return NewChunker(idx.defaults.Size, idx.defaults.Overlap)
	}
	size := override.Size
	if size == 0 {
		size = idx.defaults.Size
	}
	var overlap int
	if override.Overlap != nil {
		overlap = *override.Overlap
	} else {
		overlap = idx.defaults.Overlap
		if overlap >= size {
			overlap = size / 5
		}
	}
	c, err := NewChunker(size, overlap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrInvalidInput, err)
	}
	return c, nil
}

// IndexDocument ingests input. A document with the same ID is replaced
// atomically; a search never sees a mix of old and new chunks. An empty ID is
// replaced by a generated one, returned in the result; input is not modified.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: document is required", models.ErrInvalidInput)
	}
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	chunker, err := idx.chunkerFor(input.Chunking)
	if err != nil {
		return nil, err
	}
	chunks := chunker.Chunk(id, Preprocess(input.Content))
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %s has no text", models.ErrInvalidInput, id)
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed document %s: %w", id, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbedding, len(vectors), len(chunks))
	}
	if err := embedding.CheckDimensions(vectors, idx.index.Dimensions()); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for i, ch := range chunks {
		ch.Embedding = vectors[i]
		ch.CreatedAt = now
		inheritMetadata(ch, input)
	}

	removed, err := idx.index.Replace(ctx, id, chunks)
	if err != nil {
		return nil, fmt.Errorf("index document %s: %w", id, err)
	}
	idx.register(ctx, id, input, len(chunks))
	idx.logger.Debug("document indexed",
		zap.String("id", id),
		zap.Int("chunks", len(chunks)),
		zap.Int("replaced", removed))
	return &models.IngestResult{DocumentID: id, ChunkCount: len(chunks), Replaced: removed > 0}, nil
}

// inheritMetadata copies document metadata and title onto a chunk without
// overwriting the chunk's own keys.
func inheritMetadata(ch *models.DocumentChunk, input *models.DocumentInput) {
	for k, v := range input.Metadata {
		if _, ok := ch.Metadata[k]; !ok {
			ch.Metadata[k] = v
		}
	}
	if input.Title != "" {
		ch.Metadata[models.MetadataTitle] = input.Title
	}
}

// register records the document in storage. The index is the source of truth
// for retrieval, so a registry failure is logged rather than returned.
func (idx *Indexer) register(ctx context.Context, id string, input *models.DocumentInput, chunkCount int) {
	if idx.storage == nil {
		return
	}
	doc := &models.Document{
		ID:         id,
		Title:      input.Title,
		Metadata:   input.Metadata,
		ChunkCount: chunkCount,
	}
	if err := idx.storage.UpsertDocument(ctx, doc); err != nil {
		idx.logger.Warn("failed to record document", zap.String("id", id), zap.Error(err))
	}
}

// DeleteDocument removes a document's chunks and registry entry and returns
// how many chunks were removed. Unknown IDs remove nothing.
func (idx *Indexer) DeleteDocument(ctx context.Context, id string) (int, error) {
	removed, err := idx.index.Remove(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("remove document %s: %w", id, err)
	}
	if idx.storage != nil {
		if err := idx.storage.DeleteDocument(ctx, id); err != nil {
			idx.logger.Warn("failed to delete document record", zap.String("id", id), zap.Error(err))
		}
	}
	idx.logger.Debug("document deleted", zap.String("id", id), zap.Int("chunks", removed))
	return removed, nil
}

// IndexFile extracts and ingests the file at path under an ID derived from its
// absolute path, so re-indexing a file replaces its previous version. When
// allowedExts is non-empty the extension must be listed. A file already
// indexed with the same size and mtime is skipped.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) (*models.IngestResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("%w: extension %q not in allowed list", models.ErrInvalidInput, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrInvalidInput, absPath)
	}
	docID := fileid.FromPath(absPath)
	if idx.unchanged(ctx, absPath, docID, info) {
		idx.logger.Debug("skipping unchanged file", zap.String("path", absPath))
		return &models.IngestResult{DocumentID: docID, ChunkCount: idx.index.ChunkCount(docID), Skipped: true}, nil
	}
	text, err := idx.extractor.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", absPath, err)
	}
	input := &models.DocumentInput{
		ID:      docID,
		Title:   filepath.Base(absPath),
		Content: text,
		Metadata: map[string]interface{}{
			metaKeySourcePath:  absPath,
			metaKeySourceMtime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			metaKeySourceSize:  strconv.FormatInt(info.Size(), 10),
		},
	}
	return idx.IndexDocument(ctx, input)
}

// RemoveFile deletes the document derived from path.
func (idx *Indexer) RemoveFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	return idx.DeleteDocument(ctx, fileid.FromPath(absPath))
}

// unchanged reports whether the registry holds absPath with the same mtime and
// size and the index still has its chunks.
func (idx *Indexer) unchanged(ctx context.Context, absPath, docID string, info os.FileInfo) bool {
	if idx.storage == nil || idx.index.ChunkCount(docID) == 0 {
		return false
	}
	doc, err := idx.storage.GetDocument(ctx, docID)
	if err != nil || doc.Metadata == nil {
		return false
	}
	if doc.Metadata[metaKeySourcePath] != absPath {
		return false
	}
	// Stored as strings: UnixNano does not survive a JSON float64.
	return metadataInt64(doc.Metadata, metaKeySourceMtime) == info.ModTime().UnixNano() &&
		metadataInt64(doc.Metadata, metaKeySourceSize) == info.Size()
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// DirectoryResult summarizes an IndexDirectory run.
type DirectoryResult struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Chunks  int `json:"chunks"`
}

// IndexDirectory walks dir and indexes every regular file whose extension is
// in allowedExts (all files when empty). Subdirectories are visited only when
// recursive is set. A failing file does not stop the walk; all failures are
// joined into the returned error.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string, recursive bool) (*DirectoryResult, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: not a directory: %s", models.ErrInvalidInput, absDir)
	}
	res := &DirectoryResult{}
	var errs []error
	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != absDir && (!recursive || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(path), allowedExts) {
			return nil
		}
		// Follow symlinks so only regular files are indexed.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		r, err := idx.IndexFile(ctx, path, allowedExts)
		switch {
		case err != nil:
			res.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			idx.logger.Warn("failed to index file", zap.String("path", path), zap.Error(err))
		case r.Skipped:
			res.Skipped++
		default:
			res.Indexed++
			res.Chunks += r.ChunkCount
		}
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return res, errors.Join(errs...)
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
