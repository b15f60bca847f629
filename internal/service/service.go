// Package service exposes the question answering operations: ingest, delete,
// answer, retrieve, and the document registry around them.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Service wires the indexer, retrieval engine and generator around one shared index.
type Service struct {
	indexer   *indexer.Indexer
	engine    *search.Engine
	generator *generation.Generator
	index     vector.VectorIndex
	storage   storage.Storage

	answerWithoutContext bool
	logger               *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStorage enables the document registry and snapshots.
func WithStorage(st storage.Storage) Option {
	return func(s *Service) { s.storage = st }
}

// WithGenerator sets the generator used by AnswerQuery.
func WithGenerator(g *generation.Generator) Option {
	return func(s *Service) { s.generator = g }
}

// WithAnswerWithoutContext controls whether the generator is called when
// retrieval found nothing. When false the fixed no-context answer is returned.
func WithAnswerWithoutContext(v bool) Option {
	return func(s *Service) { s.answerWithoutContext = v }
}

// New returns a Service. idx and engine must share index.
func New(idx *indexer.Indexer, engine *search.Engine, index vector.VectorIndex, opts ...Option) *Service {
	s := &Service{
		indexer:              idx,
		engine:               engine,
		index:                index,
		answerWithoutContext: true,
		logger:               zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Indexer returns the indexer, for file ingestion and the watcher.
func (s *Service) Indexer() *indexer.Indexer {
	return s.indexer
}

// IngestDocument chunks, embeds and indexes input, replacing any document with the same ID.
func (s *Service) IngestDocument(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	res, err := s.indexer.IndexDocument(ctx, input)
	if err != nil {
		s.logger.Warn("service ingest failed", zap.Error(err))
		return nil, err
	}
	s.logger.Info("service document ingested",
		zap.String("id", res.DocumentID),
		zap.Int("chunks", res.ChunkCount),
		zap.Bool("replaced", res.Replaced))
	return res, nil
}

// DeleteDocument removes a document and returns how many chunks it had.
// Deleting an unknown document removes nothing and is not an error.
func (s *Service) DeleteDocument(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("%w: document id is required", models.ErrInvalidInput)
	}
	return s.indexer.DeleteDocument(ctx, id)
}

// Retrieve returns the context blocks for req without calling the generator.
func (s *Service) Retrieve(ctx context.Context, req *models.QueryRequest) (*models.Retrieval, error) {
	return s.engine.Retrieve(ctx, req)
}

// AnswerQuery retrieves context for req and asks the generator to answer from it.
// When nothing was retrieved the answer has NoContext set and empty sources.
func (s *Service) AnswerQuery(ctx context.Context, req *models.QueryRequest) (*models.Answer, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("%w: no completion provider configured", models.ErrConfiguration)
	}
	start := time.Now()
	retrieval, err := s.engine.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	answer := &models.Answer{
		Question:  retrieval.Query,
		Sources:   retrieval.Sources(),
		NoContext: len(retrieval.Blocks) == 0,
	}
	if answer.NoContext && !s.answerWithoutContext {
		answer.Answer = generation.NoContextText
	} else {
		text, err := s.generator.Generate(ctx, retrieval.Query, retrieval.Blocks)
		if err != nil {
			return nil, err
		}
		answer.Answer = text
	}
	answer.QueryTime = time.Since(start).Milliseconds()
	s.logger.Info("service query answered",
		zap.Int("sources", len(answer.Sources)),
		zap.Bool("no_context", answer.NoContext),
		zap.Int64("query_time_ms", answer.QueryTime))
	return answer, nil
}

// CorpusSize returns the number of indexed chunks.
func (s *Service) CorpusSize() int {
	return s.index.Count()
}

// ListDocuments returns registered documents, newest first. Without storage the
// list is derived from the index and carries no timestamps.
func (s *Service) ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	if s.storage != nil {
		return s.storage.ListDocuments(ctx, offset, limit)
	}
	docs := documentsFromIndex(s.index.ListAll())
	if offset >= len(docs) {
		return []*models.Document{}, nil
	}
	docs = docs[max(offset, 0):]
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

// GetDocument returns one document, or an error wrapping models.ErrIndex if it is unknown.
func (s *Service) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	if s.storage != nil {
		return s.storage.GetDocument(ctx, id)
	}
	for _, d := range documentsFromIndex(s.index.ListAll()) {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: document not found: %s", models.ErrIndex, id)
}

func documentsFromIndex(chunks []*models.DocumentChunk) []*models.Document {
	byID := make(map[string]*models.Document)
	var order []string
	for _, ch := range chunks {
		d, ok := byID[ch.DocumentID]
		if !ok {
			d = &models.Document{ID: ch.DocumentID, CreatedAt: ch.CreatedAt, UpdatedAt: ch.CreatedAt}
			if title, ok := ch.Metadata[models.MetadataTitle].(string); ok {
				d.Title = title
			}
			byID[ch.DocumentID] = d
			order = append(order, ch.DocumentID)
		}
		d.ChunkCount++
	}
	docs := make([]*models.Document, 0, len(order))
	for _, id := range order {
		docs = append(docs, byID[id])
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs
}

// Status summarizes the corpus.
type Status struct {
	Documents    int   `json:"documents"`
	Chunks       int   `json:"chunks"`
	Dimensions   int   `json:"dimensions"`
	StorageBytes int64 `json:"storage_bytes,omitempty"`
}

// Status reports index and storage sizes.
func (s *Service) Status() *Status {
	st := &Status{
		Documents:  s.index.DocumentCount(),
		Chunks:     s.index.Count(),
		Dimensions: s.index.Dimensions(),
	}
	if s.storage != nil {
		if n, err := s.storage.SizeBytes(); err == nil {
			st.StorageBytes = n
		}
	}
	return st
}

// ProviderStatus reports whether the completion endpoint is reachable and has the configured model.
func (s *Service) ProviderStatus(ctx context.Context) generation.ProviderStatus {
	if s.generator == nil {
		return generation.ProviderStatus{Error: "no completion provider configured"}
	}
	checker, ok := s.generator.Provider().(generation.StatusChecker)
	if !ok {
		return generation.ProviderStatus{Reachable: true, ModelAvailable: true}
	}
	return checker.Status(ctx)
}

// Snapshot writes every indexed chunk to storage, replacing the previous snapshot.
func (s *Service) Snapshot(ctx context.Context) (int, error) {
	if s.storage == nil {
		return 0, fmt.Errorf("%w: no storage configured", models.ErrConfiguration)
	}
	chunks := s.index.ListAll()
	if err := s.storage.SaveSnapshot(ctx, chunks); err != nil {
		return 0, fmt.Errorf("save snapshot: %w", err)
	}
	s.logger.Info("service snapshot saved", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}

// Restore loads the stored snapshot into the index, replacing its contents.
// Chunks whose dimensions no longer match the index are rejected as a whole.
func (s *Service) Restore(ctx context.Context) (int, error) {
	if s.storage == nil {
		return 0, fmt.Errorf("%w: no storage configured", models.ErrConfiguration)
	}
	chunks, err := s.storage.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshot: %w", err)
	}
	if err := s.index.Restore(chunks); err != nil {
		return 0, fmt.Errorf("restore snapshot: %w", err)
	}
	s.logger.Info("service snapshot restored", zap.Int("chunks", len(chunks)))
	return len(chunks), nil
}
