// Package search turns a question into ranked, numbered context blocks.
package search

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
	"go.uber.org/zap"
)

// Options tunes retrieval. Zero values fall back to the defaults noted per field.
type Options struct {
	DefaultK int // 4
	MaxK     int // 50
	// MinScore drops hits below it when positive. A request's own MinScore wins.
	MinScore float64
	// SourcePreviewChars caps source attribution text (200). Prompts get the full chunk.
	SourcePreviewChars int
	// MaxContextChars bounds the joined context; 0 means unlimited.
	MaxContextChars int
}

// Engine embeds queries, searches the index, and assembles context.
type Engine struct {
	embedder embedding.Embedder
	index    vector.VectorIndex
	opts     Options
	logger   *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates a retrieval engine over index. The embedder must produce
// vectors of the index's dimension.
func NewEngine(embedder embedding.Embedder, index vector.VectorIndex, opts Options, options ...EngineOption) (*Engine, error) {
	if embedder.Dimensions() != index.Dimensions() {
		return nil, fmt.Errorf("%w: embedder produces %d dimensions, index expects %d",
			models.ErrConfiguration, embedder.Dimensions(), index.Dimensions())
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = 4
	}
	if opts.MaxK <= 0 {
		opts.MaxK = 50
	}
	if opts.SourcePreviewChars <= 0 {
		opts.SourcePreviewChars = 200
	}
	e := &Engine{embedder: embedder, index: index, opts: opts, logger: zap.NewNop()}
	for _, o := range options {
		o(e)
	}
	return e, nil
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Retrieve validates req, embeds the question, and returns up to req.K context
// blocks in descending similarity order. An empty index yields no blocks and no error.
func (e *Engine) Retrieve(ctx context.Context, req *models.QueryRequest) (*models.Retrieval, error) {
	if err := req.Validate(e.opts.DefaultK, e.opts.MaxK); err != nil {
		return nil, err
	}
	start := time.Now()
	retrieval := &models.Retrieval{Query: req.Question, Blocks: []*models.ContextBlock{}}
	if e.index.Count() == 0 {
		e.logger.Debug("search on empty index", zap.String("query", req.Question))
		return retrieval, nil
	}

	query, err := e.embedder.Embed(ctx, req.Question)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := embedding.CheckDimensions([][]float32{query}, e.index.Dimensions()); err != nil {
		return nil, err
	}

	minScore := e.opts.MinScore
	if req.MinScore > 0 {
		minScore = req.MinScore
	}
	results, err := e.index.Search(ctx, query, req.K, &vector.SearchOptions{
		DocumentIDs: req.DocumentIDs,
		MinScore:    minScore,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	retrieval.Results = results
	retrieval.Blocks = assemble(results, e.opts.SourcePreviewChars, e.opts.MaxContextChars)
	e.logger.Debug("search done",
		zap.Int("k", req.K),
		zap.Int("hits", len(results)),
		zap.Int("blocks", len(retrieval.Blocks)),
		zap.Duration("elapsed", time.Since(start)))
	return retrieval, nil
}
