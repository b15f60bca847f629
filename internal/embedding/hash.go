package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultDimensions is the vector size of the hash embedder when none is configured.
const DefaultDimensions = 384

// HashEmbedder folds a rolling character hash into a fixed number of buckets.
// It needs no external service and is deterministic, but carries no meaning:
// similar texts do not get similar vectors. Use it for tests and offline setups.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder returns a hash embedder producing vectors of the given dimensions.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

// Embed returns a vector whose components lie in [-1, 1].
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cannot embed empty text", models.ErrEmbedding)
	}
	acc := make([]float64, e.dimensions)
	var h uint32
	for _, r := range text {
		h = 31*h + uint32(r)
		acc[h%uint32(e.dimensions)] += float64(h%2001)/1000 - 1
	}

	var peak float64
	for _, v := range acc {
		peak = math.Max(peak, math.Abs(v))
	}
	if peak == 0 {
		// Every contribution cancelled out; fall back to a single marked bucket
		// so the vector still has a direction.
		acc[h%uint32(e.dimensions)] = 1
		peak = 1
	}
	emb := make([]float32, e.dimensions)
	for i, v := range acc {
		emb[i] = float32(v / peak)
	}
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *HashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, texts, e.Embed)
}

// Dimensions returns the embedding dimension.
func (e *HashEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HashEmbedder) Close() error {
	return nil
}
