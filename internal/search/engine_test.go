package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// tableEmbedder returns fixed vectors per text so rankings are predictable.
type tableEmbedder struct {
	dims    int
	vectors map[string][]float32
	err     error
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return make([]float32, e.dims), nil
}

func (e *tableEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *tableEmbedder) Dimensions() int { return e.dims }
func (e *tableEmbedder) Close() error    { return nil }

func setup(t *testing.T, opts Options) (*Engine, *vector.MemoryIndex, *tableEmbedder) {
	t.Helper()
	emb := &tableEmbedder{dims: 2, vectors: map[string][]float32{
		"about cats": {1, 0},
		"about dogs": {0, 1},
	}}
	idx, err := vector.NewMemoryIndex(2)
	if err != nil {
		t.Fatal(err)
	}
	eng, err := NewEngine(emb, idx, opts)
	if err != nil {
		t.Fatal(err)
	}
	return eng, idx, emb
}

func addDoc(t *testing.T, idx *vector.MemoryIndex, docID string, contents []string, vecs ...[]float32) {
	t.Helper()
	var chunks []*models.DocumentChunk
	for i, c := range contents {
		chunks = append(chunks, &models.DocumentChunk{
			ID: docID + "/" + c, DocumentID: docID, ChunkIndex: i, Content: c, Embedding: vecs[i],
			Metadata: map[string]interface{}{models.MetadataChunkIndex: i},
		})
	}
	if err := idx.Add(context.Background(), docID, chunks); err != nil {
		t.Fatal(err)
	}
}

func TestEngine_RetrieveBuildsNumberedBlocks(t *testing.T) {
	eng, idx, _ := setup(t, Options{})
	addDoc(t, idx, "pets", []string{"Cats purr.", "Dogs bark.", "Both sleep."}, []float32{1, 0}, []float32{0, 1}, []float32{0.7, 0.7})

	r, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "about cats", K: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Blocks) != 2 || len(r.Results) != 2 {
		t.Fatalf("blocks=%d results=%d", len(r.Blocks), len(r.Results))
	}
	if r.Blocks[0].Text != "Context 1:\nCats purr." || r.Blocks[1].Text != "Context 2:\nBoth sleep." {
		t.Errorf("blocks: %q, %q", r.Blocks[0].Text, r.Blocks[1].Text)
	}
	src := r.Blocks[0].Source
	if src.DocumentID != "pets" || src.ChunkIndex != 0 || src.Score != 1 {
		t.Errorf("source: %+v", src)
	}
	if r.Query != "about cats" {
		t.Errorf("query = %q", r.Query)
	}
}

func TestEngine_RetrieveEmptyIndex(t *testing.T) {
	eng, _, emb := setup(t, Options{})
	emb.err = errors.New("must not be called")
	r, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "anything"})
	if err != nil {
		t.Fatalf("empty index should not fail: %v", err)
	}
	if r.Blocks == nil || len(r.Blocks) != 0 || len(r.Sources()) != 0 {
		t.Errorf("expected no blocks, got %+v", r.Blocks)
	}
}

func TestEngine_RetrieveDefaultsAndFilters(t *testing.T) {
	eng, idx, _ := setup(t, Options{DefaultK: 1})
	addDoc(t, idx, "a", []string{"cat facts"}, []float32{1, 0})
	addDoc(t, idx, "b", []string{"cat trivia", "dog trivia"}, []float32{0.9, 0.1}, []float32{0, 1})

	r, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "about cats"})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Blocks) != 1 || r.Blocks[0].Source.DocumentID != "a" {
		t.Fatalf("default k: %+v", r.Blocks)
	}

	r, _ = eng.Retrieve(context.Background(), &models.QueryRequest{Question: "about cats", K: 5, DocumentIDs: []string{"b"}})
	if len(r.Blocks) != 2 || r.Blocks[0].Source.DocumentID != "b" {
		t.Errorf("document filter: %+v", r.Blocks)
	}

	r, _ = eng.Retrieve(context.Background(), &models.QueryRequest{Question: "about cats", K: 5, MinScore: 0.5})
	if len(r.Blocks) != 2 {
		t.Errorf("min score should keep the two cat chunks, got %d", len(r.Blocks))
	}
}

func TestEngine_SourcePreviewTruncated(t *testing.T) {
	eng, idx, _ := setup(t, Options{})
	long := strings.Repeat("x", 250)
	addDoc(t, idx, "long", []string{long}, []float32{1, 0})
	r, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "about cats"})
	if err != nil {
		t.Fatal(err)
	}
	src := r.Blocks[0].Source.Content
	if src != strings.Repeat("x", 200)+"..." {
		t.Errorf("preview length %d", len(src))
	}
	if !strings.HasSuffix(r.Blocks[0].Text, long) {
		t.Error("prompt block should carry the full chunk")
	}
}

func TestEngine_ContextBudget(t *testing.T) {
	eng, idx, _ := setup(t, Options{MaxContextChars: 40})
	addDoc(t, idx, "d", []string{"short one", strings.Repeat("y", 60), "tiny"},
		[]float32{1, 0}, []float32{0.9, 0.1}, []float32{0.8, 0.2})
	r, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "about cats", K: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(r.Blocks) != 2 {
		t.Fatalf("expected the long chunk to be skipped, got %d blocks", len(r.Blocks))
	}
	if r.Blocks[1].Text != "Context 2:\ntiny" {
		t.Errorf("second block = %q", r.Blocks[1].Text)
	}
	if n := len([]rune(JoinBlocks(r.Blocks))); n > 40 {
		t.Errorf("joined context is %d chars", n)
	}
	if len(r.Results) != 3 {
		t.Errorf("raw results should keep every hit, got %d", len(r.Results))
	}
}

func TestEngine_Errors(t *testing.T) {
	eng, idx, emb := setup(t, Options{})
	addDoc(t, idx, "d", []string{"x"}, []float32{1, 0})

	if _, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "  "}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("empty question: got %v", err)
	}

	emb.err = models.ErrEmbedding
	if _, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "q"}); !errors.Is(err, models.ErrEmbedding) {
		t.Errorf("embedder failure: got %v", err)
	}

	emb.err = nil
	emb.vectors["bad"] = []float32{1, 0, 0}
	if _, err := eng.Retrieve(context.Background(), &models.QueryRequest{Question: "bad"}); !errors.Is(err, models.ErrEmbedding) {
		t.Errorf("dimension mismatch: got %v", err)
	}
}

func TestNewEngine_DimensionMismatch(t *testing.T) {
	idx, _ := vector.NewMemoryIndex(3)
	if _, err := NewEngine(embedding.NewHashEmbedder(4), idx, Options{}); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestJoinBlocks(t *testing.T) {
	blocks := []*models.ContextBlock{{Text: FormatBlock(1, "a")}, {Text: FormatBlock(2, "b")}}
	if got := JoinBlocks(blocks); got != "Context 1:\na\n\nContext 2:\nb" {
		t.Errorf("got %q", got)
	}
	if JoinBlocks(nil) != "" {
		t.Error("no blocks should join to empty string")
	}
}
