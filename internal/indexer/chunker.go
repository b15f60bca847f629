// Package indexer provides document chunking and indexing.
package indexer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
)

// chunkNamespace scopes the name-based UUIDs used as chunk IDs.
var chunkNamespace = uuid.MustParse("6f0c3a52-8f4e-5d1b-9a57-3c2e7b1d4f60")

// Chunker splits text into overlapping character windows, preferring to cut
// just after a sentence terminator or newline.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// Segment is one chunk of text with its rune offsets in the source. Start and
// End delimit the untrimmed window; Text is that window trimmed of whitespace.
type Segment struct {
	Start int
	End   int
	Text  string
}

// NewChunker creates a chunker with the given size and overlap, in characters.
// Size must be positive and overlap in [0, size).
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrConfiguration, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d",
			models.ErrConfiguration, chunkSize, chunkOverlap)
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Size returns the window size in characters.
func (c *Chunker) Size() int { return c.chunkSize }

// Overlap returns the overlap in characters.
func (c *Chunker) Overlap() int { return c.chunkOverlap }

// Split returns the segments of text in order. Whitespace-only windows are dropped.
func (c *Chunker) Split(text string) []Segment {
	runes := []rune(text)
	n := len(runes)
	var segments []Segment
	emit := func(start, end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			segments = append(segments, Segment{Start: start, End: end, Text: s})
		}
	}

	start := 0
	for start < n {
		end := start + c.chunkSize
		if end >= n {
			emit(start, n)
			break
		}

		cut := end
		next := end - c.chunkOverlap
		if bp := lastBreak(runes[start:end]); bp >= 0 && float64(bp) >= float64(c.chunkSize)*0.5 {
			cut = start + bp + 1
			next = cut - c.chunkOverlap
		}
		emit(start, cut)

		// A break point closer to start than the overlap would move the window
		// backwards; continue from the cut instead so every step advances.
		if next <= start {
			next = cut
		}
		start = next
	}
	return segments
}

// Chunk splits text into DocumentChunks with IDs derived from docID and position.
// The char_start and char_end metadata are rune offsets into text as given;
// IndexDocument passes preprocessed text, so they do not index the raw input.
func (c *Chunker) Chunk(docID, text string) []*models.DocumentChunk {
	segments := c.Split(text)
	if len(segments) == 0 {
		return nil
	}
	chunks := make([]*models.DocumentChunk, 0, len(segments))
	for i, seg := range segments {
		chunks = append(chunks, &models.DocumentChunk{
			ID:         ChunkID(docID, i),
			DocumentID: docID,
			Content:    seg.Text,
			ChunkIndex: i,
			Metadata: map[string]interface{}{
				models.MetadataChunkIndex: i,
				"char_start":              seg.Start,
				"char_end":                seg.End,
			},
		})
	}
	return chunks
}

// ChunkID returns the stable identifier of the chunk at index within docID.
func ChunkID(docID string, index int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(docID+"#"+strconv.Itoa(index))).String()
}

// lastBreak returns the index of the last '.' or '\n' in window, or -1.
func lastBreak(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
