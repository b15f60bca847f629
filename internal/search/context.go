package search

import (
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// blockSeparator joins context blocks in the prompt.
const blockSeparator = "\n\n"

// FormatBlock renders the i-th (1-based) context block.
func FormatBlock(i int, content string) string {
	return fmt.Sprintf("Context %d:\n%s", i, content)
}

// JoinBlocks concatenates block texts in order.
func JoinBlocks(blocks []*models.ContextBlock) string {
	texts := make([]string, len(blocks))
	for i, b := range blocks {
		texts[i] = b.Text
	}
	return strings.Join(texts, blockSeparator)
}

// Preview returns the source attribution text for content, cut to maxLen characters.
func Preview(content string, maxLen int) string {
	return utils.Truncate(content, maxLen)
}

// assemble turns ranked hits into numbered blocks. With a positive budget,
// hits whose block would push the joined context past budget characters are
// skipped; later, shorter hits may still fit. Order is preserved either way.
func assemble(results []*models.ScoredChunk, previewChars, budget int) []*models.ContextBlock {
	blocks := make([]*models.ContextBlock, 0, len(results))
	used := 0
	for _, r := range results {
		text := FormatBlock(len(blocks)+1, r.Chunk.Content)
		size := len([]rune(text))
		if len(blocks) > 0 {
			size += len(blockSeparator)
		}
		if budget > 0 && used+size > budget {
			continue
		}
		used += size
		blocks = append(blocks, &models.ContextBlock{
			Text: text,
			Source: models.Source{
				DocumentID: r.Chunk.DocumentID,
				ChunkID:    r.Chunk.ID,
				ChunkIndex: r.Chunk.ChunkIndex,
				Content:    Preview(r.Chunk.Content, previewChars),
				Score:      r.Score,
				Metadata:   r.Chunk.Metadata,
			},
		})
	}
	return blocks
}
