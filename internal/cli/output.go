// Package cli formats command output and talks to a running kotae server.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat selects human-readable or machine-readable output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for other programs.
	OutputJSON OutputFormat = "json"
)

// sourcePreviewChars bounds source previews in text output.
const sourcePreviewChars = 160

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case OutputText, "":
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes an answer and its sources.
func WriteAnswer(w io.Writer, answer *models.Answer, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, answer)
	}
	fmt.Fprintf(w, "\n%s\n\n", answer.Answer)
	if answer.NoContext {
		fmt.Fprintln(w, "(no relevant documents found)")
	} else {
		fmt.Fprintf(w, "Sources (%d):\n", len(answer.Sources))
		for i, src := range answer.Sources {
			writeSource(w, i+1, src)
		}
	}
	fmt.Fprintf(w, "\nAnswered in %dms\n", answer.QueryTime)
	return nil
}

// WriteRetrieval writes retrieved context without an answer.
func WriteRetrieval(w io.Writer, query string, sources []models.Source, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"query": query, "sources": sources})
	}
	if len(sources) == 0 {
		fmt.Fprintf(w, "\nNo matching chunks for %q\n", query)
		return nil
	}
	fmt.Fprintf(w, "\nFound %d chunks for %q\n", len(sources), query)
	for i, src := range sources {
		writeSource(w, i+1, src)
	}
	return nil
}

func writeSource(w io.Writer, n int, src models.Source) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "[%d] Score: %.4f | Document: %s | Chunk: %d\n", n, src.Score, src.DocumentID, src.ChunkIndex)
	if title, ok := src.Metadata[models.MetadataTitle].(string); ok && title != "" {
		fmt.Fprintf(w, "Title: %s\n", title)
	}
	fmt.Fprintf(w, "%s\n", utils.Truncate(oneLine(src.Content), sourcePreviewChars))
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// WriteDocuments writes the document registry.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents indexed.")
		return nil
	}
	for _, d := range docs {
		title := d.Title
		if title == "" {
			title = "(untitled)"
		}
		updated := ""
		if !d.UpdatedAt.IsZero() {
			updated = d.UpdatedAt.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%-40s %6d chunks  %s  %s\n", d.ID, d.ChunkCount, updated, title)
	}
	return nil
}

// WriteIngest writes the outcome of an ingest.
func WriteIngest(w io.Writer, res *models.IngestResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	switch {
	case res.Skipped:
		fmt.Fprintf(w, "Unchanged %s (%d chunks)\n", res.DocumentID, res.ChunkCount)
	case res.Replaced:
		fmt.Fprintf(w, "Re-indexed %s (%d chunks)\n", res.DocumentID, res.ChunkCount)
	default:
		fmt.Fprintf(w, "Indexed %s (%d chunks)\n", res.DocumentID, res.ChunkCount)
	}
	return nil
}

// Status is the shape of GET /api/v1/status.
type Status struct {
	Documents        int           `json:"documents"`
	Chunks           int           `json:"chunks"`
	Dimensions       int           `json:"dimensions"`
	StorageBytes     int64         `json:"storage_bytes,omitempty"`
	WatchDirectories []string      `json:"watch_directories,omitempty"`
	Config           *StatusConfig `json:"config,omitempty"`
}

// StatusConfig is the configuration summary inside Status.
type StatusConfig struct {
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	ChunkSize         int    `json:"chunk_size"`
	ChunkOverlap      int    `json:"chunk_overlap"`
	TopK              int    `json:"top_k"`
	LLMModel          string `json:"llm_model"`
	DatabasePath      string `json:"database_path"`
}

// WriteStatus writes corpus status.
func WriteStatus(w io.Writer, st *Status, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, st)
	}
	fmt.Fprintf(w, "documents:          %d\n", st.Documents)
	fmt.Fprintf(w, "chunks:             %d\n", st.Chunks)
	fmt.Fprintf(w, "dimensions:         %d\n", st.Dimensions)
	if st.StorageBytes > 0 {
		fmt.Fprintf(w, "storage_bytes:      %d\n", st.StorageBytes)
	}
	for _, d := range st.WatchDirectories {
		fmt.Fprintf(w, "watching:           %s\n", d)
	}
	if c := st.Config; c != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		fmt.Fprintf(w, "embedding:          %s (%s)\n", c.EmbeddingProvider, c.EmbeddingModel)
		fmt.Fprintf(w, "chunk_size:         %d\n", c.ChunkSize)
		fmt.Fprintf(w, "chunk_overlap:      %d\n", c.ChunkOverlap)
		fmt.Fprintf(w, "top_k:              %d\n", c.TopK)
		fmt.Fprintf(w, "llm_model:          %s\n", c.LLMModel)
		if c.DatabasePath != "" {
			fmt.Fprintf(w, "database_path:      %s\n", c.DatabasePath)
		}
	}
	return nil
}
