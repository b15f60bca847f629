package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// chatServer answers every chat completion with a fixed reply and records the prompts.
func chatServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Model    string           `json:"model"`
			Messages []models.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(req.Messages) == 0 || !strings.Contains(req.Messages[len(req.Messages)-1].Content, "opens at nine") {
			t.Errorf("prompt does not carry the retrieved context: %+v", req.Messages)
		}
		reply := "It opens at nine."
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "chat-1", "object": "chat.completion", "model": req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestComponents_endToEnd(t *testing.T) {
	ts := chatServer(t)
	cfg := &config.Config{}
	cfg.Storage.DatabasePath = filepath.Join(t.TempDir(), "kotae.db")
	cfg.Generation.BaseURL = ts.URL + "/v1"
	cfg.Chunking.ChunkSize = 200
	overlap := 20
	cfg.Chunking.ChunkOverlap = &overlap
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Service.IngestDocument(ctx, &models.DocumentInput{
		ID: "faq", Title: "FAQ", Content: "The office opens at nine. Parking is free for visitors.",
	}); err != nil {
		t.Fatal(err)
	}
	answer, err := c.Service.AnswerQuery(ctx, &models.QueryRequest{Question: "When does the office open?"})
	if err != nil {
		t.Fatal(err)
	}
	if answer.NoContext || len(answer.Sources) != 1 || answer.Answer != "It opens at nine." {
		t.Errorf("answer = %+v", answer)
	}
	c.Close()

	// A second start restores the snapshot written on close.
	c2, err := initializeComponents(cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	if c2.Service.CorpusSize() != 1 {
		t.Fatalf("restored corpus size %d, want 1", c2.Service.CorpusSize())
	}
	doc, err := c2.Service.GetDocument(ctx, "faq")
	if err != nil || doc.Title != "FAQ" || doc.ChunkCount != 1 {
		t.Errorf("registry after restart = %+v, %v", doc, err)
	}
}
