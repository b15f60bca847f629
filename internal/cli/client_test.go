package cli

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kotae/internal/models"
)

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/query", func(w http.ResponseWriter, r *http.Request) {
		var req models.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || r.Method != http.MethodPost {
			http.Error(w, "bad", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(models.Answer{Question: req.Question, Answer: "yes", Sources: []models.Source{}})
	})
	mux.HandleFunc("/api/v1/documents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/v1/documents/a b" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"document not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"a b","status":"deleted","chunks_removed":3}`))
	})
	mux.HandleFunc("/api/v1/documents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"document_id":"new","chunk_count":2}`))
			return
		}
		if r.URL.Query().Get("limit") != "5" {
			http.Error(w, "limit", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"documents":[{"id":"a","chunk_count":1}],"count":1}`))
	})
	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents":1,"chunks":4,"dimensions":384}`))
	})
	mux.HandleFunc("/api/v1/retrieve", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"embedding failed","detail":"connection refused"}`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewClient(ts.URL+"/", 0)
	ctx := context.Background()

	answer, err := c.Ask(ctx, &models.QueryRequest{Question: "ok?"})
	if err != nil || answer.Answer != "yes" || answer.Question != "ok?" {
		t.Errorf("Ask = %+v, %v", answer, err)
	}
	res, err := c.Ingest(ctx, &models.DocumentInput{Content: "x"})
	if err != nil || res.DocumentID != "new" || res.ChunkCount != 2 {
		t.Errorf("Ingest = %+v, %v", res, err)
	}
	n, err := c.Delete(ctx, "a b")
	if err != nil || n != 3 {
		t.Errorf("Delete = %d, %v", n, err)
	}
	docs, err := c.Documents(ctx, 0, 5)
	if err != nil || len(docs) != 1 || docs[0].ID != "a" {
		t.Errorf("Documents = %v, %v", docs, err)
	}
	st, err := c.Status(ctx)
	if err != nil || st.Chunks != 4 {
		t.Errorf("Status = %+v, %v", st, err)
	}

	_, err = c.Retrieve(ctx, &models.QueryRequest{Question: "q"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "embedding failed" || apiErr.Detail != "connection refused" {
		t.Errorf("APIError = %+v", apiErr)
	}

	_, err = c.Delete(ctx, "missing")
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 APIError, got %v", err)
	}
}

func TestClient_unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	if _, err := NewClient(url, 0).Status(context.Background()); err == nil {
		t.Error("expected error for closed server")
	}
}
