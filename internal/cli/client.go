package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// DefaultServerURL is where the CLI expects a running server.
const DefaultServerURL = "http://localhost:8080"

// Client calls the kotae HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Ask answers question from the indexed documents.
func (c *Client) Ask(ctx context.Context, req *models.QueryRequest) (*models.Answer, error) {
	var answer models.Answer
	if err := c.do(ctx, http.MethodPost, "/api/v1/query", req, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// RetrieveResponse is the body of POST /api/v1/retrieve.
type RetrieveResponse struct {
	Query   string                 `json:"query"`
	Blocks  []*models.ContextBlock `json:"blocks"`
	Sources []models.Source        `json:"sources"`
}

// Retrieve returns the context the server would answer from.
func (c *Client) Retrieve(ctx context.Context, req *models.QueryRequest) (*RetrieveResponse, error) {
	var res RetrieveResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/retrieve", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ingest sends a document to the server.
func (c *Client) Ingest(ctx context.Context, input *models.DocumentInput) (*models.IngestResult, error) {
	var res models.IngestResult
	if err := c.do(ctx, http.MethodPost, "/api/v1/documents", input, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Delete removes a document and returns how many chunks it had.
func (c *Client) Delete(ctx context.Context, id string) (int, error) {
	var res struct {
		ChunksRemoved int `json:"chunks_removed"`
	}
	if err := c.do(ctx, http.MethodDelete, "/api/v1/documents/"+url.PathEscape(id), nil, &res); err != nil {
		return 0, err
	}
	return res.ChunksRemoved, nil
}

// Documents lists registered documents.
func (c *Client) Documents(ctx context.Context, offset, limit int) ([]*models.Document, error) {
	q := url.Values{}
	q.Set("offset", fmt.Sprint(offset))
	q.Set("limit", fmt.Sprint(limit))
	var res struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/documents?"+q.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return res.Documents, nil
}

// Status returns corpus status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
		var payload struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(b, &payload) == nil && payload.Error != "" {
			apiErr.Message, apiErr.Detail = payload.Error, payload.Detail
		}
		return apiErr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
