package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
)

type fakeProvider struct {
	reply    string
	err      error
	block    bool
	received []models.Message
}

func (p *fakeProvider) Complete(ctx context.Context, messages []models.Message) (string, error) {
	p.received = messages
	if p.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return p.reply, p.err
}

func blocks(contents ...string) []*models.ContextBlock {
	out := make([]*models.ContextBlock, len(contents))
	for i, c := range contents {
		out[i] = &models.ContextBlock{Text: search.FormatBlock(i+1, c)}
	}
	return out
}

func TestBuildMessages(t *testing.T) {
	msgs := BuildMessages("What is Go?", blocks("Go is a language.", "It has goroutines."))
	if len(msgs) != 2 || msgs[0].Role != models.RoleSystem || msgs[1].Role != models.RoleUser {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
	user := msgs[1].Content
	for _, want := range []string{"Context 1:\nGo is a language.", "Context 2:\nIt has goroutines.", "Question: What is Go?", "say so"} {
		if !strings.Contains(user, want) {
			t.Errorf("user message missing %q:\n%s", want, user)
		}
	}
	if !strings.Contains(msgs[0].Content, "say so") {
		t.Error("system prompt should ask to admit missing context")
	}
}

func TestBuildMessages_NoContext(t *testing.T) {
	msgs := BuildMessages("Anything?", nil)
	if !strings.Contains(msgs[1].Content, NoContextText) {
		t.Errorf("empty context should state that nothing was found:\n%s", msgs[1].Content)
	}
}

func TestGenerator_Generate(t *testing.T) {
	p := &fakeProvider{reply: "  Go is a language.\n"}
	g := NewGenerator(p)
	answer, err := g.Generate(context.Background(), "What is Go?", blocks("Go is a language."))
	if err != nil {
		t.Fatal(err)
	}
	if answer != "Go is a language." {
		t.Errorf("answer = %q", answer)
	}
	if len(p.received) != 2 {
		t.Errorf("provider got %d messages", len(p.received))
	}
}

func TestGenerator_Failures(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeProvider
		detail   string
		message  string
	}{
		{"provider error", &fakeProvider{err: errors.New("connection refused on 10.0.0.5")}, "connection refused", "failed"},
		{"empty reply", &fakeProvider{reply: "   "}, "empty answer", "failed"},
		{"timeout", &fakeProvider{block: true}, "deadline exceeded", "timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGenerator(tt.provider, WithTimeout(20*time.Millisecond))
			_, err := g.Generate(context.Background(), "q", nil)
			if !errors.Is(err, models.ErrGeneration) {
				t.Fatalf("expected generation error, got %v", err)
			}
			if strings.Contains(err.Error(), "10.0.0.5") {
				t.Errorf("internal detail leaked: %v", err)
			}
			if !strings.Contains(err.Error(), tt.message) {
				t.Errorf("message %q should mention %q", err.Error(), tt.message)
			}
			if !strings.Contains(ErrorDetail(err), tt.detail) {
				t.Errorf("detail %q should mention %q", ErrorDetail(err), tt.detail)
			}
		})
	}
}

func TestErrorDetail(t *testing.T) {
	if ErrorDetail(nil) != "" {
		t.Error("nil error should have no detail")
	}
	if ErrorDetail(errors.New("plain")) != "plain" {
		t.Error("plain errors should return their text")
	}
}

func newChatServer(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/chat/completions":
			var req struct {
				Model    string           `json:"model"`
				Messages []models.Message `json:"messages"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			if status != http.StatusOK {
				w.WriteHeader(status)
				_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
				return
			}
			last := req.Messages[len(req.Messages)-1].Content
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": "chat-1", "object": "chat.completion", "model": req.Model,
				"choices": []map[string]any{{
					"index":         0,
					"message":       map[string]string{"role": "assistant", "content": "echo: " + last[:5]},
					"finish_reason": "stop",
				}},
			})
		case "/v1/models":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"data":   []map[string]string{{"id": "gemma3:4b", "object": "model"}, {"id": "nomic-embed-text:latest", "object": "model"}},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProvider_Complete(t *testing.T) {
	srv := newChatServer(t, http.StatusOK)
	p, err := NewOpenAIProvider(srv.URL+"/v1", "", "gemma3:4b", 0.2)
	if err != nil {
		t.Fatal(err)
	}
	got, err := p.Complete(context.Background(), []models.Message{{Role: models.RoleUser, Content: "hello there"}})
	if err != nil {
		t.Fatal(err)
	}
	if got != "echo: hello" {
		t.Errorf("got %q", got)
	}
}

func TestOpenAIProvider_CompleteFailure(t *testing.T) {
	srv := newChatServer(t, http.StatusServiceUnavailable)
	p, _ := NewOpenAIProvider(srv.URL+"/v1", "", "gemma3:4b", 0.2)
	g := NewGenerator(p)
	_, err := g.Generate(context.Background(), "q", nil)
	if !errors.Is(err, models.ErrGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if !strings.Contains(ErrorDetail(err), "503") {
		t.Errorf("detail should carry the status: %q", ErrorDetail(err))
	}
}

func TestOpenAIProvider_Status(t *testing.T) {
	srv := newChatServer(t, http.StatusOK)
	p, _ := NewOpenAIProvider(srv.URL+"/v1", "", "nomic-embed-text", 0)
	st := p.Status(context.Background())
	if !st.Reachable || !st.ModelAvailable || len(st.Models) != 2 {
		t.Errorf("status: %+v", st)
	}

	down, _ := NewOpenAIProvider("http://127.0.0.1:1/v1", "", "gemma3:4b", 0)
	st = down.Status(context.Background())
	if st.Reachable || st.Error == "" {
		t.Errorf("unreachable status: %+v", st)
	}
	if _, err := NewOpenAIProvider("", "", "", 0); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("missing model: got %v", err)
	}
}
