package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to an OpenAI-compatible chat completions endpoint,
// including Ollama's /v1 API.
type OpenAIProvider struct {
	client      *openai.Client
	model       string
	temperature float32
}

// NewOpenAIProvider creates a provider for model at baseURL. apiKey may be empty for Ollama.
func NewOpenAIProvider(baseURL, apiKey, model string, temperature float32) (*OpenAIProvider, error) {
	if model == "" {
		return nil, fmt.Errorf("%w: generation model is required", models.ErrConfiguration)
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIProvider{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
	}, nil
}

// Model returns the configured model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Complete sends messages and returns the first choice's content.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []models.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("chat completion: status %d: %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Status lists the endpoint's models and checks for the configured one.
func (p *OpenAIProvider) Status(ctx context.Context) ProviderStatus {
	status := ProviderStatus{Model: p.model}
	list, err := p.client.ListModels(ctx)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Reachable = true
	for _, m := range list.Models {
		status.Models = append(status.Models, m.ID)
		if m.ID == p.model || strings.TrimSuffix(m.ID, ":latest") == p.model {
			status.ModelAvailable = true
		}
	}
	return status
}
