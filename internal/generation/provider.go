// Package generation builds prompts from retrieved context and asks a
// completion provider for the answer.
package generation

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// CompletionProvider turns an ordered conversation into a reply.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []models.Message) (string, error)
}

// ProviderStatus reports whether the completion endpoint is reachable and
// serves the configured model.
type ProviderStatus struct {
	Reachable      bool     `json:"reachable"`
	Model          string   `json:"model"`
	ModelAvailable bool     `json:"model_available"`
	Models         []string `json:"models,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// StatusChecker is implemented by providers that can report their status.
type StatusChecker interface {
	Status(ctx context.Context) ProviderStatus
}
