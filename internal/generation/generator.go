package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"go.uber.org/zap"
)

// SystemPrompt establishes the assistant's role.
const SystemPrompt = "You are a helpful AI assistant. Answer questions using only the provided context. " +
	"If the context does not contain enough information to answer, say so instead of guessing."

// NoContextText is the prompt context used when retrieval found nothing.
const NoContextText = "No relevant information was found in the uploaded documents."

// DefaultTimeout bounds a completion call when none is configured.
const DefaultTimeout = 60 * time.Second

// Error is returned for every completion failure. Message is safe to show to
// users; the cause is kept for logs and debug surfaces.
type Error struct {
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap exposes models.ErrGeneration; the cause is only reachable through Detail.
func (e *Error) Unwrap() error {
	return models.ErrGeneration
}

// Detail returns the underlying failure, for developer-facing output.
func (e *Error) Detail() string {
	if e.cause == nil {
		return ""
	}
	return e.cause.Error()
}

// Generator builds prompts and calls the completion provider with a timeout.
type Generator struct {
	provider CompletionProvider
	timeout  time.Duration
	logger   *zap.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithLogger sets the generator logger.
func WithLogger(logger *zap.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithTimeout sets the completion timeout.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGenerator creates a generator around provider.
func NewGenerator(provider CompletionProvider, opts ...GeneratorOption) *Generator {
	g := &Generator{provider: provider, timeout: DefaultTimeout, logger: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Provider returns the wrapped completion provider.
func (g *Generator) Provider() CompletionProvider {
	return g.provider
}

// BuildMessages returns the system and user turns for question and blocks.
func BuildMessages(question string, blocks []*models.ContextBlock) []models.Message {
	contextText := search.JoinBlocks(blocks)
	if len(blocks) == 0 {
		contextText = NoContextText
	}
	var user strings.Builder
	user.WriteString("Use the following context to answer the question.\n\n")
	user.WriteString("Context:\n")
	user.WriteString(contextText)
	user.WriteString("\n\nQuestion: ")
	user.WriteString(question)
	user.WriteString("\n\nIf the context does not contain enough information to answer the question, say so.")
	return []models.Message{
		{Role: models.RoleSystem, Content: SystemPrompt},
		{Role: models.RoleUser, Content: user.String()},
	}
}

// Generate asks the provider to answer question from blocks. Any provider
// failure, timeout, or empty reply is logged and returned as *Error.
func (g *Generator) Generate(ctx context.Context, question string, blocks []*models.ContextBlock) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	answer, err := g.provider.Complete(ctx, BuildMessages(question, blocks))
	elapsed := time.Since(start)
	if err == nil && strings.TrimSpace(answer) == "" {
		err = errors.New("provider returned an empty answer")
	}
	if err != nil {
		msg := "The answer service failed. Please try again later."
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "The answer service timed out. Please try again later."
		}
		g.logger.Error("generation failed",
			zap.Int("blocks", len(blocks)),
			zap.Duration("elapsed", elapsed),
			zap.Duration("timeout", g.timeout),
			zap.Error(err))
		return "", &Error{Message: msg, cause: err}
	}
	g.logger.Debug("generation done", zap.Int("blocks", len(blocks)), zap.Duration("elapsed", elapsed))
	return strings.TrimSpace(answer), nil
}

// ErrorDetail returns the provider cause of a generation error, or the error text otherwise.
func ErrorDetail(err error) string {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr.Detail()
	}
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
