// Package echo provides a deterministic offline provider used when no
// OpenAI API key is configured. It implements domain.CompletionProvider
// without external calls: it answers every request with a canned chart
// suggestion payload and word-count token usage, which is enough to
// exercise the quota and cost-metering paths in development.
package echo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adaptiva/adaptiva-api/internal/domain"
	"github.com/adaptiva/adaptiva-api/internal/observability"
)

const providerName = "echo"

const cannedSuggestion = `{
  "spec": {"chart_type": "bar", "x_axis": "category", "y_axis": "value", "aggregate": "sum"},
  "explanation": "Offline development response; configure OPENAI_API_KEY for real suggestions.",
  "confidence": 0.1,
  "alternatives": ["line", "scatter"]
}`

// Provider implements domain.CompletionProvider for offline use.
type Provider struct {
	name string
}

// NewProvider creates a new echo provider. No configuration is required
// as this provider operates entirely in-memory.
func NewProvider() *Provider {
	return &Provider{name: providerName}
}

// Complete returns the canned response with deterministic token counts.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	if req == nil {
		return nil, errors.New("request cannot be nil")
	}

	logger := observability.FromContext(ctx)
	logger.Debug("echoing request")

	promptTokens := countTokens(req.Messages)
	completionTokens := len(strings.Fields(cannedSuggestion))

	return &domain.CompletionResponse{
		ID:       fmt.Sprintf("echo-%d", time.Now().UnixNano()),
		Model:    req.Model,
		Provider: p.name,
		Content:  cannedSuggestion,
		Usage: domain.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
		FinishTime: time.Now(),
	}, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// countTokens performs simple word-based token counting.
func countTokens(messages []domain.Message) int {
	total := 0
	for _, msg := range messages {
		total += len(strings.Fields(msg.Content))
	}
	return total
}
