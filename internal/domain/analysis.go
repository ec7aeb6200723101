package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/adaptiva/adaptiva-api/internal/observability"
)

// ErrBadAIResponse indicates the provider returned content that could
// not be parsed into the expected shape.
var ErrBadAIResponse = errors.New("provider returned an unparseable response")

// ErrInvalidRequest indicates the caller's request failed validation.
var ErrInvalidRequest = errors.New("invalid request")

// CostLimitError carries the pre-flight denial detail for the 429 body.
type CostLimitError struct {
	Verdict CostVerdict
}

func (e *CostLimitError) Error() string {
	return e.Verdict.Message
}

// ColumnSchema describes one column of the caller's dataset.
type ColumnSchema struct {
	Name string `json:"name"`
	Type string `json:"type"` // numeric, categorical, datetime, text
}

// SuggestRequest asks for an AI-generated chart suggestion.
type SuggestRequest struct {
	Columns     []ColumnSchema `json:"columns"`
	SampleRows  [][]string     `json:"sample_rows,omitempty"`
	Instruction string         `json:"instruction,omitempty"`
}

// SuggestResponse is the AI chart suggestion with its token usage.
type SuggestResponse struct {
	SuggestedSpec json.RawMessage `json:"suggested_spec"`
	Explanation   string          `json:"explanation"`
	Confidence    float64         `json:"confidence"`
	Alternatives  []string        `json:"alternatives,omitempty"`
	Usage         Usage           `json:"usage"`
}

// InsightsRequest asks for an AI-generated narrative about a dataset.
type InsightsRequest struct {
	Columns     []ColumnSchema `json:"columns"`
	SampleRows  [][]string     `json:"sample_rows,omitempty"`
	Instruction string         `json:"instruction,omitempty"`
}

// InsightsResponse is the AI narrative with its token usage.
type InsightsResponse struct {
	Insights string `json:"insights"`
	Usage    Usage  `json:"usage"`
}

// aiSuggestPayload is the JSON shape the model is asked to produce.
type aiSuggestPayload struct {
	Spec         json.RawMessage `json:"spec"`
	Explanation  string          `json:"explanation"`
	Confidence   float64         `json:"confidence"`
	Alternatives []string        `json:"alternatives"`
}

// AnalysisService is the glue over the AI collaborator for the guarded
// endpoints. It owns the cost-metering track: a token-count estimate
// gates the call, and the provider's real usage is recorded afterwards.
type AnalysisService struct {
	provider             CompletionProvider
	counter              TokenCounter
	meter                *CostMeter
	model                string
	estimateOutputTokens int
}

// NewAnalysisService creates the service over a provider and meter.
func NewAnalysisService(
	provider CompletionProvider,
	counter TokenCounter,
	meter *CostMeter,
	model string,
	estimateOutputTokens int,
) *AnalysisService {
	return &AnalysisService{
		provider:             provider,
		counter:              counter,
		meter:                meter,
		model:                model,
		estimateOutputTokens: estimateOutputTokens,
	}
}

// SuggestChart asks the provider for a chart spec matching the dataset
// schema and instruction. Returns *CostLimitError when the caller's
// daily cost budget cannot cover the estimated call.
func (s *AnalysisService) SuggestChart(
	ctx context.Context,
	ip string,
	req *SuggestRequest,
) (*SuggestResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}
	if len(req.Columns) == 0 {
		return nil, fmt.Errorf("%w: at least one column is required", ErrInvalidRequest)
	}

	prompt := buildSuggestPrompt(req)

	response, err := s.complete(ctx, ip, suggestSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	var payload aiSuggestPayload
	if err := json.Unmarshal([]byte(extractJSON(response.Content)), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadAIResponse, err)
	}

	return &SuggestResponse{
		SuggestedSpec: payload.Spec,
		Explanation:   payload.Explanation,
		Confidence:    payload.Confidence,
		Alternatives:  payload.Alternatives,
		Usage:         response.Usage,
	}, nil
}

// Insights asks the provider for a narrative summary of the dataset.
func (s *AnalysisService) Insights(
	ctx context.Context,
	ip string,
	req *InsightsRequest,
) (*InsightsResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request cannot be nil", ErrInvalidRequest)
	}
	if len(req.Columns) == 0 {
		return nil, fmt.Errorf("%w: at least one column is required", ErrInvalidRequest)
	}

	prompt := buildInsightsPrompt(req)

	response, err := s.complete(ctx, ip, insightsSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	return &InsightsResponse{
		Insights: response.Content,
		Usage:    response.Usage,
	}, nil
}

// complete runs the estimate/true-up cycle around one provider call.
// No meter lock is held while the provider call is in flight.
func (s *AnalysisService) complete(
	ctx context.Context,
	ip, system, prompt string,
) (*CompletionResponse, error) {
	logger := observability.FromContext(ctx)

	inputTokens := s.counter.Count(system + prompt)
	estimated := s.meter.EstimateCents(s.model, inputTokens, s.estimateOutputTokens)

	verdict := s.meter.Check(ip, estimated)
	if !verdict.Allowed {
		logger.Info("cost pre-flight denied",
			observability.Float64("estimated_cents", estimated),
			observability.Float64("used_cents", verdict.UsedCents),
		)
		return nil, &CostLimitError{Verdict: verdict}
	}

	ctx = observability.WithModel(ctx, s.model)
	response, err := s.provider.Complete(ctx, &CompletionRequest{
		Model: s.model,
		Messages: []Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		// A failed call records nothing; the estimate was never spend.
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	charged := s.meter.Record(ip, response.Model, response.Usage.PromptTokens, response.Usage.CompletionTokens)
	logger.Info("metered AI call completed",
		observability.Int("prompt_tokens", response.Usage.PromptTokens),
		observability.Int("completion_tokens", response.Usage.CompletionTokens),
		observability.Float64("cost_cents", charged),
	)

	return response, nil
}

const suggestSystemPrompt = `You are a data visualization assistant. ` +
	`Given a dataset schema and an optional instruction, respond with JSON only: ` +
	`{"spec": {chart spec}, "explanation": string, "confidence": number 0-1, "alternatives": [chart types]}. ` +
	`The spec has fields chart_type, x_axis, y_axis, aggregate.`

const insightsSystemPrompt = `You are a data analyst. ` +
	`Given a dataset schema and sample rows, describe the most important patterns, ` +
	`outliers and data quality issues in concise markdown.`

func buildSuggestPrompt(req *SuggestRequest) string {
	var b strings.Builder
	writeSchema(&b, req.Columns, req.SampleRows)
	if req.Instruction != "" {
		b.WriteString("Instruction: ")
		b.WriteString(req.Instruction)
		b.WriteString("\n")
	}
	return b.String()
}

func buildInsightsPrompt(req *InsightsRequest) string {
	var b strings.Builder
	writeSchema(&b, req.Columns, req.SampleRows)
	if req.Instruction != "" {
		b.WriteString("Focus: ")
		b.WriteString(req.Instruction)
		b.WriteString("\n")
	}
	return b.String()
}

func writeSchema(b *strings.Builder, columns []ColumnSchema, rows [][]string) {
	b.WriteString("Columns:\n")
	for _, col := range columns {
		fmt.Fprintf(b, "- %s (%s)\n", col.Name, col.Type)
	}
	if len(rows) > 0 {
		b.WriteString("Sample rows:\n")
		for _, row := range rows {
			fmt.Fprintf(b, "%s\n", strings.Join(row, ", "))
		}
	}
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}
