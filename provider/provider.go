// Package provider defines the completion-service interface and its implementations.
package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/klejdi94/quill/core"
)

// CompletionRequest is the unified request for LLM completion.
type CompletionRequest struct {
	Prompt      string
	System      string
	Model       string
	Temperature float64
	MaxTokens   int
	StopTokens  []string
	TopP        float64
	// Shape is the output structure the service is asked to produce. It is a
	// hint only; responses are validated by the caller.
	Shape      core.Shape
	SchemaName string
	Metadata   map[string]interface{}
}

// CompletionResponse is the unified completion response.
type CompletionResponse struct {
	Content      string
	Model        string
	Usage        TokenUsage
	FinishReason string
	Metadata     map[string]interface{}
}

// TokenUsage reports token counts.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ModelInfo describes an LLM model.
type ModelInfo struct {
	ID          string `json:"id"`
	Provider    string `json:"provider"`
	ContextSize int    `json:"context_size"`
	// StructuredOutput is true when the service enforces the schema hint natively.
	StructuredOutput bool `json:"structured_output"`
}

// Provider is the unified interface for completion services. Implementations
// return *core.ProviderError for every failure and never retry.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	GetModelInfo(model string) (*ModelInfo, error)
}

// Config selects and configures a provider by name.
type Config struct {
	Name        string        `yaml:"name" json:"name"`
	Model       string        `yaml:"model" json:"model"`
	APIKey      string        `yaml:"api_key" json:"-"`
	BaseURL     string        `yaml:"base_url" json:"base_url,omitempty"`
	Temperature float64       `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens,omitempty"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout,omitempty"`
}

// ToRaw converts a provider response into the core completion type.
func ToRaw(resp *CompletionResponse) core.RawCompletion {
	return core.RawCompletion{
		Text:         resp.Content,
		Model:        resp.Model,
		FinishReason: resp.FinishReason,
		Usage: core.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

func schemaName(req CompletionRequest) string {
	if req.SchemaName != "" {
		return req.SchemaName
	}
	return "output"
}

// schemaInstruction is appended to the system prompt for services without
// native structured output.
func schemaInstruction(shape core.Shape) string {
	b, err := json.Marshal(shape.JSONSchema())
	if err != nil {
		return ""
	}
	return "Respond with a single JSON object and nothing else. It must match this JSON Schema:\n" + string(b)
}

func withSchemaInstruction(system string, shape core.Shape) string {
	if len(shape) == 0 {
		return system
	}
	hint := schemaInstruction(shape)
	if system == "" {
		return hint
	}
	return system + "\n\n" + hint
}
