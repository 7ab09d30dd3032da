package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

const (
	defaultOpenAIModel   = "gpt-4o-mini"
	defaultCerebrasBase  = "https://api.cerebras.ai/v1"
	defaultCerebrasModel = "llama-3.3-70b"
)

// chatClient talks to any OpenAI-compatible chat completions endpoint.
type chatClient struct {
	name   string
	model  string
	client *openai.Client
}

// OpenAIClient uses the OpenAI chat completions API with json_schema output.
type OpenAIClient struct {
	chatClient
}

// CerebrasClient uses the Cerebras inference API, which is OpenAI-compatible.
type CerebrasClient struct {
	chatClient
}

// OpenAIConfig configures the OpenAI and Cerebras clients.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	Organization string
	HTTPClient   *http.Client
}

// CerebrasConfig configures the Cerebras client.
type CerebrasConfig = OpenAIConfig

// NewOpenAI creates an OpenAI provider.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	return &OpenAIClient{newChatClient("openai", cfg)}, nil
}

// NewCerebras creates a Cerebras provider.
func NewCerebras(cfg CerebrasConfig) (*CerebrasClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("cerebras: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultCerebrasBase
	}
	if cfg.Model == "" {
		cfg.Model = defaultCerebrasModel
	}
	return &CerebrasClient{newChatClient("cerebras", cfg)}, nil
}

func newChatClient(name string, cfg OpenAIConfig) chatClient {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")+"/"))
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithHeader("OpenAI-Organization", cfg.Organization))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)
	return chatClient{name: name, model: cfg.Model, client: &client}
}

// Complete implements Provider.
func (c *chatClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	completion, err := c.client.Chat.Completions.New(ctx, c.buildParams(req))
	if err != nil {
		return nil, Classify(c.name, fmt.Errorf("%s chat completion: %w", c.name, err))
	}
	if len(completion.Choices) == 0 {
		return nil, Classify(c.name, fmt.Errorf("%s: no choices: %w", c.name, ErrMalformedResponse))
	}
	choice := completion.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, Classify(c.name, &StatusError{StatusCode: http.StatusUnprocessableEntity, Body: choice.Message.Refusal})
	}
	if choice.FinishReason == "content_filter" {
		return nil, Classify(c.name, &StatusError{StatusCode: http.StatusUnprocessableEntity, Body: "completion blocked by content filter"})
	}
	return &CompletionResponse{
		Content:      choice.Message.Content,
		Model:        completion.Model,
		FinishReason: string(choice.FinishReason),
		Usage: TokenUsage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
		Metadata: req.Metadata,
	}, nil
}

func (c *chatClient) buildParams(req CompletionRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = c.model
	}
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if len(req.StopTokens) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopTokens}
	}
	if len(req.Shape) > 0 {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   schemaName(req),
					Schema: req.Shape.JSONSchema(),
				},
			},
		}
	}
	return params
}

// GetModelInfo implements Provider.
func (c *chatClient) GetModelInfo(model string) (*ModelInfo, error) {
	if model == "" {
		model = c.model
	}
	info := &ModelInfo{ID: model, Provider: c.name, StructuredOutput: true}
	switch {
	case strings.HasPrefix(model, "gpt-4o"), strings.HasPrefix(model, "gpt-4.1"), strings.HasPrefix(model, "gpt-5"):
		info.ContextSize = 128000
	case strings.HasPrefix(model, "llama"):
		info.ContextSize = 65536
	default:
		info.ContextSize = 8192
	}
	return info, nil
}
