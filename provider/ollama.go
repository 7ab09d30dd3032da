package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultOllamaBase  = "http://localhost:11434"
	defaultOllamaModel = "llama3.2"
)

// OllamaConfig configures the Ollama client.
type OllamaConfig struct {
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// OllamaClient calls a local Ollama server's /api/chat endpoint without
// streaming. The output shape is sent as the "format" JSON schema.
type OllamaClient struct {
	endpoint string
	model    string
	http     *http.Client
}

// NewOllama creates an Ollama provider; no API key is needed.
func NewOllama(cfg OllamaConfig) *OllamaClient {
	c := &OllamaClient{
		endpoint: strings.TrimSuffix(cfg.BaseURL, "/") + "/api/chat",
		model:    cfg.Model,
		http:     cfg.HTTPClient,
	}
	if cfg.BaseURL == "" {
		c.endpoint = defaultOllamaBase + "/api/chat"
	}
	if c.model == "" {
		c.model = defaultOllamaModel
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	return c
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type ollamaReq struct {
	Model    string                 `json:"model"`
	Messages []ollamaMsg            `json:"messages"`
	Stream   bool                   `json:"stream"`
	Format   map[string]interface{} `json:"format,omitempty"`
	Options  *ollamaOptions         `json:"options,omitempty"`
}

// ollamaResp is the final (and only, with stream=false) chat message.
type ollamaResp struct {
	Model   string    `json:"model"`
	Message ollamaMsg `json:"message"`
	Done    bool      `json:"done"`
	Reason  string    `json:"done_reason"`
	Prompt  int       `json:"prompt_eval_count"`
	Eval    int       `json:"eval_count"`
	Error   string    `json:"error"`
}

func (c *OllamaClient) newRequest(req CompletionRequest) ollamaReq {
	body := ollamaReq{Model: req.Model}
	if body.Model == "" {
		body.Model = c.model
	}
	if req.System != "" {
		body.Messages = append(body.Messages, ollamaMsg{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, ollamaMsg{Role: "user", Content: req.Prompt})
	if len(req.Shape) > 0 {
		body.Format = req.Shape.JSONSchema()
	}
	opts := ollamaOptions{Temperature: req.Temperature, TopP: req.TopP, NumPredict: req.MaxTokens, Stop: req.StopTokens}
	if opts.Temperature != 0 || opts.TopP != 0 || opts.NumPredict != 0 || len(opts.Stop) > 0 {
		body.Options = &opts
	}
	return body
}

// Complete implements Provider.
func (c *OllamaClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	body := c.newRequest(req)
	out, err := c.post(ctx, body)
	if err != nil {
		return nil, Classify("ollama", err)
	}
	model := out.Model
	if model == "" {
		model = body.Model
	}
	reason := out.Reason
	if reason == "" {
		reason = "stop"
	}
	return &CompletionResponse{
		Content:      out.Message.Content,
		Model:        model,
		FinishReason: reason,
		Metadata:     req.Metadata,
		Usage: TokenUsage{
			PromptTokens:     out.Prompt,
			CompletionTokens: out.Eval,
			TotalTokens:      out.Prompt + out.Eval,
		},
	}, nil
}

func (c *OllamaClient) post(ctx context.Context, body ollamaReq) (*ollamaResp, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama encode: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	var out ollamaResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama decode: %w", err)
	}
	switch {
	case out.Error != "":
		return nil, &StatusError{StatusCode: http.StatusBadGateway, Body: out.Error}
	case !out.Done:
		return nil, fmt.Errorf("ollama: incomplete response: %w", ErrMalformedResponse)
	}
	return &out, nil
}

// GetModelInfo implements Provider.
func (c *OllamaClient) GetModelInfo(model string) (*ModelInfo, error) {
	if model == "" {
		model = c.model
	}
	return &ModelInfo{ID: model, Provider: "ollama", ContextSize: 8192, StructuredOutput: true}, nil
}
