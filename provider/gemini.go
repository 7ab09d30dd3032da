package provider

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/klejdi94/quill/core"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient uses the Gemini API through the genai SDK with a native
// response schema.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// GeminiConfig configures the Gemini client.
type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model}, nil
}

// Complete implements Provider.
func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), geminiConfig(req))
	if err != nil {
		return nil, Classify("gemini", fmt.Errorf("gemini generate: %w", err))
	}
	if reason := blockReason(resp); reason != "" {
		return nil, Classify("gemini", &StatusError{StatusCode: http.StatusUnprocessableEntity, Body: reason})
	}
	if len(resp.Candidates) == 0 {
		return nil, Classify("gemini", fmt.Errorf("gemini: no candidates: %w", ErrMalformedResponse))
	}
	out := &CompletionResponse{
		Content:      resp.Text(),
		Model:        model,
		FinishReason: string(resp.Candidates[0].FinishReason),
		Metadata:     req.Metadata,
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

// blockReason reports why the prompt or the first candidate was blocked by a
// content policy, or "" when it was not.
func blockReason(resp *genai.GenerateContentResponse) string {
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		if fb.BlockReasonMessage != "" {
			return fmt.Sprintf("prompt blocked: %s: %s", fb.BlockReason, fb.BlockReasonMessage)
		}
		return fmt.Sprintf("prompt blocked: %s", fb.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return ""
	}
	switch r := resp.Candidates[0].FinishReason; r {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist,
		genai.FinishReasonSPII, genai.FinishReasonRecitation:
		return fmt.Sprintf("candidate blocked: %s", r)
	}
	return ""
}

func geminiConfig(req CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.TopP > 0 {
		cfg.TopP = genai.Ptr(float32(req.TopP))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(req.StopTokens) > 0 {
		cfg.StopSequences = req.StopTokens
	}
	if len(req.Shape) > 0 {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = geminiSchema(req.Shape)
	}
	return cfg
}

// geminiSchema converts an output shape into the genai schema type.
func geminiSchema(shape core.Shape) *genai.Schema {
	s := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(shape)),
	}
	for _, f := range shape {
		var fs *genai.Schema
		switch f.Kind {
		case core.KindStringArray:
			fs = &genai.Schema{Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}}
		case core.KindObject:
			fs = geminiSchema(core.Shape(f.Fields))
		default:
			fs = &genai.Schema{Type: genai.TypeString}
		}
		fs.Description = f.Description
		s.Properties[f.Name] = fs
		s.PropertyOrdering = append(s.PropertyOrdering, f.Name)
		if !f.Optional {
			s.Required = append(s.Required, f.Name)
		}
	}
	return s
}

// GetModelInfo implements Provider.
func (c *GeminiClient) GetModelInfo(model string) (*ModelInfo, error) {
	if model == "" {
		model = c.model
	}
	return &ModelInfo{ID: model, Provider: "gemini", ContextSize: 1048576, StructuredOutput: true}, nil
}
