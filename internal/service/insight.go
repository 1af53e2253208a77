package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/timmy/emosense/internal/prompts"
)

const (
	geminiBaseURL          = "https://generativelanguage.googleapis.com/v1beta"
	defaultInsightTimeout  = 60 * time.Second
	insightMaxOutputTokens = 256
)

// InsightGenerator turns a prompt into a short free-text insight.
type InsightGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// InsightConfig holds configuration for an insight generator.
type InsightConfig struct {
	Provider string
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewInsightGenerator creates the generator for cfg.Provider ("gemini" or "openai").
func NewInsightGenerator(cfg *InsightConfig) (InsightGenerator, error) {
	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiInsightGenerator(cfg), nil
	case "openai":
		return NewOpenAIInsightGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown insight provider %q", cfg.Provider)
	}
}

// GeminiInsightGenerator calls the Gemini generateContent REST API.
type GeminiInsightGenerator struct {
	client   *resty.Client
	model    string
	endpoint string
}

// NewGeminiInsightGenerator creates a Gemini-backed generator.
func NewGeminiInsightGenerator(cfg *InsightConfig) *GeminiInsightGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInsightTimeout
	}

	client := resty.New()
	client.SetHeader("x-goog-api-key", cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = geminiBaseURL
	}

	return &GeminiInsightGenerator{
		client:   client,
		model:    cfg.Model,
		endpoint: fmt.Sprintf("%s/models/%s:generateContent", strings.TrimSuffix(baseURL, "/"), cfg.Model),
	}
}

// GetModel returns the model name being used.
func (g *GeminiInsightGenerator) GetModel() string {
	return g.model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
	GenerationConfig  struct {
		MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate returns the model's text for prompt.
func (g *GeminiInsightGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := geminiRequest{
		SystemInstruction: &geminiContent{Parts: []geminiPart{{Text: prompts.InsightSystemPrompt}}},
		Contents:          []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}},
	}
	req.GenerationConfig.MaxOutputTokens = insightMaxOutputTokens

	var resp geminiResponse
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(g.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call Gemini API: %w", err)
	}
	if httpResp.StatusCode() != 200 {
		if resp.Error != nil && resp.Error.Message != "" {
			return "", fmt.Errorf("Gemini API error: %s", resp.Error.Message)
		}
		return "", fmt.Errorf("Gemini API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Candidates) == 0 {
		return "", errors.New("Gemini API returned no candidates")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

// OpenAIInsightGenerator calls the OpenAI Responses API through the official SDK.
type OpenAIInsightGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIInsightGenerator creates an OpenAI-backed generator.
func NewOpenAIInsightGenerator(cfg *InsightConfig) *OpenAIInsightGenerator {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultInsightTimeout
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIInsightGenerator{client: &client, model: cfg.Model}
}

// GetModel returns the model name being used.
func (g *OpenAIInsightGenerator) GetModel() string {
	return g.model
}

// Generate returns the model's text for prompt.
func (g *OpenAIInsightGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	params := responses.ResponseNewParams{
		Model:           g.model,
		MaxOutputTokens: openai.Int(insightMaxOutputTokens),
		Instructions:    openai.String(prompts.InsightSystemPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(prompt, responses.EasyInputMessageRoleUser),
			},
		},
	}

	resp, err := g.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to call OpenAI API: %w", err)
	}
	return strings.TrimSpace(resp.OutputText()), nil
}
