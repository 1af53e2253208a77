package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	jinaEndpoint         = "https://api.jina.ai/v1/embeddings"
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	jinaTextMatchingTask = "text-matching"
	defaultEmbedTimeout  = 30 * time.Second
	providerOpenAICompat = "openai-compatible"
)

// EmbeddingService handles text embedding generation over the Jina or
// OpenAI-compatible embeddings API. Both request and response shapes match.
type EmbeddingService struct {
	client     *resty.Client
	provider   string
	endpoint   string
	model      string
	dimensions int
}

// EmbeddingConfig holds configuration for embedding service
type EmbeddingConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
	Timeout    time.Duration
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(cfg *EmbeddingConfig) *EmbeddingService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultEmbedTimeout
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	endpoint := jinaEndpoint
	switch {
	case cfg.BaseURL != "":
		endpoint = strings.TrimSuffix(cfg.BaseURL, "/") + "/embeddings"
	case cfg.Provider == providerOpenAICompat:
		endpoint = openAIDefaultBaseURL + "/embeddings"
	}

	return &EmbeddingService{
		client:     client,
		provider:   cfg.Provider,
		endpoint:   endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// GetModel returns the model name being used
func (s *EmbeddingService) GetModel() string {
	return s.model
}

// GetDimensions returns the configured vector size.
func (s *EmbeddingService) GetDimensions() int {
	return s.dimensions
}

// CheckDimensions fails when an index of dim-sized vectors cannot be queried
// with this service's embeddings.
func (s *EmbeddingService) CheckDimensions(dim int) error {
	if dim != s.GetDimensions() {
		return fmt.Errorf("index holds %d-dimensional vectors but %s produces %d", dim, s.GetModel(), s.GetDimensions())
	}
	return nil
}

type embeddingRequest struct {
	Model          string   `json:"model"`
	Task           string   `json:"task,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
	Input          []string `json:"input"`
	EmbeddingType  string   `json:"embedding_type,omitempty"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
	Detail string `json:"detail,omitempty"`
	Error  *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed generates an embedding for a single text
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts, in input order.
// Index examples and queries share one task so their vectors are comparable.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := embeddingRequest{
		Model:      s.model,
		Dimensions: s.dimensions,
		Input:      texts,
	}
	if s.provider == providerOpenAICompat {
		req.EncodingFormat = "float"
	} else {
		req.Task = jinaTextMatchingTask
		req.EmbeddingType = "float"
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding API: %w", err)
	}

	if httpResp.StatusCode() != 200 {
		switch {
		case resp.Detail != "":
			return nil, fmt.Errorf("embedding API error: %s", resp.Detail)
		case resp.Error != nil && resp.Error.Message != "":
			return nil, fmt.Errorf("embedding API error: %s", resp.Error.Message)
		}
		return nil, fmt.Errorf("embedding API error: status %d", httpResp.StatusCode())
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("unexpected number of embeddings: got %d, expected %d", len(resp.Data), len(texts))
	}

	// Order by index; providers may return items out of order
	embeddings := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(embeddings) || embeddings[item.Index] != nil {
			return nil, fmt.Errorf("embedding API returned invalid index %d", item.Index)
		}
		if s.dimensions > 0 && len(item.Embedding) != s.dimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, expected %d", item.Index, len(item.Embedding), s.dimensions)
		}
		embeddings[item.Index] = item.Embedding
	}

	return embeddings, nil
}
