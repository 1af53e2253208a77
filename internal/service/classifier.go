package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	hfInferenceBaseURL     = "https://api-inference.huggingface.co/models"
	defaultClassifyTimeout = 30 * time.Second
)

// LabelScore is one entry of a classifier's ranked output.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier maps text to raw labels with scores.
type Classifier interface {
	Classify(ctx context.Context, text string) ([]LabelScore, error)
}

var errUnusableClassification = errors.New("classifier returned no usable label")

// BestLabel picks the highest-scoring label; the first wins ties.
// Scores must be finite and within [0, 1].
func BestLabel(scores []LabelScore) (LabelScore, error) {
	if len(scores) == 0 {
		return LabelScore{}, errUnusableClassification
	}
	best := -1
	for i, s := range scores {
		if math.IsNaN(s.Score) || s.Score < 0 || s.Score > 1 {
			return LabelScore{}, fmt.Errorf("%w: score %v for %q", errUnusableClassification, s.Score, s.Label)
		}
		if strings.TrimSpace(s.Label) == "" {
			return LabelScore{}, fmt.Errorf("%w: empty label", errUnusableClassification)
		}
		if best < 0 || s.Score > scores[best].Score {
			best = i
		}
	}
	return scores[best], nil
}

// HFClassifier calls a Hugging Face text-classification model over the Inference API.
type HFClassifier struct {
	client   *resty.Client
	model    string
	endpoint string
}

// HFClassifierConfig holds configuration for the Hugging Face classifier.
type HFClassifierConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// NewHFClassifier creates a new classifier client.
// Parameters:
//   - cfg: model id, token and optional base URL override.
//
// Returns:
//   - *HFClassifier: initialized classifier.
func NewHFClassifier(cfg *HFClassifierConfig) *HFClassifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultClassifyTimeout
	}

	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = hfInferenceBaseURL
	}

	return &HFClassifier{
		client:   client,
		model:    cfg.Model,
		endpoint: strings.TrimSuffix(baseURL, "/") + "/" + cfg.Model,
	}
}

// GetModel returns the model name being used.
func (c *HFClassifier) GetModel() string {
	return c.model
}

type hfRequest struct {
	Inputs     string          `json:"inputs"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Options    map[string]bool `json:"options,omitempty"`
}

type hfError struct {
	Error string `json:"error"`
}

// Classify returns every label with its score.
func (c *HFClassifier) Classify(ctx context.Context, text string) ([]LabelScore, error) {
	req := hfRequest{
		Inputs:     text,
		Parameters: map[string]any{"top_k": nil},
		Options:    map[string]bool{"wait_for_model": true},
	}

	var apiErr hfError
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetError(&apiErr).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call classifier API: %w", err)
	}
	if resp.StatusCode() != 200 {
		if apiErr.Error != "" {
			return nil, fmt.Errorf("classifier API error: %s", apiErr.Error)
		}
		return nil, fmt.Errorf("classifier API error: status %d", resp.StatusCode())
	}

	return parseHFScores(resp.Body())
}

// parseHFScores accepts both the flat [{label,score}] and the batched
// [[{label,score}]] response shapes.
func parseHFScores(body []byte) ([]LabelScore, error) {
	var nested [][]LabelScore
	if err := json.Unmarshal(body, &nested); err == nil {
		if len(nested) == 0 {
			return []LabelScore{}, nil
		}
		return nested[0], nil
	}

	var flat []LabelScore
	if err := json.Unmarshal(body, &flat); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}
	return flat, nil
}
