package service

import (
	"github.com/timmy/emosense/internal/config"
)

// EmbeddingFromConfig builds the embedding client described by cfg.
func EmbeddingFromConfig(cfg *config.ModelConfig) *EmbeddingService {
	return NewEmbeddingService(&EmbeddingConfig{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Dimensions: cfg.Dimensions,
		Timeout:    cfg.Timeout,
	})
}

// ClassifierFromConfig builds the classifier client described by cfg.
func ClassifierFromConfig(cfg *config.ModelConfig) *HFClassifier {
	return NewHFClassifier(&HFClassifierConfig{
		Model:   cfg.Model,
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
	})
}

// InsightFromConfig builds the insight generator described by cfg.
func InsightFromConfig(cfg *config.ModelConfig) (InsightGenerator, error) {
	return NewInsightGenerator(&InsightConfig{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
	})
}

// AnalysisConfigFrom maps service configuration onto pipeline tuning.
func AnalysisConfigFrom(cfg *config.Config) AnalysisConfig {
	return AnalysisConfig{
		TopK:            cfg.Index.TopK,
		ClassifyTimeout: cfg.Classifier.Timeout,
		RetrieveTimeout: cfg.Embedding.Timeout,
		InsightTimeout:  cfg.Insight.Timeout,
		PersistTimeout:  cfg.Pipeline.PersistTimeout,
	}
}
