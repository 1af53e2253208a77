package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/emosense/internal/api/middleware"
	"github.com/timmy/emosense/internal/domain"
	"github.com/timmy/emosense/internal/service"
)

// Analyzer runs the analysis pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*service.AnalysisOutcome, error)
}

// Summarizer computes summary statistics.
type Summarizer interface {
	Summary(ctx context.Context) *domain.SummaryStatistics
}

// ResultFinder looks up a stored analysis by its public ID.
type ResultFinder interface {
	GetByAnalysisID(ctx context.Context, analysisID string) (*domain.AnalysisResult, error)
}

// AnalysisHandler handles analysis and summary endpoints.
type AnalysisHandler struct {
	analyzer   Analyzer
	summarizer Summarizer
	results    ResultFinder
}

// NewAnalysisHandler creates a new analysis handler.
// Parameters:
//   - analyzer: pipeline used by POST /analyze.
//   - summarizer: aggregation used by GET /summary.
//   - results: store used by GET /analyses/:id.
//
// Returns:
//   - *AnalysisHandler: initialized handler.
func NewAnalysisHandler(analyzer Analyzer, summarizer Summarizer, results ResultFinder) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, summarizer: summarizer, results: results}
}

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	Text string `json:"text"`
}

// AnalyzeResponse is the body returned by POST /api/v1/analyze.
type AnalyzeResponse struct {
	Emotion    domain.Emotion            `json:"emotion"`
	Confidence float64                   `json:"confidence"`
	Examples   []domain.RetrievedExample `json:"examples"`
	Insight    string                    `json:"insight"`
}

// Analyze handles POST /api/v1/analyze.
func (h *AnalysisHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	outcome, err := h.analyzer.Analyze(c.Request.Context(), req.Text)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidInput):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Text cannot be empty"})
		case errors.Is(err, service.ErrClassification):
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to classify text"})
		default:
			middleware.GetLogger(c).WithError(err).Error("Unexpected analysis failure")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
		}
		return
	}

	result := outcome.Result
	examples := []domain.RetrievedExample(result.Examples)
	if examples == nil {
		examples = []domain.RetrievedExample{}
	}

	c.Header("X-Analysis-ID", result.AnalysisID)
	c.JSON(http.StatusOK, AnalyzeResponse{
		Emotion:    result.PredictedEmotion,
		Confidence: result.Confidence,
		Examples:   examples,
		Insight:    result.Insight,
	})
}

// Summary handles GET /api/v1/summary.
func (h *AnalysisHandler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.summarizer.Summary(c.Request.Context()))
}

// GetAnalysis handles GET /api/v1/analyses/:id, returning a stored result by
// the ID sent in the X-Analysis-ID header of POST /analyze.
func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	result, err := h.results.GetByAnalysisID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, domain.ErrAnalysisNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
			return
		}
		middleware.GetLogger(c).WithError(err).Error("Failed to load analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analysis"})
		return
	}
	c.JSON(http.StatusOK, result)
}
