package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/timmy/emosense/internal/domain"
	"gorm.io/gorm"
)

// AnalysisRepository is the append-only result store.
type AnalysisRepository struct {
	db *gorm.DB
}

// NewAnalysisRepository creates a new AnalysisRepository.
// Parameters:
//   - db: GORM database handle used for queries.
//
// Returns:
//   - *AnalysisRepository: repository instance bound to db.
func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// Create appends one analysis result. ID is assigned by the store.
func (r *AnalysisRepository) Create(ctx context.Context, result *domain.AnalysisResult) error {
	if err := r.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// Count returns the number of stored results.
func (r *AnalysisRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.AnalysisResult{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

type emotionCount struct {
	PredictedEmotion domain.Emotion
	Count            int64
}

// CountByEmotion groups stored results by predicted emotion.
// Emotions with no results are absent from the map.
func (r *AnalysisRepository) CountByEmotion(ctx context.Context) (map[domain.Emotion]int64, error) {
	var rows []emotionCount
	if err := r.db.WithContext(ctx).
		Model(&domain.AnalysisResult{}).
		Select("predicted_emotion, COUNT(*) AS count").
		Group("predicted_emotion").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count analyses by emotion: %w", err)
	}

	counts := make(map[domain.Emotion]int64, len(rows))
	for _, row := range rows {
		counts[row.PredictedEmotion] = row.Count
	}
	return counts, nil
}

// AverageConfidence returns the mean confidence over all results, 0 when empty.
func (r *AnalysisRepository) AverageConfidence(ctx context.Context) (float64, error) {
	var avg sql.NullFloat64
	if err := r.db.WithContext(ctx).
		Model(&domain.AnalysisResult{}).
		Select("AVG(confidence)").
		Scan(&avg).Error; err != nil {
		return 0, fmt.Errorf("failed to average confidence: %w", err)
	}
	if !avg.Valid {
		return 0, nil
	}
	return avg.Float64, nil
}

// Latest returns up to limit results, newest first. Equal timestamps fall back
// to insertion order, newest first.
func (r *AnalysisRepository) Latest(ctx context.Context, limit int) ([]domain.AnalysisResult, error) {
	var results []domain.AnalysisResult
	if err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to list latest analyses: %w", err)
	}
	return results, nil
}

// GetByAnalysisID retrieves a single result by its public ID. An unknown ID
// yields domain.ErrAnalysisNotFound.
func (r *AnalysisRepository) GetByAnalysisID(ctx context.Context, analysisID string) (*domain.AnalysisResult, error) {
	var result domain.AnalysisResult
	err := r.db.WithContext(ctx).First(&result, "analysis_id = ?", analysisID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAnalysisNotFound, analysisID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis %s: %w", analysisID, err)
	}
	return &result, nil
}
