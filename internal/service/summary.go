package service

import (
	"context"
	"time"

	"github.com/timmy/emosense/internal/domain"
	"github.com/timmy/emosense/internal/logger"
)

const lastAnalysesLimit = 5

// SummaryStore is the read side of the result store.
type SummaryStore interface {
	Count(ctx context.Context) (int64, error)
	CountByEmotion(ctx context.Context) (map[domain.Emotion]int64, error)
	AverageConfidence(ctx context.Context) (float64, error)
	Latest(ctx context.Context, limit int) ([]domain.AnalysisResult, error)
}

// SummaryService aggregates stored analyses on demand.
type SummaryService struct {
	store   SummaryStore
	pool    *Pool
	timeout time.Duration
}

// NewSummaryService creates a new summary service. Each store query runs in a
// pool slot bounded by timeout.
func NewSummaryService(store SummaryStore, pool *Pool, timeout time.Duration) *SummaryService {
	if pool == nil {
		pool = NewPool(4)
	}
	return &SummaryService{store: store, pool: pool, timeout: timeout}
}

// Summary computes every statistic independently. A failed query is logged and
// leaves that statistic at its zero value; Summary itself never fails.
func (s *SummaryService) Summary(ctx context.Context) *domain.SummaryStatistics {
	ctx = logger.SetComponent(ctx, "summary")
	out := domain.EmptySummary()

	total, err := Call(ctx, s.pool, s.timeout, s.store.Count)
	if err != nil {
		s.warn(ctx, "total_texts", err)
	} else {
		out.TotalTexts = total
	}

	// Percentages are relative to total_texts; without a total they stay at 0.
	if out.TotalTexts > 0 {
		counts, err := Call(ctx, s.pool, s.timeout, s.store.CountByEmotion)
		if err != nil {
			s.warn(ctx, "emotion_distribution", err)
		} else {
			for emotion, pct := range distribution(counts, out.TotalTexts) {
				out.EmotionDistribution[emotion] = pct
			}
		}
	}

	avg, err := Call(ctx, s.pool, s.timeout, s.store.AverageConfidence)
	if err != nil {
		s.warn(ctx, "avg_confidence", err)
	} else {
		out.AvgConfidence = avg
	}

	latest, err := Call(ctx, s.pool, s.timeout, func(ctx context.Context) ([]domain.AnalysisResult, error) {
		return s.store.Latest(ctx, lastAnalysesLimit)
	})
	if err != nil {
		s.warn(ctx, "last_5_analyses", err)
	} else {
		for i := range latest {
			out.Last5 = append(out.Last5, latest[i].Digest())
		}
	}

	return out
}

// distribution turns grouped counts into percentages of total.
func distribution(counts map[domain.Emotion]int64, total int64) map[domain.Emotion]float64 {
	pct := make(map[domain.Emotion]float64, len(counts))
	if total <= 0 {
		return pct
	}
	for emotion, c := range counts {
		pct[emotion] = float64(c) / float64(total) * 100
	}
	return pct
}

func (s *SummaryService) warn(ctx context.Context, statistic string, err error) {
	logger.With(logger.Fields{
		"statistic":        statistic,
		logger.FieldStatus: string(StageDegraded),
	}).WithError(err).Warn(ctx, "Summary statistic degraded")
}
