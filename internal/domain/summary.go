package domain

import "time"

// AnalysisDigest is the short form of an AnalysisResult listed in summaries.
type AnalysisDigest struct {
	Text             string    `json:"text"`
	PredictedEmotion Emotion   `json:"predicted_emotion"`
	Confidence       float64   `json:"confidence"`
	Timestamp        time.Time `json:"timestamp"`
}

// SummaryStatistics is a view computed on demand over all stored results.
type SummaryStatistics struct {
	TotalTexts          int64               `json:"total_texts"`
	EmotionDistribution map[Emotion]float64 `json:"emotion_distribution"`
	AvgConfidence       float64             `json:"avg_confidence"`
	Last5               []AnalysisDigest    `json:"last_5_analyses"`
}

// EmptySummary returns the zero-valued summary: every canonical emotion at 0%.
func EmptySummary() *SummaryStatistics {
	dist := make(map[Emotion]float64, len(allEmotions))
	for _, e := range allEmotions {
		dist[e] = 0
	}
	return &SummaryStatistics{
		EmotionDistribution: dist,
		Last5:               []AnalysisDigest{},
	}
}

// Digest returns the summary form of r.
func (r *AnalysisResult) Digest() AnalysisDigest {
	return AnalysisDigest{
		Text:             r.Text,
		PredictedEmotion: r.PredictedEmotion,
		Confidence:       r.Confidence,
		Timestamp:        r.Timestamp,
	}
}
