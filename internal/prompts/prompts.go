package prompts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/timmy/emosense/internal/domain"
)

// ============================================================================
// Insight Prompts
// ============================================================================

// InsightSystemPrompt defines the role for insight generation.
const InsightSystemPrompt = `You are an expert in emotional intelligence. You read a short text together with the emotion a classifier predicted for it and write an empathetic reflection.`

// InsightUserPromptTemplate is filled by BuildInsightPrompt.
// Placeholders: text, emotion, confidence, quoted example texts.
const InsightUserPromptTemplate = `Analyze this text and summarize it in 1-2 sentences with empathy.

Text: %s
Predicted Emotion: %s (confidence %s)
Similar Examples: [%s]

Return exactly 1-2 sentences describing the emotion and giving a short reflection.`

// FallbackInsightTemplate is used when the generator fails or returns nothing.
const FallbackInsightTemplate = "The text mainly expresses %s (confidence %s)."

// FormatConfidence renders a confidence with two decimals.
func FormatConfidence(confidence float64) string {
	return strconv.FormatFloat(confidence, 'f', 2, 64)
}

// BuildInsightPrompt renders the user prompt for one analysis.
func BuildInsightPrompt(text string, emotion domain.Emotion, confidence float64, examples []domain.RetrievedExample) string {
	quoted := make([]string, len(examples))
	for i, ex := range examples {
		quoted[i] = strconv.Quote(ex.Text)
	}
	return fmt.Sprintf(InsightUserPromptTemplate,
		text, emotion, FormatConfidence(confidence), strings.Join(quoted, ", "))
}

// FallbackInsight returns the deterministic insight embedding emotion and confidence.
func FallbackInsight(emotion domain.Emotion, confidence float64) string {
	return fmt.Sprintf(FallbackInsightTemplate, emotion, FormatConfidence(confidence))
}
