package domain

import "strings"

// Emotion is one of the canonical emotion categories the service reports.
type Emotion string

const (
	EmotionJoy      Emotion = "joy"
	EmotionLove     Emotion = "love"
	EmotionSadness  Emotion = "sadness"
	EmotionAnger    Emotion = "anger"
	EmotionFear     Emotion = "fear"
	EmotionNeutral  Emotion = "neutral"
	EmotionSurprise Emotion = "surprise"
	EmotionDisgust  Emotion = "disgust"
)

var allEmotions = []Emotion{
	EmotionJoy,
	EmotionLove,
	EmotionSadness,
	EmotionAnger,
	EmotionFear,
	EmotionNeutral,
	EmotionSurprise,
	EmotionDisgust,
}

// labelTable maps lowercased classifier labels to canonical emotions.
var labelTable = map[string]Emotion{
	"joy":       EmotionJoy,
	"happiness": EmotionJoy,
	"love":      EmotionLove,
	"sadness":   EmotionSadness,
	"anger":     EmotionAnger,
	"fear":      EmotionFear,
	"anxiety":   EmotionFear,
	"neutral":   EmotionNeutral,
	"surprise":  EmotionSurprise,
	"disgust":   EmotionDisgust,
}

// AllEmotions returns the closed set of canonical emotions in a stable order.
func AllEmotions() []Emotion {
	out := make([]Emotion, len(allEmotions))
	copy(out, allEmotions)
	return out
}

// Valid reports whether e belongs to the canonical set.
func (e Emotion) Valid() bool {
	for _, known := range allEmotions {
		if e == known {
			return true
		}
	}
	return false
}

// String returns the emotion label.
func (e Emotion) String() string {
	return string(e)
}

// MapLabel maps a raw classifier label to its canonical emotion.
// Unknown labels map to EmotionNeutral.
func MapLabel(raw string) Emotion {
	if e, ok := labelTable[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return e
	}
	return EmotionNeutral
}
