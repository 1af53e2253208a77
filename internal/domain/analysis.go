package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ErrAnalysisNotFound is returned when no stored result has the requested analysis ID.
var ErrAnalysisNotFound = errors.New("analysis not found")

// RetrievedExample is a reference example returned by nearest-neighbor retrieval.
// Score is the cosine similarity in [-1, 1].
type RetrievedExample struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ExampleList stores retrieved examples as a JSON column.
type ExampleList []RetrievedExample

// Value implements the driver.Valuer interface for database serialization.
func (l ExampleList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (l *ExampleList) Scan(value interface{}) error {
	if value == nil {
		*l = ExampleList{}
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to scan ExampleList")
	}
	return json.Unmarshal(raw, l)
}

// AnalysisResult is the outcome of analyzing one text. It is immutable once persisted.
// ID is store-assigned and increases with insertion order.
type AnalysisResult struct {
	ID               uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	AnalysisID       string      `gorm:"type:text;uniqueIndex:idx_analyses_analysis_id" json:"analysis_id"`
	Text             string      `gorm:"type:text;not null" json:"text"`
	PredictedEmotion Emotion     `gorm:"type:text;not null;index:idx_analyses_emotion" json:"predicted_emotion"`
	Confidence       float64     `gorm:"not null" json:"confidence"`
	Examples         ExampleList `gorm:"type:text" json:"examples"`
	Insight          string      `gorm:"type:text" json:"insight"`
	Timestamp        time.Time   `gorm:"not null;index:idx_analyses_timestamp" json:"timestamp"`
}

// TableName returns the database table name for AnalysisResult.
func (AnalysisResult) TableName() string {
	return "analyses"
}
