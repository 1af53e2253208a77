package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/emosense/internal/api/middleware"
	"github.com/timmy/emosense/internal/domain"
	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/service"
)

type fixedClassifier struct {
	scores []service.LabelScore
	err    error
}

func (c fixedClassifier) Classify(context.Context, string) ([]service.LabelScore, error) {
	return c.scores, c.err
}

type fixedRetriever []domain.RetrievedExample

func (r fixedRetriever) Retrieve(context.Context, string, int) ([]domain.RetrievedExample, error) {
	return r, nil
}

func (r fixedRetriever) Size() int { return 42 }

type failingInsight struct{}

func (failingInsight) Generate(context.Context, string) (string, error) {
	return "", errors.New("gemini unavailable")
}

type discardStore struct{}

func (discardStore) Create(context.Context, *domain.AnalysisResult) error { return nil }

type fixedSummary struct{ stats *domain.SummaryStatistics }

func (s fixedSummary) Summary(context.Context) *domain.SummaryStatistics { return s.stats }

type memResults map[string]*domain.AnalysisResult

func (m memResults) GetByAnalysisID(_ context.Context, id string) (*domain.AnalysisResult, error) {
	if r, ok := m[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrAnalysisNotFound, id)
}

func newTestRouter(classifier service.Classifier) *gin.Engine {
	retriever := fixedRetriever{{Text: "I'm so thrilled!", Label: "joy", Score: 0.9}}
	analysis := service.NewAnalysisService(service.AnalysisDeps{
		Classifier: classifier,
		Retriever:  retriever,
		Insight:    failingInsight{},
		Store:      discardStore{},
		Pool:       service.NewPool(2),
	}, service.AnalysisConfig{TopK: 3}, logger.NewDefault())

	stats := domain.EmptySummary()
	stats.TotalTexts = 1
	stats.EmotionDistribution[domain.EmotionJoy] = 100
	stats.AvgConfidence = 0.95
	stats.Last5 = []domain.AnalysisDigest{{
		Text:             "I just got my dream job!",
		PredictedEmotion: domain.EmotionJoy,
		Confidence:       0.95,
		Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}}

	return SetupRouter(RouterDeps{
		Analyzer:   analysis,
		Summarizer: fixedSummary{stats: stats},
		Index:      retriever,
		Logger:     logger.NewDefault(),
		CORS:       middleware.CORSConfig{AllowAllOrigins: true},
		Results: memResults{"a1": {
			AnalysisID:       "a1",
			Text:             "I just got my dream job!",
			PredictedEmotion: domain.EmotionJoy,
			Confidence:       0.95,
			Timestamp:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		}},
	}, "test")
}

func doRequest(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAnalyzeEndpoint(t *testing.T) {
	r := newTestRouter(fixedClassifier{scores: []service.LabelScore{{Label: "joy", Score: 0.95}}})

	w := doRequest(r, http.MethodPost, "/api/v1/analyze", `{"text":"I just got my dream job!"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		Emotion    string                    `json:"emotion"`
		Confidence float64                   `json:"confidence"`
		Examples   []domain.RetrievedExample `json:"examples"`
		Insight    string                    `json:"insight"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Emotion != "joy" || resp.Confidence != 0.95 {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(resp.Examples) != 1 || resp.Examples[0].Text != "I'm so thrilled!" || resp.Examples[0].Score != 0.9 {
		t.Errorf("unexpected examples %+v", resp.Examples)
	}
	if resp.Insight != "The text mainly expresses joy (confidence 0.95)." {
		t.Errorf("unexpected insight %q", resp.Insight)
	}
	if w.Header().Get("X-Request-ID") == "" || w.Header().Get("X-Analysis-ID") == "" {
		t.Errorf("missing id headers: %v", w.Header())
	}
}

func TestAnalyzeEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name       string
		classifier fixedClassifier
		body       string
		status     int
	}{
		{name: "empty text", classifier: fixedClassifier{scores: []service.LabelScore{{Label: "joy", Score: 1}}}, body: `{"text":"   "}`, status: http.StatusBadRequest},
		{name: "missing text", classifier: fixedClassifier{scores: []service.LabelScore{{Label: "joy", Score: 1}}}, body: `{}`, status: http.StatusBadRequest},
		{name: "malformed json", classifier: fixedClassifier{}, body: `{"text":`, status: http.StatusBadRequest},
		{name: "classifier down", classifier: fixedClassifier{err: errors.New("offline")}, body: `{"text":"hi"}`, status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(tt.classifier)
			w := doRequest(r, http.MethodPost, "/api/v1/analyze", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.status, w.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestSummaryEndpoint(t *testing.T) {
	r := newTestRouter(fixedClassifier{})
	w := doRequest(r, http.MethodGet, "/api/v1/summary", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"total_texts", "emotion_distribution", "avg_confidence", "last_5_analyses"} {
		if _, ok := resp[key]; !ok {
			t.Errorf("missing key %q in %s", key, w.Body.String())
		}
	}

	var dist map[string]float64
	json.Unmarshal(resp["emotion_distribution"], &dist)
	if dist["joy"] != 100 || len(dist) != len(domain.AllEmotions()) {
		t.Errorf("unexpected distribution %v", dist)
	}
	if !strings.Contains(string(resp["last_5_analyses"]), `"predicted_emotion":"joy"`) {
		t.Errorf("unexpected last5 %s", resp["last_5_analyses"])
	}
}

func TestGetAnalysisEndpoint(t *testing.T) {
	r := newTestRouter(fixedClassifier{})

	w := doRequest(r, http.MethodGet, "/api/v1/analyses/a1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got domain.AnalysisResult
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.AnalysisID != "a1" || got.PredictedEmotion != domain.EmotionJoy {
		t.Errorf("unexpected analysis %+v", got)
	}

	w = doRequest(r, http.MethodGet, "/api/v1/analyses/nope", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(fixedClassifier{})
	w := doRequest(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Status    string `json:"status"`
		IndexSize int    `json:"index_size"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "ok" || resp.IndexSize != 42 {
		t.Errorf("unexpected health %+v", resp)
	}
}

func TestCORSPreflight(t *testing.T) {
	r := newTestRouter(fixedClassifier{})
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/analyze", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent || w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("unexpected preflight: %d %v", w.Code, w.Header())
	}
}
