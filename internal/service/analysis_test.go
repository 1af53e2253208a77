package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/timmy/emosense/internal/domain"
	"github.com/timmy/emosense/internal/logger"
)

type stubClassifier struct {
	scores []LabelScore
	err    error
	delay  time.Duration
}

func (c *stubClassifier) Classify(ctx context.Context, _ string) ([]LabelScore, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return c.scores, c.err
}

type stubRetriever struct {
	examples []domain.RetrievedExample
	err      error
	gotK     int
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string, k int) ([]domain.RetrievedExample, error) {
	r.gotK = k
	return r.examples, r.err
}

type stubInsight struct {
	text   string
	err    error
	delay  time.Duration
	prompt string
	hook   func()
}

func (g *stubInsight) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	if g.hook != nil {
		g.hook()
	}
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.text, g.err
}

type memStore struct {
	mu      sync.Mutex
	results []*domain.AnalysisResult
	err     error
	ctxErr  error
}

func (s *memStore) Create(ctx context.Context, r *domain.AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return s.err
	}
	s.results = append(s.results, r)
	return nil
}

func newTestService(c Classifier, r Retriever, g InsightGenerator, st ResultStore, cfg AnalysisConfig) *AnalysisService {
	return NewAnalysisService(AnalysisDeps{
		Classifier: c,
		Retriever:  r,
		Insight:    g,
		Store:      st,
		Pool:       NewPool(4),
	}, cfg, logger.NewDefault())
}

func stageStatus(o *AnalysisOutcome, stage Stage) StageStatus {
	for _, s := range o.Stages {
		if s.Stage == stage {
			return s.Status
		}
	}
	return ""
}

func TestAnalyze_EndToEnd(t *testing.T) {
	classifier := &stubClassifier{scores: []LabelScore{{Label: "joy", Score: 0.95}, {Label: "sadness", Score: 0.03}}}
	retriever := &stubRetriever{examples: []domain.RetrievedExample{{Text: "I'm so thrilled!", Label: "joy", Score: 0.9}}}
	insight := &stubInsight{text: "  Landing a dream job is a moment of real joy.  "}
	store := &memStore{}

	svc := newTestService(classifier, retriever, insight, store, AnalysisConfig{})
	out, err := svc.Analyze(context.Background(), "  I just got my dream job!  ")
	if err != nil {
		t.Fatal(err)
	}

	r := out.Result
	if r.PredictedEmotion != domain.EmotionJoy || r.Confidence != 0.95 {
		t.Errorf("got %s %.2f, want joy 0.95", r.PredictedEmotion, r.Confidence)
	}
	if len(r.Examples) != 1 || r.Examples[0] != (domain.RetrievedExample{Text: "I'm so thrilled!", Label: "joy", Score: 0.9}) {
		t.Errorf("unexpected examples %+v", r.Examples)
	}
	if r.Insight != "Landing a dream job is a moment of real joy." {
		t.Errorf("unexpected insight %q", r.Insight)
	}
	if r.Text != "I just got my dream job!" {
		t.Errorf("text not trimmed: %q", r.Text)
	}
	if r.AnalysisID == "" || r.Timestamp.IsZero() {
		t.Errorf("missing id or timestamp: %+v", r)
	}
	if retriever.gotK != 3 {
		t.Errorf("top_k = %d, want 3", retriever.gotK)
	}
	if !strings.Contains(insight.prompt, "joy (confidence 0.95)") {
		t.Errorf("prompt missing emotion: %s", insight.prompt)
	}
	if !out.Persisted || len(store.results) != 1 || out.Degraded() {
		t.Errorf("expected clean persisted outcome: %+v", out.Stages)
	}
}

func TestAnalyze_RejectsEmptyText(t *testing.T) {
	classifier := &stubClassifier{scores: []LabelScore{{Label: "joy", Score: 1}}}
	svc := newTestService(classifier, nil, nil, &memStore{}, AnalysisConfig{})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := svc.Analyze(context.Background(), text)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("text %q: expected ErrInvalidInput, got %v", text, err)
		}
		var serr *StageError
		if !errors.As(err, &serr) || serr.Stage != StageValidate {
			t.Errorf("expected validate stage error, got %v", err)
		}
	}
}

func TestAnalyze_ClassificationFailuresReject(t *testing.T) {
	tests := []struct {
		name       string
		classifier *stubClassifier
		timeout    time.Duration
	}{
		{name: "collaborator error", classifier: &stubClassifier{err: errors.New("model offline")}},
		{name: "empty output", classifier: &stubClassifier{scores: []LabelScore{}}},
		{name: "score out of range", classifier: &stubClassifier{scores: []LabelScore{{Label: "joy", Score: 1.5}}}},
		{name: "timeout", classifier: &stubClassifier{scores: []LabelScore{{Label: "joy", Score: 0.9}}, delay: time.Second}, timeout: 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			svc := newTestService(tt.classifier, &stubRetriever{}, &stubInsight{text: "x"}, store, AnalysisConfig{ClassifyTimeout: tt.timeout})

			out, err := svc.Analyze(context.Background(), "hello")
			if !errors.Is(err, ErrClassification) {
				t.Fatalf("expected ErrClassification, got %v", err)
			}
			if out != nil {
				t.Errorf("expected no outcome, got %+v", out)
			}
			if len(store.results) != 0 {
				t.Errorf("rejected request must not be persisted")
			}
		})
	}
}

func TestAnalyze_LabelMapping(t *testing.T) {
	tests := []struct {
		label string
		want  domain.Emotion
	}{
		{"Happiness", domain.EmotionJoy},
		{"anxiety", domain.EmotionFear},
		{"optimism", domain.EmotionNeutral},
	}
	for _, tt := range tests {
		classifier := &stubClassifier{scores: []LabelScore{{Label: tt.label, Score: 0.8}}}
		svc := newTestService(classifier, &stubRetriever{}, &stubInsight{text: "ok"}, &memStore{}, AnalysisConfig{})
		out, err := svc.Analyze(context.Background(), "text")
		if err != nil {
			t.Fatal(err)
		}
		if out.Result.PredictedEmotion != tt.want {
			t.Errorf("label %q: got %s, want %s", tt.label, out.Result.PredictedEmotion, tt.want)
		}
	}
}

func TestAnalyze_RetrievalDegrades(t *testing.T) {
	classifier := &stubClassifier{scores: []LabelScore{{Label: "sadness", Score: 0.7}}}
	svc := newTestService(classifier, &stubRetriever{err: errors.New("embedding API down")}, &stubInsight{text: "ok"}, &memStore{}, AnalysisConfig{})

	out, err := svc.Analyze(context.Background(), "I miss home")
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.Examples == nil || len(out.Result.Examples) != 0 {
		t.Errorf("expected empty non-nil examples, got %#v", out.Result.Examples)
	}
	if stageStatus(out, StageRetrieve) != StageDegraded || stageStatus(out, StageInsight) != StageOK {
		t.Errorf("unexpected stages %+v", out.Stages)
	}
	if !out.Persisted {
		t.Error("expected result to be persisted")
	}
}

func TestAnalyze_InsightFallback(t *testing.T) {
	tests := []struct {
		name    string
		insight *stubInsight
		timeout time.Duration
	}{
		{name: "error", insight: &stubInsight{err: errors.New("quota exceeded")}},
		{name: "blank", insight: &stubInsight{text: "   "}},
		{name: "timeout", insight: &stubInsight{text: "late", delay: time.Second}, timeout: 20 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classifier := &stubClassifier{scores: []LabelScore{{Label: "joy", Score: 0.95}}}
			svc := newTestService(classifier, &stubRetriever{}, tt.insight, &memStore{}, AnalysisConfig{InsightTimeout: tt.timeout})

			out, err := svc.Analyze(context.Background(), "I just got my dream job!")
			if err != nil {
				t.Fatal(err)
			}
			want := "The text mainly expresses joy (confidence 0.95)."
			if out.Result.Insight != want {
				t.Errorf("insight = %q, want %q", out.Result.Insight, want)
			}
			if stageStatus(out, StageInsight) != StageDegraded {
				t.Errorf("expected degraded insight stage: %+v", out.Stages)
			}
		})
	}
}

func TestAnalyze_PersistFailureStillResponds(t *testing.T) {
	classifier := &stubClassifier{scores: []LabelScore{{Label: "anger", Score: 0.6}}}
	store := &memStore{err: errors.New("connection refused")}
	svc := newTestService(classifier, &stubRetriever{}, &stubInsight{text: "ok"}, store, AnalysisConfig{})

	out, err := svc.Analyze(context.Background(), "Leave me alone")
	if err != nil {
		t.Fatal(err)
	}
	if out.Persisted || stageStatus(out, StagePersist) != StageDegraded {
		t.Errorf("expected degraded persist: %+v", out.Stages)
	}
	if out.Result.PredictedEmotion != domain.EmotionAnger {
		t.Errorf("unexpected result %+v", out.Result)
	}
}

func TestAnalyze_PersistSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	classifier := &stubClassifier{scores: []LabelScore{{Label: "joy", Score: 0.9}}}
	// The caller goes away while the insight is being generated.
	insight := &stubInsight{text: "ok", hook: cancel}
	store := &memStore{}
	svc := newTestService(classifier, &stubRetriever{}, insight, store, AnalysisConfig{PersistTimeout: time.Second})

	out, err := svc.Analyze(ctx, "great day")
	if err != nil {
		t.Fatal(err)
	}
	if !out.Persisted || len(store.results) != 1 {
		t.Fatalf("expected write to survive cancellation: %+v", out.Stages)
	}
	if store.ctxErr != nil {
		t.Errorf("store saw cancelled context: %v", store.ctxErr)
	}
}
