package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/emosense/internal/domain"
	"github.com/timmy/emosense/internal/logger"
	"github.com/timmy/emosense/internal/prompts"
)

const defaultTopK = 3

// ResultStore appends analysis results.
type ResultStore interface {
	Create(ctx context.Context, result *domain.AnalysisResult) error
}

// AnalysisConfig holds pipeline tuning. Zero timeouts mean no per-call limit.
type AnalysisConfig struct {
	TopK            int
	ClassifyTimeout time.Duration
	RetrieveTimeout time.Duration
	InsightTimeout  time.Duration
	PersistTimeout  time.Duration
}

// AnalysisService runs one text through validate, classify, map-label,
// retrieve, insight and persist. Validate and classify failures reject the
// request; the later stages degrade to fallbacks.
type AnalysisService struct {
	classifier Classifier
	retriever  Retriever
	insight    InsightGenerator
	store      ResultStore
	pool       *Pool
	cfg        AnalysisConfig
	logger     *logger.Logger

	now   func() time.Time
	newID func() string
}

// AnalysisDeps groups the collaborators of AnalysisService.
type AnalysisDeps struct {
	Classifier Classifier
	Retriever  Retriever
	Insight    InsightGenerator
	Store      ResultStore
	Pool       *Pool
}

// AnalysisOutcome is a completed analysis. Persisted is false when the store
// write degraded; Stages lists every optional stage in order.
type AnalysisOutcome struct {
	Result    *domain.AnalysisResult
	Persisted bool
	Stages    []StageReport
}

// Degraded reports whether any stage fell back.
func (o *AnalysisOutcome) Degraded() bool {
	for _, s := range o.Stages {
		if s.Status == StageDegraded {
			return true
		}
	}
	return false
}

// NewAnalysisService creates a new analysis service.
// Parameters:
//   - deps: collaborators; Classifier is required, a nil Pool gets 8 slots.
//   - cfg: top-k and per-stage timeouts.
//   - log: logger instance.
//
// Returns:
//   - *AnalysisService: initialized service.
func NewAnalysisService(deps AnalysisDeps, cfg AnalysisConfig, log *logger.Logger) *AnalysisService {
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	pool := deps.Pool
	if pool == nil {
		pool = NewPool(8)
	}
	return &AnalysisService{
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		insight:    deps.Insight,
		store:      deps.Store,
		pool:       pool,
		cfg:        cfg,
		logger:     log,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
	}
}

// scope tags ctx with the analysis id. Requests that arrive without a
// request-scoped logger get the service logger.
func (s *AnalysisService) scope(ctx context.Context, analysisID string) context.Context {
	if s.logger != nil && logger.GetRequestID(ctx) == "" {
		ctx = s.logger.WithContext(ctx)
	}
	return logger.SetAnalysisID(logger.SetComponent(ctx, "analysis"), analysisID)
}

// Analyze runs the pipeline for text. It returns a *StageError wrapping
// ErrInvalidInput or ErrClassification when the request is rejected.
func (s *AnalysisService) Analyze(ctx context.Context, text string) (*AnalysisOutcome, error) {
	analysisID := s.newID()
	ctx = s.scope(ctx, analysisID)

	// Validate
	text = strings.TrimSpace(text)
	if text == "" {
		err := stageError(StageValidate, ErrInvalidInput, errors.New("text cannot be empty"))
		logger.FromContext(ctx).WithError(err).Warn("Analysis rejected")
		return nil, err
	}

	// Classify
	start := time.Now()
	best, err := s.classify(ctx, text)
	if err != nil {
		serr := stageError(StageClassify, ErrClassification, err)
		logger.With(logger.Fields{
			logger.FieldStage:      string(StageClassify),
			logger.FieldDurationMs: time.Since(start).Milliseconds(),
		}).WithError(err).Error(ctx, "Analysis rejected: classification failed")
		return nil, serr
	}

	// MapLabel
	emotion := domain.MapLabel(best.Label)
	confidence := best.Score

	outcome := &AnalysisOutcome{}

	// Retrieve
	examples, report := s.retrieve(ctx, text)
	outcome.Stages = append(outcome.Stages, report)

	// GenerateInsight
	insight, report := s.generateInsight(ctx, text, emotion, confidence, examples)
	outcome.Stages = append(outcome.Stages, report)

	result := &domain.AnalysisResult{
		AnalysisID:       analysisID,
		Text:             text,
		PredictedEmotion: emotion,
		Confidence:       confidence,
		Examples:         domain.ExampleList(examples),
		Insight:          insight,
		Timestamp:        s.now(),
	}
	outcome.Result = result

	// Persist
	report = s.persist(ctx, result)
	outcome.Stages = append(outcome.Stages, report)
	outcome.Persisted = report.Status == StageOK

	logger.With(logger.Fields{
		"emotion":           string(emotion),
		"confidence":        confidence,
		"raw_label":         best.Label,
		logger.FieldCount:   len(examples),
		logger.FieldOutcome: outcomeLabel(outcome),
	}).Info(ctx, "Analysis completed")

	return outcome, nil
}

func outcomeLabel(o *AnalysisOutcome) string {
	if o.Degraded() {
		return "completed_degraded"
	}
	return "completed"
}

func (s *AnalysisService) classify(ctx context.Context, text string) (LabelScore, error) {
	if s.classifier == nil {
		return LabelScore{}, errors.New("no classifier configured")
	}
	scores, err := Call(ctx, s.pool, s.cfg.ClassifyTimeout, func(ctx context.Context) ([]LabelScore, error) {
		return s.classifier.Classify(ctx, text)
	})
	if err != nil {
		return LabelScore{}, err
	}
	return BestLabel(scores)
}

func (s *AnalysisService) retrieve(ctx context.Context, text string) ([]domain.RetrievedExample, StageReport) {
	start := time.Now()
	if s.retriever == nil {
		return []domain.RetrievedExample{}, s.degrade(ctx, StageRetrieve, ErrRetrieval, errors.New("no retriever configured"), start)
	}

	examples, err := Call(ctx, s.pool, s.cfg.RetrieveTimeout, func(ctx context.Context) ([]domain.RetrievedExample, error) {
		return s.retriever.Retrieve(ctx, text, s.cfg.TopK)
	})
	if err != nil {
		return []domain.RetrievedExample{}, s.degrade(ctx, StageRetrieve, ErrRetrieval, err, start)
	}
	if examples == nil {
		examples = []domain.RetrievedExample{}
	}
	return examples, okReport(StageRetrieve, start)
}

func (s *AnalysisService) generateInsight(ctx context.Context, text string, emotion domain.Emotion, confidence float64, examples []domain.RetrievedExample) (string, StageReport) {
	start := time.Now()
	fallback := prompts.FallbackInsight(emotion, confidence)
	if s.insight == nil {
		return fallback, s.degrade(ctx, StageInsight, ErrInsightGeneration, errors.New("no insight generator configured"), start)
	}

	prompt := prompts.BuildInsightPrompt(text, emotion, confidence, examples)
	insight, err := Call(ctx, s.pool, s.cfg.InsightTimeout, func(ctx context.Context) (string, error) {
		return s.insight.Generate(ctx, prompt)
	})
	if err == nil && strings.TrimSpace(insight) == "" {
		err = errors.New("empty insight")
	}
	if err != nil {
		return fallback, s.degrade(ctx, StageInsight, ErrInsightGeneration, err, start)
	}
	return strings.TrimSpace(insight), okReport(StageInsight, start)
}

// persist writes result on a context detached from the caller's cancellation,
// so a disconnected client does not drop the write.
func (s *AnalysisService) persist(ctx context.Context, result *domain.AnalysisResult) StageReport {
	start := time.Now()
	if s.store == nil {
		return s.degrade(ctx, StagePersist, ErrPersistence, errors.New("no result store configured"), start)
	}

	writeCtx := context.WithoutCancel(ctx)
	err := s.pool.Do(writeCtx, s.cfg.PersistTimeout, func(ctx context.Context) error {
		return s.store.Create(ctx, result)
	})
	if err != nil {
		return s.degrade(ctx, StagePersist, ErrPersistence, err, start)
	}
	return okReport(StagePersist, start)
}

func okReport(stage Stage, start time.Time) StageReport {
	return StageReport{Stage: stage, Status: StageOK, Duration: time.Since(start).Milliseconds()}
}

func (s *AnalysisService) degrade(ctx context.Context, stage Stage, kind, err error, start time.Time) StageReport {
	serr := stageError(stage, kind, err)
	d := time.Since(start)
	logger.With(logger.Fields{
		logger.FieldStage:  string(stage),
		logger.FieldStatus: string(StageDegraded),
	}).WithDuration(d).WithError(serr).Warn(ctx, "Stage degraded")
	return StageReport{Stage: stage, Status: StageDegraded, Duration: d.Milliseconds(), Error: serr.Error()}
}
