package service

import (
	"errors"
	"fmt"
)

// Stage names an orchestrator step.
type Stage string

const (
	StageValidate Stage = "validate"
	StageClassify Stage = "classify"
	StageRetrieve Stage = "retrieve"
	StageInsight  Stage = "insight"
	StagePersist  Stage = "persist"
)

// Failure kinds. Validate and classify failures reject the request; the rest degrade.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrClassification    = errors.New("classification failed")
	ErrRetrieval         = errors.New("retrieval failed")
	ErrInsightGeneration = errors.New("insight generation failed")
	ErrPersistence       = errors.New("persistence failed")
)

// StageError records which stage failed, the failure kind and the cause.
type StageError struct {
	Stage Stage
	Kind  error
	Err   error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stageError(stage Stage, kind, err error) *StageError {
	return &StageError{Stage: stage, Kind: kind, Err: err}
}

// StageStatus is the outcome of one stage.
type StageStatus string

const (
	StageOK       StageStatus = "ok"
	StageDegraded StageStatus = "degraded"
)

// StageReport describes how a stage of a completed analysis ended.
type StageReport struct {
	Stage    Stage       `json:"stage"`
	Status   StageStatus `json:"status"`
	Duration int64       `json:"duration_ms"`
	Error    string      `json:"error,omitempty"`
}
