package model

import "time"

// Stage is one phase of the evaluation pipeline.
type Stage string

const (
	StageTests    Stage = "tests"
	StageDeploy   Stage = "deploy"
	StageAnalysis Stage = "analysis"
	StageDone     Stage = "done"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageTests, StageDeploy, StageAnalysis, StageDone:
		return true
	}
	return false
}

// ProgressState is the latest observable state of an in-flight submission.
type ProgressState struct {
	Stage        Stage     `json:"stage"`
	ErrorMessage *string   `json:"errorMessage"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Terminal reports whether polling can stop.
func (p *ProgressState) Terminal() bool {
	return p != nil && (p.Stage == StageDone || p.ErrorMessage != nil)
}
