package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"promptjudge/internal/evaluation/model"
	"promptjudge/pkg/utils/logger"
)

// Policy decides what a stage failure does to the rest of the run.
type Policy int

const (
	// Abort stops the run and reports the failing stage.
	Abort Policy = iota
	// ContinueWithDefault applies the stage's Fallback and moves on.
	ContinueWithDefault
)

func (p Policy) String() string {
	switch p {
	case Abort:
		return "abort"
	case ContinueWithDefault:
		return "continue"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// Stage is one step over the run state S.
type Stage[S any] struct {
	Name      string
	Progress  model.Stage
	OnFailure Policy
	Run       func(ctx context.Context, state *S) error
	// Fallback fills in defaults after a ContinueWithDefault failure.
	Fallback func(state *S, err error)
}

// PublishFunc reports entry into a progress stage.
type PublishFunc func(ctx context.Context, stage model.Stage) error

// StageError is returned when an Abort stage fails.
type StageError struct {
	Name     string
	Progress model.Stage
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Name, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Runner executes stages in order.
type Runner[S any] struct {
	stages  []Stage[S]
	publish PublishFunc
}

// NewRunner validates the stage list.
func NewRunner[S any](publish PublishFunc, stages ...Stage[S]) (*Runner[S], error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	for _, stage := range stages {
		if stage.Run == nil {
			return nil, fmt.Errorf("stage %s has no run function", stage.Name)
		}
		if !stage.Progress.Valid() {
			return nil, fmt.Errorf("stage %s has invalid progress %q", stage.Name, stage.Progress)
		}
		if stage.OnFailure == ContinueWithDefault && stage.Fallback == nil {
			return nil, fmt.Errorf("stage %s continues on failure but has no fallback", stage.Name)
		}
	}
	return &Runner[S]{stages: stages, publish: publish}, nil
}

// Run executes every stage against state. Progress is published when a stage
// enters a progress label different from the previous one; publish failures are logged only.
func (r *Runner[S]) Run(ctx context.Context, state *S) error {
	var current model.Stage
	for _, stage := range r.stages {
		if stage.Progress != current {
			current = stage.Progress
			if r.publish != nil {
				if err := r.publish(ctx, current); err != nil {
					logger.Warn(ctx, "publish progress failed", zap.String("stage", string(current)), zap.Error(err))
				}
			}
		}

		logger.Debug(ctx, "stage started", zap.String("stage", stage.Name))
		err := stage.Run(ctx, state)
		if err == nil {
			continue
		}
		if stage.OnFailure == ContinueWithDefault {
			logger.Warn(ctx, "stage failed, continuing with defaults",
				zap.String("stage", stage.Name), zap.Error(err))
			stage.Fallback(state, err)
			continue
		}
		return &StageError{Name: stage.Name, Progress: current, Err: err}
	}
	return nil
}
