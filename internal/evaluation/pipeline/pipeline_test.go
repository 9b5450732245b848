package pipeline

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"promptjudge/internal/evaluation/model"
)

type runState struct {
	visited  []string
	fallback error
}

func step(name string, progress model.Stage, policy Policy, err error) Stage[runState] {
	s := Stage[runState]{
		Name:      name,
		Progress:  progress,
		OnFailure: policy,
		Run: func(_ context.Context, st *runState) error {
			st.visited = append(st.visited, name)
			return err
		},
	}
	if policy == ContinueWithDefault {
		s.Fallback = func(st *runState, err error) { st.fallback = err }
	}
	return s
}

type recorder struct {
	stages []model.Stage
	err    error
}

func (r *recorder) publish(_ context.Context, stage model.Stage) error {
	r.stages = append(r.stages, stage)
	return r.err
}

func TestRunnerPublishesEachProgressOnce(t *testing.T) {
	rec := &recorder{}
	runner, err := NewRunner(rec.publish,
		step("tests", model.StageTests, Abort, nil),
		step("deploy", model.StageDeploy, ContinueWithDefault, nil),
		step("analysis", model.StageAnalysis, Abort, nil),
		step("persist", model.StageAnalysis, Abort, nil),
	)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	var st runState
	if err := runner.Run(context.Background(), &st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	wantStages := []model.Stage{model.StageTests, model.StageDeploy, model.StageAnalysis}
	if !reflect.DeepEqual(rec.stages, wantStages) {
		t.Fatalf("published %v, want %v", rec.stages, wantStages)
	}
	if !reflect.DeepEqual(st.visited, []string{"tests", "deploy", "analysis", "persist"}) {
		t.Fatalf("unexpected visit order %v", st.visited)
	}
}

func TestRunnerContinueWithDefault(t *testing.T) {
	deployErr := errors.New("connection refused")
	runner, err := NewRunner(nil,
		step("deploy", model.StageDeploy, ContinueWithDefault, deployErr),
		step("analysis", model.StageAnalysis, Abort, nil),
	)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	var st runState
	if err := runner.Run(context.Background(), &st); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !errors.Is(st.fallback, deployErr) {
		t.Fatalf("fallback not applied: %v", st.fallback)
	}
	if len(st.visited) != 2 {
		t.Fatalf("later stages should still run: %v", st.visited)
	}
}

func TestRunnerAbortStopsAndReportsStage(t *testing.T) {
	analyzerErr := errors.New("analyzer agent returned status 500")
	rec := &recorder{}
	runner, err := NewRunner(rec.publish,
		step("tests", model.StageTests, Abort, nil),
		step("analysis", model.StageAnalysis, Abort, analyzerErr),
		step("persist", model.StageAnalysis, Abort, nil),
	)
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	var st runState
	err = runner.Run(context.Background(), &st)

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected StageError, got %v", err)
	}
	if stageErr.Name != "analysis" || stageErr.Progress != model.StageAnalysis || !errors.Is(err, analyzerErr) {
		t.Fatalf("unexpected stage error: %+v", stageErr)
	}
	if !reflect.DeepEqual(st.visited, []string{"tests", "analysis"}) {
		t.Fatalf("stages after abort must not run: %v", st.visited)
	}
}

func TestRunnerIgnoresPublishFailures(t *testing.T) {
	rec := &recorder{err: errors.New("redis down")}
	runner, err := NewRunner(rec.publish, step("tests", model.StageTests, Abort, nil))
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}
	if err := runner.Run(context.Background(), &runState{}); err != nil {
		t.Fatalf("publish failure should not fail the run: %v", err)
	}
}

func TestNewRunnerValidation(t *testing.T) {
	noRun := Stage[runState]{Name: "x", Progress: model.StageTests}
	noFallback := Stage[runState]{Name: "x", Progress: model.StageTests, OnFailure: ContinueWithDefault,
		Run: func(context.Context, *runState) error { return nil }}
	badProgress := Stage[runState]{Name: "x", Progress: "building",
		Run: func(context.Context, *runState) error { return nil }}

	cases := map[string][]Stage[runState]{
		"empty":        nil,
		"no run":       {noRun},
		"no fallback":  {noFallback},
		"bad progress": {badProgress},
	}
	for name, stages := range cases {
		if _, err := NewRunner[runState](nil, stages...); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
