package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"promptjudge/internal/evaluation/agent"
	"promptjudge/internal/evaluation/model"
	"promptjudge/internal/evaluation/packager"
	"promptjudge/internal/evaluation/pipeline"
	"promptjudge/internal/evaluation/repository"
	appErr "promptjudge/pkg/errors"
	"promptjudge/pkg/utils/logger"
)

// evaluation is the state threaded through one pipeline run.
type evaluation struct {
	recordID string
	req      *model.SubmissionRequest
	problem  *model.Problem
	files    model.NormalizedFileSet
	archive  *packager.Package

	deploy   *agent.DeployResponse
	deployOK bool

	artifactKey string
	analysis    *model.AnalyzerResult
	record      *model.Submission
}

func (e *evaluation) buildLogs() string {
	if e.deploy == nil {
		return ""
	}
	return e.deploy.BuildLogs
}

// buildFailed trusts the deploy agent's verdict when it gave one.
func (e *evaluation) buildFailed() bool {
	if e.deploy != nil && e.deploy.BuildFailed != nil {
		return *e.deploy.BuildFailed
	}
	return !e.deployOK
}

func (s *EvaluationService) newRunner(submissionID string) (*pipeline.Runner[evaluation], error) {
	publish := func(ctx context.Context, stage model.Stage) error {
		return s.progress.Update(ctx, submissionID, stage, nil)
	}
	return pipeline.NewRunner(publish,
		pipeline.Stage[evaluation]{
			Name:      "tests",
			Progress:  model.StageTests,
			OnFailure: pipeline.Abort,
			Run:       s.generateTests,
		},
		pipeline.Stage[evaluation]{
			Name:      "package",
			Progress:  model.StageDeploy,
			OnFailure: pipeline.Abort,
			Run:       s.packageFiles,
		},
		pipeline.Stage[evaluation]{
			Name:      "deploy",
			Progress:  model.StageDeploy,
			OnFailure: pipeline.ContinueWithDefault,
			Run:       s.deploy,
			Fallback: func(e *evaluation, _ error) {
				e.deploy = nil
				e.deployOK = false
			},
		},
		pipeline.Stage[evaluation]{
			Name:      "archive",
			Progress:  model.StageDeploy,
			OnFailure: pipeline.ContinueWithDefault,
			Run:       s.archiveArtifact,
			Fallback: func(e *evaluation, _ error) {
				e.artifactKey = ""
			},
		},
		pipeline.Stage[evaluation]{
			Name:      "analysis",
			Progress:  model.StageAnalysis,
			OnFailure: pipeline.Abort,
			Run:       s.analyze,
		},
		pipeline.Stage[evaluation]{
			Name:      "persist",
			Progress:  model.StageAnalysis,
			OnFailure: pipeline.Abort,
			Run:       s.persist,
		},
	)
}

func (s *EvaluationService) generateTests(ctx context.Context, e *evaluation) error {
	e.files = packager.Normalize(e.req.Files)

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	problem, err := s.problemRepo.GetByID(ctxDB.ctx, e.req.ProblemID)
	ctxDB.cancel()
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return appErr.Newf(appErr.ProblemNotFound, "problem %d not found", e.req.ProblemID)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "load problem failed")
	}
	e.problem = problem

	decoded, err := s.agents.GenerateTests(ctx, agent.TestRequest{
		ProblemID:          problem.ID,
		ProblemDescription: problem.Description,
		Files:              e.files,
	})
	if err != nil {
		return err
	}
	if !decoded.OK {
		logger.Warn(ctx, "generated tests unavailable", zap.String("stage", string(model.StageTests)), zap.String("reason", decoded.Reason))
		return nil
	}

	tests, dropped := agent.SanitizeTestFiles(decoded.Value)
	if len(dropped) > 0 {
		logger.Warn(ctx, "dropped generated tests with invalid paths", zap.Strings("paths", dropped))
	}
	for path, content := range tests {
		e.files[path] = content
	}
	logger.Info(ctx, "generated tests merged", zap.Int("count", len(tests)))
	return nil
}

func (s *EvaluationService) packageFiles(_ context.Context, e *evaluation) error {
	archive, err := packager.Build(e.files)
	if err != nil {
		return appErr.Wrapf(err, appErr.PackagingFailed, "package submission failed")
	}
	e.archive = archive
	return nil
}

func (s *EvaluationService) deploy(ctx context.Context, e *evaluation) error {
	resp, err := s.agents.Deploy(ctx, agent.DeployRequest{
		DockerFile:    packager.BuildRecipe,
		Base64TarFile: e.archive.Transport,
	})
	if err != nil {
		return err
	}
	e.deploy = resp
	e.deployOK = resp.OK()
	return nil
}

func (s *EvaluationService) analyze(ctx context.Context, e *evaluation) error {
	decoded, err := s.agents.Analyze(ctx, agent.AnalyzeRequest{
		ProblemID:          e.problem.ID,
		ProblemDescription: e.problem.Description,
		Files:              e.files,
		BuildLogs:          truncateLogs(e.buildLogs(), s.buildLogLimit),
		ChatHistory:        chatOrEmpty(e.req.ChatHistory),
	})
	if err != nil {
		return err
	}
	if !decoded.OK {
		logger.Warn(ctx, "analyzer result unavailable", zap.String("stage", string(model.StageAnalysis)), zap.String("reason", decoded.Reason))
		return nil
	}
	if err := decoded.Value.Validate(); err != nil {
		logger.Warn(ctx, "analyzer result rejected", zap.String("stage", string(model.StageAnalysis)), zap.Error(err))
		return nil
	}
	e.analysis = decoded.Ptr()
	return nil
}

func (s *EvaluationService) persist(ctx context.Context, e *evaluation) error {
	buildFailed := e.buildFailed()
	status := model.StatusSuccess
	if buildFailed || e.analysis == nil {
		status = model.StatusFailure
	}
	record := &model.Submission{
		ID:            e.recordID,
		ProblemID:     e.req.ProblemID,
		AccountID:     e.req.AccountID,
		SubmissionKey: e.req.SubmissionID,
		SubmittedCode: e.files,
		Status:        status,
		ChatHistory:   chatOrEmpty(e.req.ChatHistory),
		Analysis:      e.analysis,
		BuildFailed:   buildFailed,
		ArtifactKey:   e.artifactKey,
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, record); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "persist submission failed")
	}
	e.record = record
	return nil
}

func chatOrEmpty(chat []model.ChatMessage) []model.ChatMessage {
	if chat == nil {
		return []model.ChatMessage{}
	}
	return chat
}
