package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptjudge/internal/common/mq"
	"promptjudge/internal/common/storage"
	"promptjudge/internal/evaluation/agent"
	"promptjudge/internal/evaluation/model"
	"promptjudge/internal/evaluation/pipeline"
	"promptjudge/internal/evaluation/progress"
	"promptjudge/internal/evaluation/repository"
	appErr "promptjudge/pkg/errors"
	"promptjudge/pkg/utils/contextkey"
	"promptjudge/pkg/utils/logger"
)

const (
	defaultBuildLogLimit  = 64 << 10
	defaultMaxFilesBytes  = 2 << 20
	defaultArtifactPrefix = "artifacts"
	defaultEventsTopic    = "evaluation.submission.evaluated"
	defaultListLimit      = 50

	fallbackErrorMessage = "submission evaluation failed"
)

// AgentClient is the subset of the agent client the pipeline drives.
type AgentClient interface {
	GenerateTests(ctx context.Context, req agent.TestRequest) (agent.Decoded[map[string]string], error)
	Deploy(ctx context.Context, req agent.DeployRequest) (*agent.DeployResponse, error)
	Analyze(ctx context.Context, req agent.AnalyzeRequest) (agent.Decoded[model.AnalyzerResult], error)
}

// TimeoutConfig holds timeout settings for side-effect calls.
type TimeoutConfig struct {
	DB      time.Duration
	Storage time.Duration
	MQ      time.Duration
}

// Config holds evaluation service dependencies and settings.
type Config struct {
	ProblemRepo    repository.ProblemRepository
	SubmissionRepo repository.SubmissionRepository
	Progress       progress.Store
	Agents         AgentClient

	// Storage and Producer are optional; archival and events are skipped when nil.
	Storage  storage.ObjectStorage
	Producer mq.Producer

	BuildLogLimit  int
	MaxFilesBytes  int
	ArtifactBucket string
	ArtifactPrefix string
	EventsTopic    string
	Timeouts       TimeoutConfig
}

// EvaluationService runs submissions through the evaluation pipeline and serves their results.
type EvaluationService struct {
	problemRepo    repository.ProblemRepository
	submissionRepo repository.SubmissionRepository
	progress       progress.Store
	agents         AgentClient
	storage        storage.ObjectStorage
	producer       mq.Producer

	buildLogLimit  int
	maxFilesBytes  int
	artifactBucket string
	artifactPrefix string
	eventsTopic    string
	timeouts       TimeoutConfig

	newID func() string
	retry retryPolicy
}

// NewEvaluationService creates a new evaluation service.
func NewEvaluationService(cfg Config) (*EvaluationService, error) {
	if cfg.ProblemRepo == nil {
		return nil, fmt.Errorf("problem repository is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.Progress == nil {
		return nil, fmt.Errorf("progress store is required")
	}
	if cfg.Agents == nil {
		return nil, fmt.Errorf("agent client is required")
	}
	if cfg.Storage != nil && cfg.ArtifactBucket == "" {
		return nil, fmt.Errorf("artifact bucket is required when storage is configured")
	}
	if cfg.BuildLogLimit <= 0 {
		cfg.BuildLogLimit = defaultBuildLogLimit
	}
	if cfg.MaxFilesBytes <= 0 {
		cfg.MaxFilesBytes = defaultMaxFilesBytes
	}
	if cfg.ArtifactPrefix == "" {
		cfg.ArtifactPrefix = defaultArtifactPrefix
	}
	if cfg.EventsTopic == "" {
		cfg.EventsTopic = defaultEventsTopic
	}
	return &EvaluationService{
		problemRepo:    cfg.ProblemRepo,
		submissionRepo: cfg.SubmissionRepo,
		progress:       cfg.Progress,
		agents:         cfg.Agents,
		storage:        cfg.Storage,
		producer:       cfg.Producer,
		buildLogLimit:  cfg.BuildLogLimit,
		maxFilesBytes:  cfg.MaxFilesBytes,
		artifactBucket: cfg.ArtifactBucket,
		artifactPrefix: cfg.ArtifactPrefix,
		eventsTopic:    cfg.EventsTopic,
		timeouts:       cfg.Timeouts,
		newID:          uuid.NewString,
		retry:          defaultRetryPolicy,
	}, nil
}

// Submit evaluates one submission end to end and returns its result.
// The run is detached from ctx cancellation: a caller that goes away does not stop it.
func (s *EvaluationService) Submit(ctx context.Context, req model.SubmissionRequest) (*model.SubmissionResult, error) {
	if err := s.validate(&req); err != nil {
		return nil, err
	}
	ctx = context.WithValue(context.WithoutCancel(ctx), contextkey.SubmissionID, req.SubmissionID)

	state := &evaluation{recordID: s.newID(), req: &req}
	runner, err := s.newRunner(req.SubmissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, fallbackErrorMessage)
	}
	if err := runner.Run(ctx, state); err != nil {
		return nil, s.fail(ctx, req.SubmissionID, err)
	}

	s.updateProgress(ctx, req.SubmissionID, model.StageDone, nil)
	s.publishEvaluated(ctx, state.record)

	logger.Info(ctx, "submission evaluated",
		zap.String("record_id", state.record.ID),
		zap.String("status", string(state.record.Status)),
		zap.Bool("build_failed", state.record.BuildFailed),
	)
	return &model.SubmissionResult{
		ReceivedFiles:      len(req.Files),
		ProblemID:          req.ProblemID,
		BuildFailed:        state.record.BuildFailed,
		BuildLogs:          state.buildLogs(),
		Analysis:           state.analysis,
		Status:             state.record.Status,
		SubmissionRecordID: state.record.ID,
	}, nil
}

// GetProgress returns the latest progress for a submission id, or nil when none is tracked.
func (s *EvaluationService) GetProgress(ctx context.Context, submissionID string) (*model.ProgressState, error) {
	if submissionID == "" {
		return nil, appErr.ValidationError("submissionId", "required")
	}
	state, err := s.progress.Get(ctx, submissionID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.ProgressStoreError, "read progress failed")
	}
	return state, nil
}

// GetSubmission returns a persisted record.
func (s *EvaluationService) GetSubmission(ctx context.Context, recordID string) (*model.Submission, error) {
	if recordID == "" {
		return nil, appErr.ValidationError("id", "required")
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	submission, err := s.submissionRepo.GetByID(ctxDB.ctx, recordID)
	if err != nil {
		if errors.Is(err, repository.ErrSubmissionNotFound) {
			return nil, appErr.New(appErr.SubmissionNotFound)
		}
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return submission, nil
}

// ListProblemSubmissions returns the newest records for a problem.
func (s *EvaluationService) ListProblemSubmissions(ctx context.Context, problemID int64, limit int) ([]model.SubmissionSummary, error) {
	if problemID <= 0 {
		return nil, appErr.ValidationError("problemId", "must be positive")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	summaries, err := s.submissionRepo.ListByProblem(ctxDB.ctx, problemID, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return summaries, nil
}

// ListAccountSubmissions returns an account's records grouped by problem.
// Groups are ordered by their newest submission.
func (s *EvaluationService) ListAccountSubmissions(ctx context.Context, accountID string, limit int) ([]model.ProblemSubmissions, error) {
	if accountID == "" {
		return nil, appErr.New(appErr.Unauthorized).WithMessage("account id is required")
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	summaries, err := s.submissionRepo.ListByAccount(ctxDB.ctx, accountID, limit)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "list submissions failed")
	}
	return groupByProblem(summaries), nil
}

// fail records the failing stage and its message, then returns the error to surface.
func (s *EvaluationService) fail(ctx context.Context, submissionID string, err error) error {
	stage := model.StageTests
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Progress
	}

	surfaced, ok := appErr.AsError(err)
	if !ok {
		surfaced = appErr.Wrapf(err, appErr.InternalServerError, fallbackErrorMessage)
	}
	message := surfaced.Error()
	if message == "" {
		message = fallbackErrorMessage
	}
	s.updateProgress(ctx, submissionID, stage, &message)

	logger.Error(ctx, "submission evaluation failed",
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
	return surfaced
}

func (s *EvaluationService) updateProgress(ctx context.Context, submissionID string, stage model.Stage, errMsg *string) {
	if err := s.progress.Update(ctx, submissionID, stage, errMsg); err != nil {
		logger.Warn(ctx, "update progress failed", zap.String("stage", string(stage)), zap.Error(err))
	}
}

func groupByProblem(summaries []model.SubmissionSummary) []model.ProblemSubmissions {
	groups := make([]model.ProblemSubmissions, 0)
	index := make(map[int64]int)
	for _, summary := range summaries {
		i, ok := index[summary.ProblemID]
		if !ok {
			i = len(groups)
			index[summary.ProblemID] = i
			groups = append(groups, model.ProblemSubmissions{ProblemID: summary.ProblemID})
		}
		groups[i].Submissions = append(groups[i].Submissions, summary)
	}
	return groups
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
