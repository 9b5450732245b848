package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"promptjudge/internal/common/mq"
	"promptjudge/internal/evaluation/model"
	"promptjudge/internal/evaluation/packager"
	appErr "promptjudge/pkg/errors"
	"promptjudge/pkg/utils/logger"
)

const (
	artifactFileName    = "build.tar.zst"
	artifactContentType = "application/zstd"
	eventTypeHeader     = "x-event-type"
	eventTypeEvaluated  = "submission.evaluated"
)

type retryPolicy struct {
	initial  time.Duration
	attempts uint64
}

var defaultRetryPolicy = retryPolicy{initial: 200 * time.Millisecond, attempts: 2}

func (p retryPolicy) do(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, p.attempts), ctx))
}

// EvaluatedEvent is published once a record is persisted.
type EvaluatedEvent struct {
	RecordID     string                 `json:"recordId"`
	SubmissionID string                 `json:"submissionId"`
	ProblemID    int64                  `json:"problemId"`
	AccountID    string                 `json:"accountId"`
	Status       model.SubmissionStatus `json:"status"`
	BuildFailed  bool                   `json:"buildFailed"`
	EvaluatedAt  time.Time              `json:"evaluatedAt"`
}

// archiveArtifact stores the compressed build archive. Skipped when no storage is configured.
func (s *EvaluationService) archiveArtifact(ctx context.Context, e *evaluation) error {
	if s.storage == nil || e.archive == nil {
		return nil
	}
	compressed, err := packager.CompressArtifact(e.archive.Tar)
	if err != nil {
		return appErr.Wrapf(err, appErr.PackagingFailed, "compress artifact failed")
	}
	key := path.Join(s.artifactPrefix, e.recordID, artifactFileName)
	err = s.retry.do(ctx, func() error {
		ctxStorage := withTimeout(ctx, s.timeouts.Storage)
		defer ctxStorage.cancel()
		return s.storage.PutObject(ctxStorage.ctx, s.artifactBucket, key, bytes.NewReader(compressed), int64(len(compressed)), artifactContentType)
	})
	if err != nil {
		return fmt.Errorf("upload artifact %s failed: %w", key, err)
	}
	e.artifactKey = key
	logger.Info(ctx, "artifact archived", zap.String("key", key), zap.Int("bytes", len(compressed)))
	return nil
}

// publishEvaluated emits the completion event. Failures are logged and never fail the submission.
func (s *EvaluationService) publishEvaluated(ctx context.Context, record *model.Submission) {
	if s.producer == nil || record == nil {
		return
	}
	body, err := json.Marshal(EvaluatedEvent{
		RecordID:     record.ID,
		SubmissionID: record.SubmissionKey,
		ProblemID:    record.ProblemID,
		AccountID:    record.AccountID,
		Status:       record.Status,
		BuildFailed:  record.BuildFailed,
		EvaluatedAt:  record.CreatedAt,
	})
	if err != nil {
		logger.Warn(ctx, "encode evaluated event failed", zap.Error(err))
		return
	}
	message := mq.NewMessage(body)
	message.ID = record.ID
	message.SetHeader(eventTypeHeader, eventTypeEvaluated)

	err = s.retry.do(ctx, func() error {
		ctxMQ := withTimeout(ctx, s.timeouts.MQ)
		defer ctxMQ.cancel()
		return s.producer.Publish(ctxMQ.ctx, s.eventsTopic, message)
	})
	if err != nil {
		logger.Warn(ctx, "publish evaluated event failed", zap.String("topic", s.eventsTopic), zap.Error(err))
	}
}

// validate rejects malformed requests before any progress is recorded.
func (s *EvaluationService) validate(req *model.SubmissionRequest) error {
	if req.ProblemID <= 0 {
		return appErr.ValidationError("problemId", "must be positive")
	}
	if req.SubmissionID == "" {
		return appErr.ValidationError("submissionId", "required")
	}
	if len(req.Files) == 0 {
		return appErr.ValidationError("files", "at least one file is required")
	}
	total := 0
	for name, file := range req.Files {
		if name == "" || name == "/" {
			return appErr.ValidationError("files", "file path is empty")
		}
		total += len(file.Code)
	}
	if total > s.maxFilesBytes {
		return appErr.Newf(appErr.CodeTooLarge, "files total %d bytes, limit is %d", total, s.maxFilesBytes)
	}
	for i, msg := range req.ChatHistory {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			return appErr.ValidationError(fmt.Sprintf("chatHistory[%d].role", i), "must be user or assistant")
		}
	}
	return nil
}

// truncateLogs keeps the last limit bytes of logs, where build and test failures are reported.
func truncateLogs(logs string, limit int) string {
	if limit <= 0 || len(logs) <= limit {
		return logs
	}
	start := len(logs) - limit
	for start < len(logs) && !utf8.RuneStart(logs[start]) {
		start++
	}
	return fmt.Sprintf("[... %d bytes truncated ...]\n", start) + logs[start:]
}
