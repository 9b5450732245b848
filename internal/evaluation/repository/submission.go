package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"promptjudge/internal/common/cache"
	"promptjudge/internal/common/db"
	"promptjudge/internal/evaluation/model"
)

const (
	defaultSubmissionCacheTTL      = 30 * time.Minute
	defaultSubmissionCacheEmptyTTL = 5 * time.Minute
	submissionCacheKeyPrefix       = "evaluation:submission:"

	defaultListLimit = 50
	maxListLimit     = 200
)

var ErrSubmissionNotFound = errors.New("submission not found")

// SubmissionRepository persists evaluation records.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	GetByID(ctx context.Context, id string) (*model.Submission, error)
	ListByProblem(ctx context.Context, problemID int64, limit int) ([]model.SubmissionSummary, error)
	ListByAccount(ctx context.Context, accountID string, limit int) ([]model.SubmissionSummary, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db       db.Database
	cache    cache.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewSubmissionRepository creates a submission repository. cacheClient may be nil.
func NewSubmissionRepository(database db.Database, cacheClient cache.Cache, ttl, emptyTTL time.Duration) *MySQLSubmissionRepository {
	if ttl <= 0 {
		ttl = defaultSubmissionCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultSubmissionCacheEmptyTTL
	}
	return &MySQLSubmissionRepository{db: database, cache: cacheClient, ttl: ttl, emptyTTL: emptyTTL}
}

const submissionColumns = "id, problem_id, account_id, submission_key, submitted_code, status, chat_history, analysis, build_failed, artifact_key, created_at"

// Create inserts a record. The record is written once; there is no update path.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	if submission == nil {
		return errors.New("submission is nil")
	}
	if submission.ID == "" {
		return errors.New("id is required")
	}
	if submission.ProblemID <= 0 {
		return errors.New("problemID is required")
	}
	if submission.Status != model.StatusSuccess && submission.Status != model.StatusFailure {
		return fmt.Errorf("invalid status %q", submission.Status)
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = time.Now().UTC()
	}

	code, err := json.Marshal(submission.SubmittedCode)
	if err != nil {
		return fmt.Errorf("encode submitted code failed: %w", err)
	}
	chat, err := json.Marshal(chatOrEmpty(submission.ChatHistory))
	if err != nil {
		return fmt.Errorf("encode chat history failed: %w", err)
	}
	var analysis []byte
	if submission.Analysis != nil {
		if analysis, err = json.Marshal(submission.Analysis); err != nil {
			return fmt.Errorf("encode analysis failed: %w", err)
		}
	}

	query := `
		INSERT INTO evaluation_submissions
		(id, problem_id, account_id, submission_key, submitted_code, status, chat_history, analysis, build_failed, artifact_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.Exec(
		ctx,
		query,
		submission.ID,
		submission.ProblemID,
		submission.AccountID,
		submission.SubmissionKey,
		code,
		string(submission.Status),
		chat,
		analysis,
		submission.BuildFailed,
		submission.ArtifactKey,
		submission.CreatedAt,
	); err != nil {
		return err
	}
	r.setCache(ctx, submission)
	return nil
}

// GetByID retrieves a record by its id.
func (r *MySQLSubmissionRepository) GetByID(ctx context.Context, id string) (*model.Submission, error) {
	if id == "" {
		return nil, errors.New("id is required")
	}
	if r.cache == nil {
		return r.getByIDFromDB(ctx, id)
	}
	submission, err := cache.GetWithCached[*model.Submission](
		ctx,
		r.cache,
		submissionCacheKeyPrefix+id,
		cache.JitterTTL(r.ttl),
		cache.JitterTTL(r.emptyTTL),
		func(s *model.Submission) bool { return s == nil },
		marshalJSON[*model.Submission],
		unmarshalJSON[*model.Submission],
		func(ctx context.Context) (*model.Submission, error) {
			submission, err := r.getByIDFromDB(ctx, id)
			if errors.Is(err, ErrSubmissionNotFound) {
				return nil, nil
			}
			return submission, err
		},
	)
	if err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, ErrSubmissionNotFound
	}
	return submission, nil
}

// ListByProblem returns the newest records for a problem.
func (r *MySQLSubmissionRepository) ListByProblem(ctx context.Context, problemID int64, limit int) ([]model.SubmissionSummary, error) {
	query := "SELECT id, problem_id, account_id, status, build_failed, analysis, created_at FROM evaluation_submissions " +
		"WHERE problem_id = ? ORDER BY created_at DESC, id DESC LIMIT ?"
	return r.listSummaries(ctx, query, problemID, clampLimit(limit))
}

// ListByAccount returns the newest records submitted by an account.
func (r *MySQLSubmissionRepository) ListByAccount(ctx context.Context, accountID string, limit int) ([]model.SubmissionSummary, error) {
	query := "SELECT id, problem_id, account_id, status, build_failed, analysis, created_at FROM evaluation_submissions " +
		"WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?"
	return r.listSummaries(ctx, query, accountID, clampLimit(limit))
}

func (r *MySQLSubmissionRepository) listSummaries(ctx context.Context, query string, args ...interface{}) ([]model.SubmissionSummary, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	summaries := make([]model.SubmissionSummary, 0)
	for rows.Next() {
		var (
			summary  model.SubmissionSummary
			status   string
			analysis []byte
		)
		if err := rows.Scan(
			&summary.ID,
			&summary.ProblemID,
			&summary.AccountID,
			&status,
			&summary.BuildFailed,
			&analysis,
			&summary.CreatedAt,
		); err != nil {
			return nil, err
		}
		summary.Status = model.SubmissionStatus(status)
		if summary.Analysis, err = decodeAnalysis(analysis); err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *MySQLSubmissionRepository) getByIDFromDB(ctx context.Context, id string) (*model.Submission, error) {
	query := "SELECT " + submissionColumns + " FROM evaluation_submissions WHERE id = ? LIMIT 1"
	var (
		submission model.Submission
		status     string
		code       []byte
		chat       []byte
		analysis   []byte
	)
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&submission.ID,
		&submission.ProblemID,
		&submission.AccountID,
		&submission.SubmissionKey,
		&code,
		&status,
		&chat,
		&analysis,
		&submission.BuildFailed,
		&submission.ArtifactKey,
		&submission.CreatedAt,
	); err != nil {
		if db.IsNoRows(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}
	submission.Status = model.SubmissionStatus(status)
	if len(code) > 0 {
		if err := json.Unmarshal(code, &submission.SubmittedCode); err != nil {
			return nil, fmt.Errorf("decode submitted code failed: %w", err)
		}
	}
	if len(chat) > 0 {
		if err := json.Unmarshal(chat, &submission.ChatHistory); err != nil {
			return nil, fmt.Errorf("decode chat history failed: %w", err)
		}
	}
	var err error
	if submission.Analysis, err = decodeAnalysis(analysis); err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *MySQLSubmissionRepository) setCache(ctx context.Context, submission *model.Submission) {
	if r.cache == nil {
		return
	}
	payload := marshalJSON(submission)
	if payload == "" {
		return
	}
	_ = r.cache.Set(ctx, submissionCacheKeyPrefix+submission.ID, payload, cache.JitterTTL(r.ttl))
}

func decodeAnalysis(raw []byte) (*model.AnalyzerResult, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var result model.AnalyzerResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode analysis failed: %w", err)
	}
	return &result, nil
}

func chatOrEmpty(chat []model.ChatMessage) []model.ChatMessage {
	if chat == nil {
		return []model.ChatMessage{}
	}
	return chat
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
