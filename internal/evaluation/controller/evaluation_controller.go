package controller

import (
	"context"
	"strconv"
	"strings"

	"promptjudge/internal/evaluation/model"
	"promptjudge/pkg/utils/contextkey"
	"promptjudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Evaluator is the service surface the handlers drive.
type Evaluator interface {
	Submit(ctx context.Context, req model.SubmissionRequest) (*model.SubmissionResult, error)
	GetProgress(ctx context.Context, submissionID string) (*model.ProgressState, error)
	GetSubmission(ctx context.Context, recordID string) (*model.Submission, error)
	ListProblemSubmissions(ctx context.Context, problemID int64, limit int) ([]model.SubmissionSummary, error)
	ListAccountSubmissions(ctx context.Context, accountID string, limit int) ([]model.ProblemSubmissions, error)
}

// EvaluationController handles submission and progress HTTP endpoints.
type EvaluationController struct {
	evaluator Evaluator
	stream    StreamConfig
	upgrader  *websocket.Upgrader
}

// NewEvaluationController creates a new EvaluationController.
func NewEvaluationController(evaluator Evaluator, stream StreamConfig) *EvaluationController {
	stream = stream.withDefaults()
	return &EvaluationController{
		evaluator: evaluator,
		stream:    stream,
		upgrader:  newUpgrader(stream.AllowedOrigins),
	}
}

// Submit evaluates a submission and responds once the pipeline has finished.
func (h *EvaluationController) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request parameters")
		return
	}

	result, err := h.evaluator.Submit(c.Request.Context(), model.SubmissionRequest{
		ProblemID:    req.ProblemID,
		Files:        req.Files,
		SubmissionID: strings.TrimSpace(req.SubmissionID),
		ChatHistory:  req.ChatHistory,
		AccountID:    c.GetString(contextkey.UserID.String()),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// GetProgress returns the latest progress for a submission id. Data is null when nothing is tracked.
func (h *EvaluationController) GetProgress(c *gin.Context) {
	submissionID := strings.TrimSpace(c.Param("submissionId"))
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	state, err := h.evaluator.GetProgress(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, state)
}

// GetSubmission returns one persisted record.
func (h *EvaluationController) GetSubmission(c *gin.Context) {
	recordID := c.Param("id")
	if recordID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	submission, err := h.evaluator.GetSubmission(c.Request.Context(), recordID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, submission)
}

// ListProblemSubmissions returns the newest records for a problem.
func (h *EvaluationController) ListProblemSubmissions(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Param("problemId"), 10, 64)
	if err != nil || problemID <= 0 {
		response.BadRequest(c, "Invalid problem id")
		return
	}
	var query ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	items, err := h.evaluator.ListProblemSubmissions(c.Request.Context(), problemID, query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ListResponse[model.SubmissionSummary]{Items: items})
}

// ListAccountSubmissions returns the caller's records grouped by problem.
func (h *EvaluationController) ListAccountSubmissions(c *gin.Context) {
	accountID := c.GetString(contextkey.UserID.String())
	if accountID == "" {
		response.Unauthorized(c, "Missing account id")
		return
	}
	var query ListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "Invalid query parameters")
		return
	}
	groups, err := h.evaluator.ListAccountSubmissions(c.Request.Context(), accountID, query.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, ListResponse[model.ProblemSubmissions]{Items: groups})
}

// SubmitRequest defines the submission payload.
type SubmitRequest struct {
	ProblemID    int64                        `json:"problemId" binding:"required,gt=0"`
	Files        map[string]model.FileContent `json:"files" binding:"required,min=1"`
	SubmissionID string                       `json:"submissionId" binding:"required"`
	ChatHistory  []model.ChatMessage          `json:"chatHistory"`
}

// ListQuery defines listing query parameters.
type ListQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}

// ListResponse wraps listing results.
type ListResponse[T any] struct {
	Items []T `json:"items"`
}
