package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// FileContent is an editor file, sent either as a bare string or as {code, hidden, active}.
type FileContent struct {
	Code   string `json:"code"`
	Hidden *bool  `json:"hidden,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

func (f *FileContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var code string
		if err := json.Unmarshal(trimmed, &code); err != nil {
			return err
		}
		*f = FileContent{Code: code}
		return nil
	}
	type plain FileContent
	var obj struct {
		plain
		Code *string `json:"code"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return err
	}
	if obj.Code == nil {
		return fmt.Errorf("file object must carry a code field")
	}
	*f = FileContent{Code: *obj.Code, Hidden: obj.Hidden, Active: obj.Active}
	return nil
}

// MarshalJSON emits the bare string form unless editor flags are set.
func (f FileContent) MarshalJSON() ([]byte, error) {
	if f.Hidden == nil && f.Active == nil {
		return json.Marshal(f.Code)
	}
	type plain FileContent
	return json.Marshal(plain(f))
}

// ChatRole identifies the author of a chat message.
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one turn of the conversation between the candidate and the coding assistant.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// NormalizedFileSet maps build-tree paths (no leading slash) to file content.
type NormalizedFileSet map[string]string

// SubmissionRequest is the input to one evaluation run.
type SubmissionRequest struct {
	ProblemID    int64                  `json:"problemId"`
	Files        map[string]FileContent `json:"files"`
	SubmissionID string                 `json:"submissionId"`
	ChatHistory  []ChatMessage          `json:"chatHistory"`
	AccountID    string                 `json:"-"`
}

// Criterion is a single scored dimension of an analyzer report.
type Criterion struct {
	Score     float64 `json:"score"`
	Rationale string  `json:"rationale"`
}

// AnalyzerResult is the scoring report produced by the analyzer agent.
type AnalyzerResult struct {
	CodeQuality       Criterion `json:"codeQuality"`
	Functionality     Criterion `json:"functionality"`
	ProductionAbility Criterion `json:"productionAbility"`
	ChatHistory       Criterion `json:"chatHistory"`
	OverallVerdict    string    `json:"overallVerdict"`
}

// Validate checks that every score is within 0..100.
func (r *AnalyzerResult) Validate() error {
	criteria := map[string]Criterion{
		"codeQuality":       r.CodeQuality,
		"functionality":     r.Functionality,
		"productionAbility": r.ProductionAbility,
		"chatHistory":       r.ChatHistory,
	}
	for name, c := range criteria {
		if c.Score < 0 || c.Score > 100 {
			return fmt.Errorf("%s score %v out of range", name, c.Score)
		}
	}
	return nil
}

type SubmissionStatus string

const (
	StatusSuccess SubmissionStatus = "success"
	StatusFailure SubmissionStatus = "failure"
)

// Submission is the persisted evaluation record.
type Submission struct {
	ID            string            `json:"id"`
	ProblemID     int64             `json:"problemId"`
	AccountID     string            `json:"accountId"`
	SubmissionKey string            `json:"submissionKey"`
	SubmittedCode NormalizedFileSet `json:"submittedCode"`
	Status        SubmissionStatus  `json:"status"`
	ChatHistory   []ChatMessage     `json:"chatHistory"`
	Analysis      *AnalyzerResult   `json:"analysis"`
	BuildFailed   bool              `json:"buildFailed"`
	ArtifactKey   string            `json:"artifactKey,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// SubmissionSummary is a listing row without code or chat.
type SubmissionSummary struct {
	ID          string           `json:"id"`
	ProblemID   int64            `json:"problemId"`
	AccountID   string           `json:"accountId"`
	Status      SubmissionStatus `json:"status"`
	BuildFailed bool             `json:"buildFailed"`
	Analysis    *AnalyzerResult  `json:"analysis"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// ProblemSubmissions groups an account's submissions for one problem.
type ProblemSubmissions struct {
	ProblemID   int64               `json:"problemId"`
	Submissions []SubmissionSummary `json:"submissions"`
}

// SubmissionResult is returned synchronously to the submitter.
type SubmissionResult struct {
	ReceivedFiles      int              `json:"receivedFiles"`
	ProblemID          int64            `json:"problemId"`
	BuildFailed        bool             `json:"buildFailed"`
	BuildLogs          string           `json:"buildLogs"`
	Analysis           *AnalyzerResult  `json:"analysis"`
	Status             SubmissionStatus `json:"status"`
	SubmissionRecordID string           `json:"submissionRecordId"`
}

// Problem is the read-only challenge definition.
type Problem struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Difficulty  string `json:"difficulty"`
	Description string `json:"description"`
}
