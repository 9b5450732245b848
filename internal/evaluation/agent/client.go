package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"promptjudge/internal/common/http/middleware"
	"promptjudge/internal/evaluation/model"
	appErr "promptjudge/pkg/errors"
	"promptjudge/pkg/utils/contextkey"
)

const (
	defaultTestsTimeout    = 3 * time.Minute
	defaultDeployTimeout   = 10 * time.Minute
	defaultAnalysisTimeout = 3 * time.Minute

	testsPath    = "/test"
	deployPath   = "/deploy"
	analyzePath  = "/analyze"
	maxBodyBytes = 32 << 20
)

const (
	testsInstruction = "Generate automated tests for the following React submission. " +
		"Reply with a single JSON object mapping test file paths to file contents."
	analyzeInstruction = "Evaluate the following React submission, its build output and the chat " +
		"history with the assistant. Reply with a single JSON object scoring codeQuality, functionality, " +
		"productionAbility and chatHistory (each {score 0-100, rationale}) plus an overallVerdict string."
)

// Timeouts bound each agent call.
type Timeouts struct {
	Tests    time.Duration `yaml:"tests"`
	Deploy   time.Duration `yaml:"deploy"`
	Analysis time.Duration `yaml:"analysis"`
}

// Config configures the agent client.
type Config struct {
	ServerURL string   `yaml:"serverURL"`
	Timeouts  Timeouts `yaml:"timeouts"`
}

// TestRequest is the data payload sent to the test-generation agent.
type TestRequest struct {
	ProblemID          int64                   `json:"problemId"`
	ProblemDescription string                  `json:"problemDescription"`
	Files              model.NormalizedFileSet `json:"files"`
}

// AnalyzeRequest is the data payload sent to the analyzer agent.
type AnalyzeRequest struct {
	ProblemID          int64                   `json:"problemId"`
	ProblemDescription string                  `json:"problemDescription"`
	Files              model.NormalizedFileSet `json:"files"`
	BuildLogs          string                  `json:"buildLogs"`
	ChatHistory        []model.ChatMessage     `json:"chatHistory"`
}

// DeployRequest is the body sent to the deploy agent.
type DeployRequest struct {
	DockerFile    string `json:"docker_file"`
	Base64TarFile string `json:"base64TarFile"`
}

// DeployResponse is the deploy agent's report. BuildFailed is nil when the agent omitted it.
type DeployResponse struct {
	ContainerName string `json:"container_name"`
	ContainerID   string `json:"container_id"`
	ImageName     string `json:"image_name"`
	ImageID       string `json:"image_id"`
	BuildLogs     string `json:"build_logs"`
	BuildFailed   *bool  `json:"build_failed"`

	StatusCode int `json:"-"`
}

// OK reports whether the deploy agent answered with a 2xx status.
func (r *DeployResponse) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client calls the test, deploy and analyzer agents over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	timeouts Timeouts
}

// NewClient creates an agent client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("agent serverURL is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeouts := cfg.Timeouts
	if timeouts.Tests <= 0 {
		timeouts.Tests = defaultTestsTimeout
	}
	if timeouts.Deploy <= 0 {
		timeouts.Deploy = defaultDeployTimeout
	}
	if timeouts.Analysis <= 0 {
		timeouts.Analysis = defaultAnalysisTimeout
	}
	return &Client{baseURL: baseURL, http: httpClient, timeouts: timeouts}, nil
}

// GenerateTests asks the test agent for test files. Transport and status failures are errors;
// an unparseable reply is a failed Decoded.
func (c *Client) GenerateTests(ctx context.Context, req TestRequest) (Decoded[map[string]string], error) {
	body, _, err := c.call(ctx, "test", testsPath, c.timeouts.Tests, NewRequest(testsInstruction, req), true)
	if err != nil {
		return Decoded[map[string]string]{}, err
	}
	return Decode[map[string]string](string(body)), nil
}

// Analyze asks the analyzer agent to score a submission.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (Decoded[model.AnalyzerResult], error) {
	body, _, err := c.call(ctx, "analyzer", analyzePath, c.timeouts.Analysis, NewRequest(analyzeInstruction, req), true)
	if err != nil {
		return Decoded[model.AnalyzerResult]{}, err
	}
	return Decode[model.AnalyzerResult](string(body)), nil
}

// Deploy posts the build recipe and archive to the deploy agent.
// A non-2xx reply carrying a JSON report is still returned with its StatusCode; anything else is an error.
func (c *Client) Deploy(ctx context.Context, req DeployRequest) (*DeployResponse, error) {
	body, status, err := c.call(ctx, "deploy", deployPath, c.timeouts.Deploy, req, false)
	if err != nil {
		return nil, err
	}
	var resp DeployResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidFormat, "deploy agent returned a non-json response")
	}
	resp.StatusCode = status
	return &resp, nil
}

type statusError struct {
	status int
	body   []byte
}

func (c *Client) call(ctx context.Context, name, path string, timeout time.Duration, payload interface{}, requireOK bool) ([]byte, int, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, appErr.Wrapf(err, appErr.InternalServerError, "encode %s agent request failed", name)
	}
	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, appErr.Wrapf(err, appErr.InternalServerError, "build %s agent request failed", name)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok && traceID != "" {
		httpReq.Header.Set(middleware.TraceIDHeader, traceID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, 0, appErr.Wrapf(err, appErr.AgentTimeout, "%s agent timed out after %s", name, timeout)
		}
		return nil, 0, appErr.Wrapf(err, appErr.AgentRequestFailed, "%s agent request failed: %v", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, 0, appErr.Wrapf(err, appErr.AgentTimeout, "%s agent timed out after %s", name, timeout)
		}
		return nil, 0, appErr.Wrapf(err, appErr.AgentRequestFailed, "read %s agent response failed", name)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if !requireOK && json.Valid(body) {
			return body, resp.StatusCode, nil
		}
		return nil, 0, appErr.Wrapf(&statusError{status: resp.StatusCode, body: body}, appErr.AgentBadStatus,
			"%s agent returned status %d", name, resp.StatusCode)
	}
	return body, resp.StatusCode, nil
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.status, truncate(string(e.body), 256))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
