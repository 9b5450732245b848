package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"promptjudge/internal/common/mq"
	"promptjudge/internal/evaluation/agent"
	"promptjudge/internal/evaluation/model"
	"promptjudge/internal/evaluation/progress"
	"promptjudge/internal/evaluation/repository"
)

type fakeProblemRepo struct {
	problems map[int64]*model.Problem
	err      error
}

func (f *fakeProblemRepo) GetByID(_ context.Context, id int64) (*model.Problem, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.problems[id]
	if !ok {
		return nil, repository.ErrProblemNotFound
	}
	return p, nil
}

type fakeSubmissionRepo struct {
	mu        sync.Mutex
	created   []*model.Submission
	createErr error
	byID      map[string]*model.Submission
	summaries []model.SubmissionSummary
	lastLimit int
}

func (f *fakeSubmissionRepo) Create(_ context.Context, s *model.Submission) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, s)
	return nil
}

func (f *fakeSubmissionRepo) GetByID(_ context.Context, id string) (*model.Submission, error) {
	if s, ok := f.byID[id]; ok {
		return s, nil
	}
	return nil, repository.ErrSubmissionNotFound
}

func (f *fakeSubmissionRepo) ListByProblem(_ context.Context, problemID int64, limit int) ([]model.SubmissionSummary, error) {
	f.lastLimit = limit
	var out []model.SubmissionSummary
	for _, s := range f.summaries {
		if s.ProblemID == problemID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSubmissionRepo) ListByAccount(_ context.Context, accountID string, limit int) ([]model.SubmissionSummary, error) {
	f.lastLimit = limit
	var out []model.SubmissionSummary
	for _, s := range f.summaries {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

// recordingStore wraps a real store and keeps every write.
type recordingStore struct {
	progress.Store
	mu     sync.Mutex
	writes []model.ProgressState
}

func (r *recordingStore) Update(ctx context.Context, id string, stage model.Stage, errMsg *string) error {
	r.mu.Lock()
	r.writes = append(r.writes, model.ProgressState{Stage: stage, ErrorMessage: errMsg})
	r.mu.Unlock()
	return r.Store.Update(ctx, id, stage, errMsg)
}

func (r *recordingStore) stages() []model.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Stage, 0, len(r.writes))
	for _, w := range r.writes {
		out = append(out, w.Stage)
	}
	return out
}

type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (f *fakeStorage) PutObject(_ context.Context, bucket, key string, reader io.Reader, _ int64, _ string) error {
	if f.err != nil {
		return f.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[bucket+"/"+key] = data
	return nil
}

type fakeProducer struct {
	mu       sync.Mutex
	messages map[string][]*mq.Message
	err      error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, message *mq.Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messages == nil {
		f.messages = map[string][]*mq.Message{}
	}
	f.messages[topic] = append(f.messages[topic], message)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

// agentServer stands in for the test, deploy and analyzer agents.
type agentServer struct {
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	bodies   map[string][]byte
	// onRequest observes progress while an agent call is in flight.
	onRequest func(path string)
}

func newAgentServer(t *testing.T) (*agentServer, *agent.Client) {
	t.Helper()
	a := &agentServer{handlers: map[string]http.HandlerFunc{}, bodies: map[string][]byte{}}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		a.mu.Lock()
		a.bodies[r.URL.Path] = body
		handler := a.handlers[r.URL.Path]
		observe := a.onRequest
		a.mu.Unlock()
		if observe != nil {
			observe(r.URL.Path)
		}
		if handler == nil {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	client, err := agent.NewClient(agent.Config{ServerURL: server.URL}, server.Client())
	if err != nil {
		t.Fatalf("new agent client: %v", err)
	}
	return a, client
}

func (a *agentServer) handle(path string, handler http.HandlerFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[path] = handler
}

func (a *agentServer) body(path string) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.bodies[path]
}

func envelope(text string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      "1",
		"result": map[string]interface{}{
			"kind":      "task",
			"artifacts": []interface{}{map[string]interface{}{"parts": []interface{}{map[string]interface{}{"kind": "text", "text": text}}}},
		},
	})
	return string(body)
}

func replyText(text string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, envelope(text))
	}
}

func replyJSON(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}
}

func dropConnection(w http.ResponseWriter, _ *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("hijacking not supported")
	}
	conn, _, err := hj.Hijack()
	if err == nil {
		_ = conn.Close()
	}
}

const validAnalysis = "```json\n" + `{
  "codeQuality": {"score": 82, "rationale": "clean components"},
  "functionality": {"score": 90, "rationale": "requirements met"},
  "productionAbility": {"score": 75, "rationale": "missing error states"},
  "chatHistory": {"score": 60, "rationale": "prompts were vague"},
  "overallVerdict": "good"
}` + "\n```"
