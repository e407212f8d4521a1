package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/pkg/jobs"
	"github.com/xhad/vidrag/pkg/llm"
	"github.com/xhad/vidrag/pkg/rag"
	"github.com/xhad/vidrag/server"
)

type fakeService struct {
	mu        sync.Mutex
	calls     []string
	err       error
	metrics   *models.EvaluationResult
	extracted models.Extraction
}

func (f *fakeService) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeService) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) Ask(ctx context.Context, req rag.AskRequest) (rag.AskResponse, error) {
	if err := f.record("ask:" + req.VideoID); err != nil {
		return rag.AskResponse{}, err
	}
	return rag.AskResponse{Answer: "answer to " + req.Question, Metrics: f.metrics}, nil
}

func (f *fakeService) Summary(ctx context.Context, videoID, kind string) (string, error) {
	if err := f.record("summary:" + videoID + ":" + kind); err != nil {
		return "", err
	}
	return "summary of " + videoID, nil
}

func (f *fakeService) Insights(ctx context.Context, videoID string) (string, error) {
	if err := f.record("insights:" + videoID); err != nil {
		return "", err
	}
	return "<h3>Key Insights</h3>", nil
}

func (f *fakeService) Extract(ctx context.Context, videoID string) (models.Extraction, error) {
	if err := f.record("extract:" + videoID); err != nil {
		return models.Extraction{}, err
	}
	return f.extracted, nil
}

func (f *fakeService) Forget(ctx context.Context, videoID string) {
	f.record("forget:" + videoID)
}

type envelope struct {
	Error   bool                     `json:"error"`
	Data    json.RawMessage          `json:"data"`
	Metrics *models.EvaluationResult `json:"metrics"`
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (int, envelope) {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func dataString(t *testing.T, env envelope) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(env.Data, &s))
	return s
}

func newTestServer(t *testing.T, svc *fakeService, queue server.JobQueue) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(server.New(server.Config{}, svc, queue).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestMissingParameters(t *testing.T) {
	svc := &fakeService{}
	ts := newTestServer(t, svc, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   string
	}{
		{"summary", http.MethodGet, "/api/summary", "", "Video ID missing"},
		{"blank summary", http.MethodGet, "/api/summary?v=%20", "", "Video ID missing"},
		{"ask without question", http.MethodPost, "/api/ask", `{"video_id": "abc"}`, "Missing video_id or question"},
		{"ask bad json", http.MethodPost, "/api/ask", `{`, "Invalid JSON body"},
		{"entities", http.MethodGet, "/api/extract-entities", "", "Video ID missing"},
		{"insights", http.MethodGet, "/api/get-insights?v=", "", "Video ID missing"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, ts, tt.method, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.True(t, env.Error)
			assert.Equal(t, tt.want, dataString(t, env))
		})
	}

	assert.Empty(t, svc.Calls())
}

func TestRoutes(t *testing.T) {
	svc := &fakeService{
		metrics:   &models.EvaluationResult{Faithfulness: 0.8, LatencySeconds: 1.25},
		extracted: models.Extraction{Success: true, Entities: map[string][]models.Entity{"ORG": {{Text: "NASA"}}}},
	}
	ts := newTestServer(t, svc, nil)

	status, env := do(t, ts, http.MethodGet, "/api/summary?v=abc&type=detailed", "")
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, env.Error)
	assert.Equal(t, "summary of abc", dataString(t, env))

	status, env = do(t, ts, http.MethodPost, "/api/ask", `{"video_id": "abc", "question": "why?"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "answer to why?", dataString(t, env))
	require.NotNil(t, env.Metrics)
	assert.Equal(t, 0.8, env.Metrics.Faithfulness)

	status, env = do(t, ts, http.MethodGet, "/api/extract-entities?v=abc", "")
	assert.Equal(t, http.StatusOK, status)
	assert.False(t, env.Error)
	var extraction models.Extraction
	require.NoError(t, json.Unmarshal(env.Data, &extraction))
	assert.Equal(t, "NASA", extraction.Entities["ORG"][0].Text)

	status, env = do(t, ts, http.MethodGet, "/api/get-insights?v=abc", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "<h3>Key Insights</h3>", dataString(t, env))

	status, _ = do(t, ts, http.MethodDelete, "/api/videos/abc", "")
	assert.Equal(t, http.StatusOK, status)

	assert.Equal(t, []string{"summary:abc:detailed", "ask:abc", "extract:abc", "insights:abc", "forget:abc"}, svc.Calls())
}

func TestErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"no transcript", rag.ErrNoTranscript, http.StatusNotFound, rag.ErrNoTranscript.Error()},
		{"no captions", rag.ErrNoCaptions, http.StatusNotFound, rag.ErrNoCaptions.Error()},
		{"provider", llm.Classify(errors.New("429 quota exceeded")), http.StatusBadGateway, "quota"},
		{"other", errors.New("boom"), http.StatusInternalServerError, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeService{err: tt.err}, nil)

			status, env := do(t, ts, http.MethodGet, "/api/summary?v=abc", "")
			assert.Equal(t, tt.status, status)
			assert.True(t, env.Error)
			assert.Contains(t, dataString(t, env), tt.msg)
		})
	}
}

func TestFailedExtraction(t *testing.T) {
	svc := &fakeService{extracted: models.FailedExtraction(errors.New("model returned prose"))}
	ts := newTestServer(t, svc, nil)

	status, env := do(t, ts, http.MethodGet, "/api/extract-entities?v=abc", "")
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Error)
}

func TestCORS(t *testing.T) {
	ts := newTestServer(t, &fakeService{}, nil)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/ask", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp, err = ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestJobs(t *testing.T) {
	store := jobs.NewMemoryStore(time.Hour)
	defer store.Close()

	svc := &fakeService{}
	manager, err := jobs.NewManager(jobs.ManagerConfig{
		Store: store,
		Run: func(ctx context.Context, videoID, kind string) (string, error) {
			return "done " + kind, nil
		},
	})
	require.NoError(t, err)
	pool := jobs.NewPool(jobs.PoolConfig{Workers: 1}, manager.Execute)
	pool.Start(context.Background())
	defer pool.Close()
	manager.Attach(pool)

	ts := newTestServer(t, svc, manager)

	status, env := do(t, ts, http.MethodPost, "/api/jobs", `{"video_id": "abc", "type": "pizza"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.True(t, env.Error)

	status, env = do(t, ts, http.MethodPost, "/api/jobs", `{"video_id": "abc", "type": "summary:detailed"}`)
	require.Equal(t, http.StatusAccepted, status)
	var submitted map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &submitted))
	id := submitted["job_id"]
	require.NotEmpty(t, id)

	var job models.Job
	require.Eventually(t, func() bool {
		_, env := do(t, ts, http.MethodGet, "/api/jobs/"+id, "")
		if err := json.Unmarshal(env.Data, &job); err != nil {
			return false
		}
		return job.Status == models.JobCompleted
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "done summary:detailed", job.Result)

	status, env = do(t, ts, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.True(t, env.Error)
}

func TestJobsDisabled(t *testing.T) {
	ts := newTestServer(t, &fakeService{}, nil)

	status, _ := do(t, ts, http.MethodPost, "/api/jobs", `{"video_id": "abc", "type": "summary"}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestValidJobType(t *testing.T) {
	for _, kind := range []string{"summary", "summary:short", "summary:detailed", "short", "detailed", "insights", "entities"} {
		assert.True(t, server.ValidJobType(kind), kind)
	}
	for _, kind := range []string{"", "summary:", "summary:poem", "transcript"} {
		assert.False(t, server.ValidJobType(kind), kind)
	}
}

func TestWebSocket(t *testing.T) {
	svc := &fakeService{metrics: &models.EvaluationResult{Faithfulness: 1}}
	ts := newTestServer(t, svc, nil)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(server.Message{Type: "ask", VideoID: "abc", Content: "why?"}))

	var status, response server.Message
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Type)
	require.NoError(t, conn.ReadJSON(&response))
	assert.Equal(t, "response", response.Type)
	assert.Equal(t, "answer to why?", response.Content)
	assert.NotNil(t, response.Data)

	require.NoError(t, conn.WriteJSON(server.Message{Type: "ask", Content: "no video"}))
	var failure server.Message
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, "error", failure.Type)
	assert.Equal(t, "Missing video_id or question", failure.Content)
}

func callTool(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestMCPTools(t *testing.T) {
	svc := &fakeService{metrics: &models.EvaluationResult{Faithfulness: 0.5, LatencySeconds: 2}}
	tools := server.NewMCPTools(svc)
	ctx := context.Background()

	res, err := tools.AskVideo(ctx, callTool("ask_video", map[string]any{"video_id": "abc", "question": "why?"}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, resultText(t, res), "answer to why?")
	assert.Contains(t, resultText(t, res), "faithfulness 0.50")

	res, err = tools.SummarizeVideo(ctx, callTool("summarize_video", map[string]any{"video_id": "abc"}))
	require.NoError(t, err)
	assert.Equal(t, "summary of abc", resultText(t, res))

	res, err = tools.AskVideo(ctx, callTool("ask_video", map[string]any{"video_id": "abc"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	assert.Equal(t, []string{"ask:abc", "summary:abc:short"}, svc.Calls())
	assert.NotNil(t, server.NewMCPServer(svc, "test"))
}
