// Package server exposes the video service over HTTP, a websocket and MCP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/pkg/jobs"
	"github.com/xhad/vidrag/pkg/llm"
	"github.com/xhad/vidrag/pkg/rag"
)

// VideoService is the part of rag.Service the handlers use.
type VideoService interface {
	Ask(ctx context.Context, req rag.AskRequest) (rag.AskResponse, error)
	Summary(ctx context.Context, videoID, kind string) (string, error)
	Insights(ctx context.Context, videoID string) (string, error)
	Extract(ctx context.Context, videoID string) (models.Extraction, error)
	Forget(ctx context.Context, videoID string)
}

type JobQueue interface {
	Submit(ctx context.Context, videoID, kind string) (string, error)
	Get(ctx context.Context, id string) (models.Job, error)
}

// Response is the envelope every API route answers with.
type Response struct {
	Error   bool                     `json:"error"`
	Data    any                      `json:"data"`
	Metrics *models.EvaluationResult `json:"metrics,omitempty"`
	Sources []models.RetrievedChunk  `json:"sources,omitempty"`
}

type Config struct {
	Port   int
	Logger *slog.Logger
	// ShutdownTimeout bounds graceful shutdown. Defaults to 10s.
	ShutdownTimeout time.Duration
}

type Server struct {
	config  Config
	service VideoService
	jobs    JobQueue
	logger  *slog.Logger
	mux     *http.ServeMux
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// New builds the router. queue may be nil, in which case the job routes
// answer 503.
func New(config Config, service VideoService, queue JobQueue) *Server {
	if config.Port == 0 {
		config.Port = 5000
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config:  config,
		service: service,
		jobs:    queue,
		logger:  config.Logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /api/summary", s.handleSummary)
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("GET /api/extract-entities", s.handleExtract)
	s.mux.HandleFunc("GET /api/get-insights", s.handleInsights)
	s.mux.HandleFunc("POST /api/jobs", s.handleSubmitJob)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("DELETE /api/videos/{id}", s.handleForget)
	s.mux.HandleFunc("GET /ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return s
}

// Handler returns the router wrapped with permissive CORS.
func (s *Server) Handler() http.Handler {
	return cors(s.mux)
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "starting server", "port", s.config.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.URL.Query().Get("v"))
	if videoID == "" {
		s.fail(w, r, http.StatusBadRequest, "Video ID missing")
		return
	}

	summary, err := s.service.Summary(r.Context(), videoID, r.URL.Query().Get("type"))
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: summary})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req rag.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.VideoID) == "" || strings.TrimSpace(req.Question) == "" {
		s.fail(w, r, http.StatusBadRequest, "Missing video_id or question")
		return
	}

	resp, err := s.service.Ask(r.Context(), req)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: resp.Answer, Metrics: resp.Metrics, Sources: resp.Sources})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.URL.Query().Get("v"))
	if videoID == "" {
		s.fail(w, r, http.StatusBadRequest, "Video ID missing")
		return
	}

	res, err := s.service.Extract(r.Context(), videoID)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	// A failed extraction is still a well-formed result.
	writeJSON(w, http.StatusOK, Response{Error: !res.Success, Data: res})
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.URL.Query().Get("v"))
	if videoID == "" {
		s.fail(w, r, http.StatusBadRequest, "Video ID missing")
		return
	}

	insights, err := s.service.Insights(r.Context(), videoID)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Data: insights})
}

type jobRequest struct {
	VideoID string `json:"video_id"`
	Type    string `json:"type"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.fail(w, r, http.StatusServiceUnavailable, "Background jobs are disabled")
		return
	}

	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.fail(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.VideoID) == "" {
		s.fail(w, r, http.StatusBadRequest, "Missing video_id")
		return
	}
	if !ValidJobType(req.Type) {
		s.fail(w, r, http.StatusBadRequest, fmt.Sprintf("Unknown job type %q", req.Type))
		return
	}

	id, err := s.jobs.Submit(r.Context(), req.VideoID, req.Type)
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Response{Data: map[string]string{"job_id": id}})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if s.jobs == nil {
		s.fail(w, r, http.StatusServiceUnavailable, "Background jobs are disabled")
		return
	}

	job, err := s.jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.failErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Error: job.Status == models.JobFailed, Data: job})
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	videoID := strings.TrimSpace(r.PathValue("id"))
	if videoID == "" {
		s.fail(w, r, http.StatusBadRequest, "Video ID missing")
		return
	}

	s.service.Forget(r.Context(), videoID)
	writeJSON(w, http.StatusOK, Response{Data: "forgotten"})
}

// ValidJobType reports whether kind is a job the service can run.
func ValidJobType(kind string) bool {
	switch kind {
	case rag.JobSummary, rag.JobInsights, rag.JobEntities, rag.SummaryShort, rag.SummaryDetailed,
		rag.JobSummary + ":" + rag.SummaryShort, rag.JobSummary + ":" + rag.SummaryDetailed:
		return true
	}
	return false
}

// Message is one websocket frame in either direction.
type Message struct {
	Type    string `json:"type"`
	VideoID string `json:"video_id,omitempty"`
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one writer at a time.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}

	// In-flight questions are cancelled, then awaited, before the conn closes.
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WarnContext(ctx, "websocket read failed", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.sendWS(ctx, ws, Message{Type: "error", Content: "Invalid message"})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, ws, msg)
		}()
	}
}

func (s *Server) handleMessage(ctx context.Context, ws *wsConn, msg Message) {
	videoID := strings.TrimSpace(msg.VideoID)
	question := strings.TrimSpace(msg.Content)
	if videoID == "" || question == "" {
		s.sendWS(ctx, ws, Message{Type: "error", Content: "Missing video_id or question"})
		return
	}

	s.sendWS(ctx, ws, Message{Type: "status", VideoID: videoID, Content: fmt.Sprintf("Processing video %s", videoID)})

	resp, err := s.service.Ask(ctx, rag.AskRequest{VideoID: videoID, Question: question})
	if err != nil {
		s.sendWS(ctx, ws, Message{Type: "error", VideoID: videoID, Content: rag.UserMessage(err)})
		return
	}

	out := Message{Type: "response", VideoID: videoID, Content: resp.Answer}
	if resp.Metrics != nil {
		out.Data = resp.Metrics
	}
	s.sendWS(ctx, ws, out)
}

func (s *Server) sendWS(ctx context.Context, ws *wsConn, msg Message) {
	if err := ws.send(msg); err != nil {
		s.logger.WarnContext(ctx, "failed to send websocket message", "type", msg.Type, "error", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.logger.InfoContext(r.Context(), "request rejected", "path", r.URL.Path, "status", status, "reason", msg)
	writeJSON(w, status, Response{Error: true, Data: msg})
}

func (s *Server) failErr(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.WarnContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, Response{Error: true, Data: rag.UserMessage(err)})
}

func statusFor(err error) int {
	var pe *llm.ProviderError
	switch {
	case errors.Is(err, rag.ErrInvalidInput), errors.Is(err, jobs.ErrInvalidJob):
		return http.StatusBadRequest
	case errors.Is(err, rag.ErrNoTranscript), errors.Is(err, rag.ErrNoCaptions), errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobs.ErrQueueFull), errors.Is(err, jobs.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &pe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
