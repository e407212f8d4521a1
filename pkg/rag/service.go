// Package rag answers questions about videos from their transcripts and
// produces summaries, insights and entity extractions.
package rag

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
	"github.com/xhad/vidrag/pkg/extract"
	"github.com/xhad/vidrag/pkg/llm"
	"github.com/xhad/vidrag/pkg/metrics"
	"github.com/xhad/vidrag/pkg/processor"
	"github.com/xhad/vidrag/pkg/transcript"
	"golang.org/x/sync/singleflight"
)

// NoInfoAnswer is returned when retrieval finds nothing above the cutoff.
const NoInfoAnswer = "I couldn't find any relevant info in the video."

const truncatedSuffix = "...(truncated)"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNoTranscript = errors.New("could not retrieve transcript (no English captions?)")
	ErrNoCaptions   = errors.New("transcript has no usable captions")
)

type ServiceConfig struct {
	TopK               int
	MinScore           float64
	MaxVideos          int // cached videos before the least recently used is dropped
	MaxTranscriptChars int
	Logger             *slog.Logger
}

// Deps are the collaborators a Service is built from. Evaluator and
// Extractor may be nil, which disables metrics and extraction.
type Deps struct {
	Source    types.TranscriptSource
	Processor processor.Processor
	Index     types.Index
	Generator types.Generator
	Evaluator *metrics.Evaluator
	Extractor extract.Extractor
}

type Service struct {
	config    ServiceConfig
	deps      Deps
	retriever *Retriever
	synth     *Synthesizer
	logger    *slog.Logger

	group singleflight.Group

	mu     sync.Mutex
	videos map[string]*list.Element
	lru    *list.List
}

type cachedVideo struct {
	id     string
	chunks []models.Chunk
}

func NewService(config ServiceConfig, deps Deps) (*Service, error) {
	if deps.Source == nil || deps.Index == nil || deps.Generator == nil {
		return nil, fmt.Errorf("service requires a transcript source, an index and a generator")
	}
	if deps.Processor.ChunkSize() == 0 {
		deps.Processor = processor.NewWithConfig(processor.ProcessorConfig{})
	}
	if config.TopK <= 0 {
		config.TopK = DefaultTopK
	}
	if config.MaxVideos <= 0 {
		config.MaxVideos = 100
	}
	if config.MaxTranscriptChars <= 0 {
		config.MaxTranscriptChars = 50000
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Service{
		config:    config,
		deps:      deps,
		retriever: NewRetriever(deps.Index, config.MinScore),
		synth:     NewSynthesizer(deps.Generator),
		logger:    config.Logger,
		videos:    make(map[string]*list.Element),
		lru:       list.New(),
	}, nil
}

// AskRequest is one question about a video. GroundTruth is an optional
// reference answer used for the correctness metric.
type AskRequest struct {
	VideoID     string `json:"video_id"`
	Question    string `json:"question"`
	GroundTruth string `json:"ground_truth,omitempty"`
}

type AskResponse struct {
	Answer  string                   `json:"answer"`
	Metrics *models.EvaluationResult `json:"metrics,omitempty"`
	Sources []models.RetrievedChunk  `json:"sources,omitempty"`
}

func (s *Service) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	start := time.Now()

	if strings.TrimSpace(req.VideoID) == "" || strings.TrimSpace(req.Question) == "" {
		return AskResponse{}, fmt.Errorf("%w: missing video_id or question", ErrInvalidInput)
	}

	if _, err := s.ensureVideo(ctx, req.VideoID); err != nil {
		return AskResponse{}, err
	}

	chunks, topScore, err := s.retriever.Retrieve(ctx, req.VideoID, req.Question, s.config.TopK)
	if err != nil {
		return AskResponse{}, err
	}
	if len(chunks) == 0 {
		s.logger.InfoContext(ctx, "no chunks above cutoff", "video_id", req.VideoID, "min_score", s.config.MinScore)
		return AskResponse{Answer: NoInfoAnswer}, nil
	}

	answer, contextText, err := s.synth.Synthesize(ctx, req.Question, chunks)
	if err != nil {
		return AskResponse{}, err
	}
	latency := time.Since(start)

	resp := AskResponse{Answer: answer, Sources: chunks}
	if s.deps.Evaluator != nil {
		m := s.deps.Evaluator.Evaluate(ctx, metrics.Input{
			Question:    req.Question,
			Answer:      answer,
			Context:     contextText,
			GroundTruth: req.GroundTruth,
			Chunks:      chunks,
			TopScore:    topScore,
			Latency:     latency,
		})
		resp.Metrics = &m
	}

	s.logger.InfoContext(ctx, "answered question",
		"video_id", req.VideoID,
		"chunks", len(chunks),
		"top_score", topScore,
		"latency", latency)
	return resp, nil
}

// Summary summarizes the whole transcript. kind is SummaryShort (also the
// default when empty), SummaryDetailed or anything else for a plain summary.
func (s *Service) Summary(ctx context.Context, videoID, kind string) (string, error) {
	if strings.TrimSpace(kind) == "" {
		kind = SummaryShort
	}

	text, err := s.fullText(ctx, videoID, true)
	if err != nil {
		return "", err
	}

	summary, err := s.deps.Generator.Generate(ctx, summaryPrompt(kind, text))
	if err != nil {
		return "", fmt.Errorf("failed to generate summary: %w", err)
	}
	return summary, nil
}

// Insights returns an HTML fragment with suggested questions and key
// insights.
func (s *Service) Insights(ctx context.Context, videoID string) (string, error) {
	text, err := s.fullText(ctx, videoID, false)
	if err != nil {
		return "", err
	}

	insights, err := s.deps.Generator.Generate(ctx, insightsPrompt(text))
	if err != nil {
		return "", fmt.Errorf("failed to generate insights: %w", err)
	}
	return insights, nil
}

// Extract runs the configured extractor. Extraction failures come back as
// an unsuccessful Extraction; only input and transcript errors are returned.
func (s *Service) Extract(ctx context.Context, videoID string) (models.Extraction, error) {
	if s.deps.Extractor == nil {
		return models.Extraction{}, fmt.Errorf("%w: entity extraction is disabled", ErrInvalidInput)
	}
	text, err := s.fullText(ctx, videoID, false)
	if err != nil {
		return models.Extraction{}, err
	}
	return s.deps.Extractor.Extract(ctx, text), nil
}

// Prepare fetches, chunks and indexes a video ahead of its first question and
// returns the chunk count.
func (s *Service) Prepare(ctx context.Context, videoID string) (int, error) {
	if strings.TrimSpace(videoID) == "" {
		return 0, fmt.Errorf("%w: video ID missing", ErrInvalidInput)
	}
	chunks, err := s.ensureVideo(ctx, videoID)
	if err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// transcriptForgetter is implemented by sources that keep their own copy of
// a transcript, such as transcript.CachedSource.
type transcriptForgetter interface {
	Forget(ctx context.Context, videoID string) error
}

// Forget drops a video from the cache, its index and any stored transcript.
func (s *Service) Forget(ctx context.Context, videoID string) {
	s.mu.Lock()
	if el, ok := s.videos[videoID]; ok {
		s.lru.Remove(el)
		delete(s.videos, videoID)
	}
	s.mu.Unlock()

	s.removeIndex(ctx, videoID)

	if f, ok := s.deps.Source.(transcriptForgetter); ok {
		if err := f.Forget(ctx, videoID); err != nil {
			s.logger.WarnContext(ctx, "failed to forget transcript", "video_id", videoID, "error", err)
		}
	}
}

// Job kinds understood by Run.
const (
	JobSummary  = "summary"
	JobInsights = "insights"
	JobEntities = "entities"
)

// Run executes a background job and returns its result as text. Summary
// jobs may name a style as "summary:detailed".
func (s *Service) Run(ctx context.Context, videoID, kind string) (string, error) {
	base, style, _ := strings.Cut(kind, ":")
	switch base {
	case JobSummary, SummaryShort, SummaryDetailed:
		if base != JobSummary {
			style = base
		}
		return s.Summary(ctx, videoID, style)
	case JobInsights:
		return s.Insights(ctx, videoID)
	case JobEntities:
		res, err := s.Extract(ctx, videoID)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(res)
		if err != nil {
			return "", fmt.Errorf("failed to encode extraction: %w", err)
		}
		return string(out), nil
	default:
		return "", fmt.Errorf("%w: unknown job type %q", ErrInvalidInput, kind)
	}
}

// UserMessage renders err for end users, expanding provider errors.
func UserMessage(err error) string {
	var pe *llm.ProviderError
	if errors.As(err, &pe) {
		return pe.Message()
	}
	return err.Error()
}

func (s *Service) fullText(ctx context.Context, videoID string, markTruncation bool) (string, error) {
	if strings.TrimSpace(videoID) == "" {
		return "", fmt.Errorf("%w: video ID missing", ErrInvalidInput)
	}

	chunks, err := s.ensureVideo(ctx, videoID)
	if err != nil {
		return "", err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	text := strings.Join(texts, " ")

	if cut, ok := runePrefix(text, s.config.MaxTranscriptChars); ok {
		text = cut
		if markTruncation {
			text += truncatedSuffix
		}
	}
	return text, nil
}

// runePrefix returns the first n characters of text and whether anything was
// cut. It never splits a multi-byte rune.
func runePrefix(text string, n int) (string, bool) {
	count := 0
	for i := range text {
		if count == n {
			return text[:i], true
		}
		count++
	}
	return text, false
}

// ensureVideo returns the video's chunks, fetching, chunking and indexing
// it on first use. Concurrent first requests share one fetch.
func (s *Service) ensureVideo(ctx context.Context, videoID string) ([]models.Chunk, error) {
	if chunks, ok := s.cached(videoID); ok {
		return chunks, nil
	}

	v, err, _ := s.group.Do(videoID, func() (any, error) {
		// Other callers may be waiting on this load, so the first caller
		// leaving must not cancel it. Provider timeouts still bound the work.
		ctx := context.WithoutCancel(ctx)

		if chunks, ok := s.cached(videoID); ok {
			return chunks, nil
		}

		segments, err := s.deps.Source.Fetch(ctx, videoID)
		switch {
		case errors.Is(err, transcript.ErrNotFound):
			return nil, fmt.Errorf("%w: %v", ErrNoTranscript, err)
		case errors.Is(err, transcript.ErrEmpty):
			return nil, fmt.Errorf("%w: %v", ErrNoCaptions, err)
		case err != nil:
			return nil, fmt.Errorf("failed to fetch transcript: %w", err)
		}

		chunks := s.deps.Processor.Chunk(segments)
		if len(chunks) == 0 {
			return nil, ErrNoCaptions
		}

		if err := s.deps.Index.Build(ctx, videoID, chunks); err != nil {
			return nil, fmt.Errorf("failed to index video: %w", err)
		}

		s.remember(ctx, videoID, chunks)
		s.logger.InfoContext(ctx, "indexed video", "video_id", videoID, "segments", len(segments), "chunks", len(chunks))
		return chunks, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Chunk), nil
}

func (s *Service) cached(videoID string) ([]models.Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.videos[videoID]
	if !ok {
		return nil, false
	}
	s.lru.MoveToFront(el)
	return el.Value.(*cachedVideo).chunks, true
}

func (s *Service) remember(ctx context.Context, videoID string, chunks []models.Chunk) {
	var evicted []string

	s.mu.Lock()
	if el, ok := s.videos[videoID]; ok {
		s.lru.MoveToFront(el)
	} else {
		s.videos[videoID] = s.lru.PushFront(&cachedVideo{id: videoID, chunks: chunks})
	}
	for s.lru.Len() > s.config.MaxVideos {
		oldest := s.lru.Back()
		v := s.lru.Remove(oldest).(*cachedVideo)
		delete(s.videos, v.id)
		evicted = append(evicted, v.id)
	}
	s.mu.Unlock()

	for _, id := range evicted {
		s.logger.InfoContext(ctx, "evicting video", "video_id", id)
		s.removeIndex(ctx, id)
	}
}

func (s *Service) removeIndex(ctx context.Context, videoID string) {
	if err := s.deps.Index.Remove(ctx, videoID); err != nil {
		s.logger.WarnContext(ctx, "failed to remove index", "video_id", videoID, "error", err)
	}
}

// Cached reports whether videoID is currently held in the cache.
func (s *Service) Cached(videoID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.videos[videoID]
	return ok
}
