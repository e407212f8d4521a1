// Package fakes holds in-process stand-ins for the external collaborators
// used across package tests.
package fakes

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
	"github.com/xhad/vidrag/pkg/transcript"
)

// Generator answers prompts through Respond, or with Reply when Respond is
// nil. Every prompt is recorded.
type Generator struct {
	Reply   string
	Err     error
	Respond func(prompt string) (string, error)

	mu      sync.Mutex
	prompts []string
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	return g.answer(prompt)
}

func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return g.answer(prompt)
}

func (g *Generator) answer(prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.Respond != nil {
		return g.Respond(prompt)
	}
	if g.Err != nil {
		return "", g.Err
	}
	return g.Reply, nil
}

// Prompts returns a copy of the recorded prompts.
func (g *Generator) Prompts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// EmbedDim is the width of vectors produced by Embedder.
const EmbedDim = 64

// Embedder hashes lower-cased words into a fixed width bag-of-words vector,
// so texts sharing words have positive cosine similarity.
type Embedder struct {
	Err error

	docCalls   atomic.Int64
	queryCalls atomic.Int64
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.docCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Vector(text)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.queryCalls.Add(1)
	if e.Err != nil {
		return nil, e.Err
	}
	return Vector(text), nil
}

func (e *Embedder) DocumentCalls() int64 { return e.docCalls.Load() }
func (e *Embedder) QueryCalls() int64    { return e.queryCalls.Load() }

// Vector is the deterministic embedding used by Embedder.
func Vector(text string) []float32 {
	v := make([]float32, EmbedDim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if word == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(word))
		v[h.Sum32()%EmbedDim]++
	}
	return v
}

// Source serves transcripts from a map and counts fetches per video.
type Source struct {
	Segments map[string][]models.TranscriptSegment
	Err      error

	mu        sync.Mutex
	counts    map[string]int
	forgotten []string
}

// ErrNotFound is returned for videos missing from Segments.
var ErrNotFound = transcript.ErrNotFound

func (s *Source) Fetch(ctx context.Context, videoID string) ([]models.TranscriptSegment, error) {
	s.mu.Lock()
	if s.counts == nil {
		s.counts = make(map[string]int)
	}
	s.counts[videoID]++
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	segs, ok := s.Segments[videoID]
	if !ok {
		return nil, ErrNotFound
	}
	return segs, nil
}

func (s *Source) Fetches(videoID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[videoID]
}

// Forget records videoID, like a caching source dropping its copy.
func (s *Source) Forget(ctx context.Context, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forgotten = append(s.forgotten, videoID)
	return nil
}

func (s *Source) Forgotten() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.forgotten...)
}

// Analyzer returns a canned NER document.
type Analyzer struct {
	Doc types.NERDocument
	Err error
}

func (a *Analyzer) Analyze(ctx context.Context, text string) (types.NERDocument, error) {
	if a.Err != nil {
		return types.NERDocument{}, a.Err
	}
	return a.Doc, nil
}

// Segments builds one segment per text, each starting duration seconds after
// the previous one.
func Segments(duration float64, texts ...string) []models.TranscriptSegment {
	segs := make([]models.TranscriptSegment, len(texts))
	for i, text := range texts {
		segs[i] = models.TranscriptSegment{
			Text:            text,
			StartSeconds:    float64(i) * duration,
			DurationSeconds: duration,
		}
	}
	return segs
}
