package types

import (
	"context"

	"github.com/xhad/vidrag/internal/models"
)

// Core interfaces

// Generator is the text/JSON completion capability.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string) (string, error)
}

// Embedder matches langchaingo's embeddings.Embedder so its implementations
// plug in directly.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type TranscriptSource interface {
	Fetch(ctx context.Context, videoID string) ([]models.TranscriptSegment, error)
}

// Index is one logical search index per video id.
type Index interface {
	// Build is a no-op when the video already has stored chunks.
	Build(ctx context.Context, videoID string, chunks []models.Chunk) error
	// Query returns up to k chunks, best first. Unknown videos yield no results.
	Query(ctx context.Context, videoID, query string, k int) ([]models.RetrievedChunk, error)
	Remove(ctx context.Context, videoID string) error
	Close()
}

// Span offsets are byte offsets into the analyzed text, so text[Start:End]
// is the span itself.
type Span struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start_char"`
	End   int    `json:"end_char"`
}

// SentenceSpan uses byte offsets like Span.
type SentenceSpan struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type NERDocument struct {
	Entities  []Span         `json:"entities"`
	Sentences []SentenceSpan `json:"sentences"`
}

type NERAnalyzer interface {
	Analyze(ctx context.Context, text string) (NERDocument, error)
}

type JobStore interface {
	Put(ctx context.Context, job models.Job) error
	Get(ctx context.Context, id string) (models.Job, error)
	Close() error
}
