package llm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/vidrag/internal/types"
)

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Model     string
	BaseURL   string // Ollama server URL
	BatchSize int
	Timeout   time.Duration
}

// NewEmbedderWithConfig returns an Ollama backed embedder whose calls are
// bounded by config.Timeout.
func NewEmbedderWithConfig(config EmbedderConfig) (types.Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest" // Default Ollama model
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}

	client, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding model: %w", err)
	}

	emb, err := embeddings.NewEmbedder(client, embeddings.WithBatchSize(config.BatchSize))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return WithTimeout(emb, config.Timeout), nil
}

type timeoutEmbedder struct {
	inner   types.Embedder
	timeout time.Duration
}

// WithTimeout bounds each embedding call. A non-positive timeout means
// DefaultTimeout.
func WithTimeout(e types.Embedder, timeout time.Duration) types.Embedder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &timeoutEmbedder{inner: e, timeout: timeout}
}

func (e *timeoutEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vectors, err := e.inner.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to create embeddings: %w", err))
	}
	return vectors, nil
}

func (e *timeoutEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	vector, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to create query embedding: %w", err))
	}
	return vector, nil
}

// CosineSimilarity returns dot(a,b) / (|a| |b|), or 0 when the vectors differ
// in length or either has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
