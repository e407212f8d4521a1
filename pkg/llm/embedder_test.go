package llm_test

import (
	"context"
	"errors"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vidrag/pkg/llm"
)

type slowEmbedder struct{}

func (slowEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	emb := llm.WithTimeout(slowEmbedder{}, 20*time.Millisecond)

	_, err := emb.EmbedQuery(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, llm.KindTimeout, llm.KindOf(err))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 1}, []float32{-1, -1}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
		{"empty", nil, nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := llm.CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.False(t, math.IsNaN(got))
		})
	}

	a := []float32{0.3, -0.2, 0.9}
	b := []float32{0.1, 0.4, 0.5}
	assert.InDelta(t, llm.CosineSimilarity(a, b), llm.CosineSimilarity(b, a), 1e-12)
}

func TestCreateEmbedding(t *testing.T) {
	// Needs a running Ollama server with nomic-embed-text pulled.
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	if baseURL == "" {
		t.Skip("OLLAMA_BASE_URL not set")
	}

	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{BaseURL: baseURL})
	require.NoError(t, err)

	vectors, err := emb.EmbedDocuments(context.Background(), []string{"first chunk", "second chunk"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for i := range vectors {
		assert.Equal(t, 768, len(vectors[i]))
	}
}
