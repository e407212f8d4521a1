package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/vidrag/internal/fakes"
	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/pkg/processor"
	"github.com/xhad/vidrag/pkg/store"
)

var sampleChunks = []models.Chunk{
	{Text: "Photosynthesis converts sunlight into chemical energy in plants.", StartSeconds: 0},
	{Text: "The stock market fell sharply after the interest rate decision.", StartSeconds: 45.5},
	{Text: "Chlorophyll absorbs sunlight, driving photosynthesis in leaves.", StartSeconds: 90},
	{Text: "Football fans celebrated the championship late into the night.", StartSeconds: 130},
}

func newLexical() *store.LexicalIndex {
	return store.NewLexicalIndex(processor.NewWithConfig(processor.ProcessorConfig{}).Tokenize)
}

func TestLexicalIndex_Query(t *testing.T) {
	ctx := context.Background()
	idx := newLexical()
	require.NoError(t, idx.Build(ctx, "v1", sampleChunks))

	results, err := idx.Query(ctx, "v1", "how does photosynthesis use sunlight?", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Contains(t, []float64{0, 90}, results[0].StartSeconds)
	assert.Contains(t, []float64{0, 90}, results[1].StartSeconds)
	assert.Greater(t, results[1].Score, 0.1)
	assert.Equal(t, 0.0, results[2].Score)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 1.0+1e-9)
	}
}

func TestLexicalIndex_ExactMatchScoresOne(t *testing.T) {
	ctx := context.Background()
	idx := newLexical()
	require.NoError(t, idx.Build(ctx, "v1", sampleChunks))

	results, err := idx.Query(ctx, "v1", sampleChunks[3].Text, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, sampleChunks[3].Text, results[0].Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestLexicalIndex_EmptyCases(t *testing.T) {
	ctx := context.Background()
	idx := newLexical()

	results, err := idx.Query(ctx, "missing", "anything", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)

	require.NoError(t, idx.Build(ctx, "empty", nil))
	results, err = idx.Query(ctx, "empty", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, idx.Build(ctx, "v1", sampleChunks))
	results, err = idx.Query(ctx, "v1", "quantum entanglement", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0.0, results[0].Score)

	assert.NoError(t, idx.Remove(ctx, "never-built"))
}

func TestLexicalIndex_BuildIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := newLexical()
	require.NoError(t, idx.Build(ctx, "v1", sampleChunks[:1]))
	require.NoError(t, idx.Build(ctx, "v1", sampleChunks))

	results, err := idx.Query(ctx, "v1", "photosynthesis", 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	require.NoError(t, idx.Remove(ctx, "v1"))
	require.NoError(t, idx.Build(ctx, "v1", sampleChunks))
	results, err = idx.Query(ctx, "v1", "photosynthesis", 10)
	require.NoError(t, err)
	assert.Len(t, results, 4)
}

func TestMemoryIndex_EmbedsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	emb := &fakes.Embedder{}
	idx := store.Serialize(store.NewMemoryIndex(emb))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, idx.Build(ctx, "v1", sampleChunks))
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), emb.DocumentCalls())

	results, err := idx.Query(ctx, "v1", "stock market interest rate", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 45.5, results[0].StartSeconds)
	assert.Greater(t, results[0].Score, 0.0)
}

func TestMemoryIndex_UnknownVideo(t *testing.T) {
	emb := &fakes.Embedder{}
	idx := store.NewMemoryIndex(emb)

	results, err := idx.Query(context.Background(), "nope", "q", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, int64(0), emb.QueryCalls())
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	tokenize := processor.NewWithConfig(processor.ProcessorConfig{}).Tokenize

	idx, err := store.New(ctx, store.Config{}, nil, tokenize)
	require.NoError(t, err)
	assert.IsType(t, &store.Serialized{}, idx)

	_, err = store.New(ctx, store.Config{Backend: store.BackendMemory}, nil, tokenize)
	assert.Error(t, err)

	_, err = store.New(ctx, store.Config{Backend: "faiss"}, &fakes.Embedder{}, tokenize)
	assert.Error(t, err)

	assert.Equal(t, 0.1, store.DefaultMinScore(store.BackendLexical))
	assert.Equal(t, 0.0, store.DefaultMinScore(store.BackendPgVector))
}
