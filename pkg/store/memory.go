package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
	"github.com/xhad/vidrag/pkg/llm"
)

// MemoryIndex is a semantic index holding chunk embeddings in process memory.
type MemoryIndex struct {
	embedder types.Embedder

	mu     sync.RWMutex
	videos map[string][]embeddedChunk
}

type embeddedChunk struct {
	chunk  models.Chunk
	vector []float32
}

func NewMemoryIndex(embedder types.Embedder) *MemoryIndex {
	return &MemoryIndex{
		embedder: embedder,
		videos:   make(map[string][]embeddedChunk),
	}
}

func (mi *MemoryIndex) Build(ctx context.Context, videoID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	mi.mu.RLock()
	existing := len(mi.videos[videoID])
	mi.mu.RUnlock()
	if existing > 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := mi.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	entries := make([]embeddedChunk, len(chunks))
	for i, chunk := range chunks {
		entries[i] = embeddedChunk{chunk: chunk, vector: vectors[i]}
	}

	mi.mu.Lock()
	defer mi.mu.Unlock()
	if len(mi.videos[videoID]) == 0 {
		mi.videos[videoID] = entries
	}
	return nil
}

func (mi *MemoryIndex) Query(ctx context.Context, videoID, query string, k int) ([]models.RetrievedChunk, error) {
	mi.mu.RLock()
	entries := mi.videos[videoID]
	mi.mu.RUnlock()
	if len(entries) == 0 || k <= 0 {
		return []models.RetrievedChunk{}, nil
	}

	qv, err := mi.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := make([]models.RetrievedChunk, len(entries))
	for i, e := range entries {
		// cosine distance is 1 - similarity, so 1 - distance is the similarity
		results[i] = models.RetrievedChunk{Chunk: e.chunk, Score: llm.CosineSimilarity(qv, e.vector)}
	}
	return topK(results, k), nil
}

func (mi *MemoryIndex) Remove(ctx context.Context, videoID string) error {
	mi.mu.Lock()
	delete(mi.videos, videoID)
	mi.mu.Unlock()
	return nil
}

func (mi *MemoryIndex) Close() {}
