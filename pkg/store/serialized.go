package store

import (
	"context"
	"sync"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
)

// Serialized funnels every Build through one lock so concurrent requests
// for the same video cannot both pass the emptiness check and write twice.
// Query and Remove go straight to the wrapped index.
type Serialized struct {
	types.Index
	mu sync.Mutex
}

func Serialize(idx types.Index) *Serialized {
	return &Serialized{Index: idx}
}

func (s *Serialized) Build(ctx context.Context, videoID string, chunks []models.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Index.Build(ctx, videoID, chunks)
}
