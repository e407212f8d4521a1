package rag

import (
	"context"
	"fmt"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
)

const DefaultTopK = 5

// Retriever queries an index and drops chunks whose score is not strictly
// above minScore.
type Retriever struct {
	index    types.Index
	minScore float64
}

func NewRetriever(index types.Index, minScore float64) *Retriever {
	return &Retriever{index: index, minScore: minScore}
}

// Retrieve returns the surviving chunks, best first, and the score of the
// first of them (0 when none survive).
func (r *Retriever) Retrieve(ctx context.Context, videoID, query string, k int) ([]models.RetrievedChunk, float64, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	results, err := r.index.Query(ctx, videoID, query, k)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query index: %w", err)
	}

	kept := make([]models.RetrievedChunk, 0, len(results))
	for _, rc := range results {
		if rc.Score > r.minScore {
			kept = append(kept, rc)
		}
	}

	if len(kept) == 0 {
		return kept, 0, nil
	}
	return kept, kept[0].Score, nil
}
