// Package extract turns a transcript into entities, a timeline, key facts
// and relationships.
package extract

import (
	"context"

	"github.com/xhad/vidrag/internal/models"
)

// Extractor never returns an error; failures come back as an Extraction
// with Success false.
type Extractor interface {
	Extract(ctx context.Context, transcript string) models.Extraction
}

const (
	StrategyLLM = "llm"
	StrategyNER = "ner"
)
