package rag

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
)

// Synthesizer writes an answer grounded in retrieved chunks.
type Synthesizer struct {
	gen types.Generator
}

func NewSynthesizer(gen types.Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

// RenderContext formats chunks as "[Time: Ns] text" blocks separated by a
// blank line, N being the start time rounded down to whole seconds.
func RenderContext(chunks []models.RetrievedChunk) string {
	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("[Time: %ds] %s", int64(math.Floor(c.StartSeconds)), c.Text)
	}
	return strings.Join(blocks, "\n\n")
}

// Synthesize makes one generation call. It returns the answer and the
// context text the answer was grounded in.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, chunks []models.RetrievedChunk) (string, string, error) {
	contextText := RenderContext(chunks)
	answer, err := s.gen.Generate(ctx, qaPrompt(contextText, question))
	if err != nil {
		return "", contextText, fmt.Errorf("failed to generate answer: %w", err)
	}
	return answer, contextText, nil
}
