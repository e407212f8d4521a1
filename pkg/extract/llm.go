package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
	"github.com/xhad/vidrag/pkg/llm"
)

// LLMExtractor asks a generation model for the whole extraction as one JSON
// object.
type LLMExtractor struct {
	gen    types.Generator
	logger *slog.Logger
}

func NewLLMExtractor(gen types.Generator, logger *slog.Logger) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMExtractor{gen: gen, logger: logger}
}

type llmExtraction struct {
	Entities      map[string][]models.Entity `json:"entities"`
	Timeline      []models.TimelineEntry     `json:"timeline"`
	KeyFacts      *models.KeyFacts           `json:"key_facts"`
	Relationships []models.Relationship      `json:"relationships"`
}

func (x *llmExtraction) Validate() error {
	if x.Entities == nil && x.KeyFacts == nil {
		return errors.New("neither entities nor key_facts present")
	}
	return nil
}

func (e *LLMExtractor) Extract(ctx context.Context, transcript string) models.Extraction {
	reply, err := e.gen.GenerateJSON(ctx, entityPrompt(transcript))
	if err != nil {
		e.logger.WarnContext(ctx, "entity extraction failed", "error", err)
		return models.FailedExtraction(fmt.Errorf("failed to extract entities: %w", err))
	}

	var parsed llmExtraction
	if err := llm.DecodeJSON(reply, &parsed); err != nil {
		e.logger.WarnContext(ctx, "entity extraction returned unusable JSON", "error", err)
		return models.FailedExtraction(fmt.Errorf("failed to parse extraction: %w", err))
	}

	for label, ents := range parsed.Entities {
		if len(ents) == 0 {
			delete(parsed.Entities, label)
		}
	}

	return models.Extraction{
		Success:       true,
		Entities:      parsed.Entities,
		Timeline:      parsed.Timeline,
		KeyFacts:      parsed.KeyFacts,
		Relationships: parsed.Relationships,
	}
}

func entityPrompt(transcript string) string {
	return fmt.Sprintf(`Analyze the following video transcript and extract key named entities and facts.
Return the result as a JSON object with the following keys:
- "key_facts": { "people_mentioned": int, "organizations": int, "locations": int, "dates_mentioned": int, "smart_insights": [str], "top_people": [{ "name": str, "mentions": int }], "top_organizations": [{ "name": str, "mentions": int }], "top_locations": [{ "name": str, "mentions": int }] }
- "entities": { "PERSON": [{ "text": str }], "ORG": [{ "text": str }], "LOC": [{ "text": str }], "DATE": [{ "text": str }], "EVENT": [{ "text": str }] }
- "timeline": [{ "date": str, "context": str }]
- "relationships": [{ "type": str, "entity1": str, "entity2": str, "context": str }]

Instructions for "smart_insights":
- Provide 5 distinct, interesting, and specific facts or "Did you know?" style takeaways from the video.
- Do NOT just list what the video is about. Extract specific trivia or surprising details.

Respond ONLY with a single JSON object, no extra text.

Transcript:
%s
`, transcript)
}
