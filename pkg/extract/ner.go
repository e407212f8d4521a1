package extract

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
	"github.com/xhad/vidrag/pkg/processor"
)

const (
	maxRelationships  = 20
	maxContextChars   = 200
	leaderboardLength = 5
)

// Categories lists the entity labels kept, in output order.
var Categories = []string{
	"PERSON", "ORG", "GPE", "LOC", "DATE", "TIME", "MONEY",
	"PERCENT", "EVENT", "PRODUCT", "LAW", "LANGUAGE", "NORP",
}

var numberPattern = regexp.MustCompile(`\b\d+(?:,\d{3})*(?:\.\d+)?\b`)

// NERExtractor derives the extraction from spans returned by an NER
// analyzer. Sentence boundaries come from the analyzer when it reports them
// and from processor.SplitSentences otherwise.
type NERExtractor struct {
	analyzer types.NERAnalyzer
	logger   *slog.Logger
}

func NewNERExtractor(analyzer types.NERAnalyzer, logger *slog.Logger) *NERExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &NERExtractor{analyzer: analyzer, logger: logger}
}

func (e *NERExtractor) Extract(ctx context.Context, transcript string) models.Extraction {
	doc, err := e.analyzer.Analyze(ctx, transcript)
	if err != nil {
		e.logger.WarnContext(ctx, "ner analysis failed", "error", err)
		return models.FailedExtraction(fmt.Errorf("failed to analyze transcript: %w", err))
	}

	sentences := doc.Sentences
	if len(sentences) == 0 {
		for _, s := range processor.SplitSentences(transcript) {
			sentences = append(sentences, types.SentenceSpan{Start: s.Start, End: s.End})
		}
	}

	spans := normalizeSpans(doc.Entities)
	entities := groupEntities(spans)

	return models.Extraction{
		Success:       true,
		Entities:      entities,
		Timeline:      buildTimeline(transcript, spans, sentences),
		KeyFacts:      keyFacts(transcript, spans, entities, sentences),
		Relationships: relationships(transcript, entities, sentences),
	}
}

func normalizeSpans(in []types.Span) []types.Span {
	out := make([]types.Span, 0, len(in))
	for _, s := range in {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Label == "ORGANIZATION" {
			s.Label = "ORG"
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// groupEntities keeps the first span for each (label, lower-cased text).
func groupEntities(spans []types.Span) map[string][]models.Entity {
	known := make(map[string]bool, len(Categories))
	for _, c := range Categories {
		known[c] = true
	}

	seen := make(map[string]bool)
	grouped := make(map[string][]models.Entity)
	for _, s := range spans {
		if !known[s.Label] {
			continue
		}
		key := s.Label + ":" + strings.ToLower(s.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		grouped[s.Label] = append(grouped[s.Label], models.Entity{
			Text:  s.Text,
			Label: s.Label,
			Start: s.Start,
			End:   s.End,
		})
	}
	return grouped
}

func sentenceAt(text string, sentences []types.SentenceSpan, pos int) string {
	for _, s := range sentences {
		if validSpan(text, s) && pos >= s.Start && pos < s.End {
			return strings.TrimSpace(text[s.Start:s.End])
		}
	}
	return ""
}

func validSpan(text string, s types.SentenceSpan) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= len(text)
}

func buildTimeline(text string, spans []types.Span, sentences []types.SentenceSpan) []models.TimelineEntry {
	var timeline []models.TimelineEntry
	seen := make(map[string]bool)
	for _, s := range spans {
		if s.Label != "DATE" {
			continue
		}
		key := strings.ToLower(s.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		timeline = append(timeline, models.TimelineEntry{
			Date:     s.Text,
			Context:  sentenceAt(text, sentences, s.Start),
			Position: s.Start,
		})
	}
	return timeline
}

func keyFacts(text string, spans []types.Span, entities map[string][]models.Entity, sentences []types.SentenceSpan) *models.KeyFacts {
	questions := 0
	for _, s := range sentences {
		if validSpan(text, s) && strings.Contains(text[s.Start:s.End], "?") {
			questions++
		}
	}

	return &models.KeyFacts{
		PeopleMentioned:  len(entities["PERSON"]),
		Organizations:    len(entities["ORG"]),
		Locations:        len(entities["GPE"]) + len(entities["LOC"]),
		DatesMentioned:   len(entities["DATE"]),
		NumbersMentioned: len(numberPattern.FindAllString(text, -1)),
		QuestionsAsked:   questions,
		TopPeople:        leaderboard(spans, "PERSON"),
		TopOrganizations: leaderboard(spans, "ORG"),
		TopLocations:     leaderboard(spans, "GPE", "LOC"),
	}
}

// leaderboard counts every mention with one of labels and returns the most
// frequent names, ties broken by first appearance.
func leaderboard(spans []types.Span, labels ...string) []models.Mention {
	counts := make(map[string]int)
	var order []string
	for _, s := range spans {
		for _, l := range labels {
			if s.Label != l {
				continue
			}
			if counts[s.Text] == 0 {
				order = append(order, s.Text)
			}
			counts[s.Text]++
		}
	}

	board := make([]models.Mention, 0, len(order))
	for _, name := range order {
		board = append(board, models.Mention{Name: name, Mentions: counts[name]})
	}
	sort.SliceStable(board, func(i, j int) bool { return board[i].Mentions > board[j].Mentions })
	if len(board) > leaderboardLength {
		board = board[:leaderboardLength]
	}
	return board
}

func entityNames(entities map[string][]models.Entity, labels ...string) []string {
	var names []string
	for _, l := range labels {
		for _, e := range entities[l] {
			names = append(names, e.Text)
		}
	}
	return names
}

func containedIn(sentence string, names []string) []string {
	var found []string
	for _, n := range names {
		if strings.Contains(sentence, n) {
			found = append(found, n)
		}
	}
	return found
}

// relationships pairs entities mentioned in the same sentence, keeping the
// first occurrence of each (type, entity1, entity2).
func relationships(text string, entities map[string][]models.Entity, sentences []types.SentenceSpan) []models.Relationship {
	people := entityNames(entities, "PERSON")
	orgs := entityNames(entities, "ORG")
	locations := entityNames(entities, "GPE", "LOC")

	var rels []models.Relationship
	seen := make(map[[3]string]bool)
	add := func(kind, a, b, excerpt string) {
		key := [3]string{kind, a, b}
		if seen[key] || len(rels) >= maxRelationships {
			return
		}
		seen[key] = true
		rels = append(rels, models.Relationship{Type: kind, Entity1: a, Entity2: b, Context: excerpt})
	}

	for _, s := range sentences {
		if !validSpan(text, s) {
			continue
		}
		sentence := text[s.Start:s.End]
		excerpt := truncate(sentence, maxContextChars)

		sentPeople := containedIn(sentence, people)
		sentOrgs := containedIn(sentence, orgs)
		sentLocations := containedIn(sentence, locations)

		for _, p := range sentPeople {
			for _, o := range sentOrgs {
				add("PERSON-ORG", p, o, excerpt)
			}
		}
		for _, p := range sentPeople {
			for _, l := range sentLocations {
				add("PERSON-LOC", p, l, excerpt)
			}
		}
		for _, o := range sentOrgs {
			for _, l := range sentLocations {
				add("ORG-LOC", o, l, excerpt)
			}
		}
	}
	return rels
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
