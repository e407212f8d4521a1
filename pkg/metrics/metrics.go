// Package metrics scores generated answers. Every score is fail-soft: a
// judge or embedding failure yields 0 and a warning, never an error.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
	"github.com/xhad/vidrag/pkg/llm"
	"golang.org/x/sync/errgroup"
)

// Evaluator computes the quality signal for one answer. The judge is a
// generation model asked for ratings; the embedder backs answer relevance.
type Evaluator struct {
	judge    types.Generator
	embedder types.Embedder
	logger   *slog.Logger
}

func NewEvaluator(judge types.Generator, embedder types.Embedder, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{judge: judge, embedder: embedder, logger: logger}
}

// Input carries everything one evaluation needs.
type Input struct {
	Question    string
	Answer      string
	Context     string
	GroundTruth string
	Chunks      []models.RetrievedChunk
	TopScore    float64
	Latency     time.Duration
}

// Evaluate runs every metric, the model-backed ones concurrently.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) models.EvaluationResult {
	result := models.EvaluationResult{
		Faithfulness:   Faithfulness(in.Answer, in.Context),
		LatencySeconds: math.Round(in.Latency.Seconds()*100) / 100,
		RetrievalScore: in.TopScore,
	}

	var g errgroup.Group
	g.Go(func() error {
		result.AnswerRelevance = e.AnswerRelevance(ctx, in.Question, in.Answer)
		return nil
	})
	g.Go(func() error {
		result.Coherence = e.Coherence(ctx, in.Answer)
		return nil
	})
	g.Go(func() error {
		result.Correctness = e.Correctness(ctx, in.Answer, in.GroundTruth)
		return nil
	})
	g.Go(func() error {
		rq := e.Retrieval(ctx, in.Question, in.Chunks)
		result.ContextPrecision = rq.Precision
		result.MRR = rq.MRR
		result.ContextRecallProxy = rq.RecallProxy
		return nil
	})
	_ = g.Wait()

	return result
}

// Faithfulness is the share of distinct answer words that also occur in the
// context, both lower-cased and split on whitespace.
func Faithfulness(answer, context string) float64 {
	answerWords := wordSet(answer)
	if len(answerWords) == 0 {
		return 0
	}
	contextWords := wordSet(context)

	shared := 0
	for w := range answerWords {
		if _, ok := contextWords[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(answerWords))
}

func wordSet(text string) map[string]struct{} {
	words := strings.Fields(strings.ToLower(text))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// AnswerRelevance is the cosine similarity of the question and answer
// embeddings, clamped to [0,1].
func (e *Evaluator) AnswerRelevance(ctx context.Context, question, answer string) float64 {
	if e.embedder == nil {
		return 0
	}
	vectors, err := e.embedder.EmbedDocuments(ctx, []string{question, answer})
	if err != nil || len(vectors) != 2 {
		e.logger.WarnContext(ctx, "answer relevance failed", "error", err)
		return 0
	}
	return clamp01(llm.CosineSimilarity(vectors[0], vectors[1]))
}

// Coherence asks the judge for a 1-5 clarity rating, normalised to [0,1].
func (e *Evaluator) Coherence(ctx context.Context, answer string) float64 {
	score, err := e.rate(ctx, coherencePrompt(answer))
	if err != nil {
		e.logger.WarnContext(ctx, "coherence rating failed", "error", err)
		return 0
	}
	return score
}

// Correctness rates the answer against a reference. It is nil when no
// reference was supplied.
func (e *Evaluator) Correctness(ctx context.Context, answer, groundTruth string) *float64 {
	if strings.TrimSpace(groundTruth) == "" {
		return nil
	}
	score, err := e.rate(ctx, correctnessPrompt(answer, groundTruth))
	if err != nil {
		e.logger.WarnContext(ctx, "correctness rating failed", "error", err)
		score = 0
	}
	return &score
}

func (e *Evaluator) rate(ctx context.Context, prompt string) (float64, error) {
	if e.judge == nil {
		return 0, errors.New("no judge configured")
	}
	reply, err := e.judge.Generate(ctx, prompt)
	if err != nil {
		return 0, err
	}
	score, ok := ParseRating(reply)
	if !ok {
		return 0, fmt.Errorf("unparseable rating %q", reply)
	}
	return score, nil
}

// ParseRating reads the first whitespace separated token of reply as an
// integer from 1 to 5 and returns it divided by 5.
func ParseRating(reply string) (float64, bool) {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 || n > 5 {
		return 0, false
	}
	return float64(n) / 5, true
}

// RetrievalQuality is the judge's view of the retrieved chunks.
type RetrievalQuality struct {
	Precision   float64
	MRR         float64
	RecallProxy float64
}

type verdict struct {
	RelevantChunks []float64 `json:"relevant_chunks"`
	Sufficient     bool      `json:"sufficient"`
}

func (v *verdict) Validate() error {
	if v.RelevantChunks == nil {
		return errors.New("relevant_chunks missing")
	}
	return nil
}

// Retrieval asks the judge which chunks are relevant and whether together
// they suffice. Any failure yields the zero value.
func (e *Evaluator) Retrieval(ctx context.Context, question string, chunks []models.RetrievedChunk) RetrievalQuality {
	if len(chunks) == 0 || e.judge == nil {
		return RetrievalQuality{}
	}

	reply, err := e.judge.GenerateJSON(ctx, retrievalPrompt(question, chunks))
	if err != nil {
		e.logger.WarnContext(ctx, "retrieval judge failed", "error", err)
		return RetrievalQuality{}
	}
	return ScoreVerdict(reply, len(chunks))
}

// ScoreVerdict parses a judge verdict about n chunks. raw may be text or
// already decoded data. Indices outside 1..n and repeats are ignored.
//
// The recall proxy is 1 when the judge calls the chunks sufficient and 0.5
// otherwise, so "partially relevant" and "irrelevant" are not told apart.
func ScoreVerdict(raw any, n int) RetrievalQuality {
	var v verdict
	if n <= 0 || llm.DecodeJSON(raw, &v) != nil {
		return RetrievalQuality{}
	}

	seen := make(map[int]bool)
	first := 0
	for _, f := range v.RelevantChunks {
		idx := int(f)
		if float64(idx) != f || idx < 1 || idx > n || seen[idx] {
			continue
		}
		seen[idx] = true
		if first == 0 || idx < first {
			first = idx
		}
	}

	q := RetrievalQuality{
		Precision:   float64(len(seen)) / float64(n),
		RecallProxy: 0.5,
	}
	if first > 0 {
		q.MRR = 1 / float64(first)
	}
	if v.Sufficient {
		q.RecallProxy = 1
	}
	return q
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
