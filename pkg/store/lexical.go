package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/xhad/vidrag/internal/models"
)

// Tokenizer splits text into index terms.
type Tokenizer func(text string) []string

// LexicalIndex ranks chunks by cosine similarity of TF-IDF vectors. It keeps
// one model per video in memory.
type LexicalIndex struct {
	tokenize Tokenizer

	mu     sync.RWMutex
	videos map[string]*tfidfModel
}

type tfidfModel struct {
	chunks  []models.Chunk
	idf     map[string]float64
	vectors []sparseVector
}

type sparseVector map[string]float64

func NewLexicalIndex(tokenize Tokenizer) *LexicalIndex {
	return &LexicalIndex{
		tokenize: tokenize,
		videos:   make(map[string]*tfidfModel),
	}
}

func (li *LexicalIndex) Build(ctx context.Context, videoID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	li.mu.RLock()
	_, exists := li.videos[videoID]
	li.mu.RUnlock()
	if exists {
		return nil
	}

	model := fitTFIDF(chunks, li.tokenize)

	li.mu.Lock()
	defer li.mu.Unlock()
	if _, exists := li.videos[videoID]; !exists {
		li.videos[videoID] = model
	}
	return nil
}

func (li *LexicalIndex) Query(ctx context.Context, videoID, query string, k int) ([]models.RetrievedChunk, error) {
	li.mu.RLock()
	model, ok := li.videos[videoID]
	li.mu.RUnlock()
	if !ok || k <= 0 {
		return []models.RetrievedChunk{}, nil
	}

	qv := model.vectorize(li.tokenize(query))
	results := make([]models.RetrievedChunk, len(model.chunks))
	for i, chunk := range model.chunks {
		results[i] = models.RetrievedChunk{Chunk: chunk, Score: dot(qv, model.vectors[i])}
	}
	return topK(results, k), nil
}

func (li *LexicalIndex) Remove(ctx context.Context, videoID string) error {
	li.mu.Lock()
	delete(li.videos, videoID)
	li.mu.Unlock()
	return nil
}

func (li *LexicalIndex) Close() {}

// fitTFIDF uses raw term counts and smoothed idf, ln((1+n)/(1+df)) + 1, with
// every vector L2 normalised so a dot product is the cosine.
func fitTFIDF(chunks []models.Chunk, tokenize Tokenizer) *tfidfModel {
	counts := make([]map[string]float64, len(chunks))
	df := make(map[string]int)
	for i, chunk := range chunks {
		tf := make(map[string]float64)
		for _, term := range tokenize(chunk.Text) {
			tf[term]++
		}
		for term := range tf {
			df[term]++
		}
		counts[i] = tf
	}

	n := float64(len(chunks))
	idf := make(map[string]float64, len(df))
	for term, d := range df {
		idf[term] = math.Log((1+n)/(1+float64(d))) + 1
	}

	model := &tfidfModel{
		chunks:  append([]models.Chunk(nil), chunks...),
		idf:     idf,
		vectors: make([]sparseVector, len(chunks)),
	}
	for i, tf := range counts {
		model.vectors[i] = model.weigh(tf)
	}
	return model
}

func (m *tfidfModel) vectorize(terms []string) sparseVector {
	tf := make(map[string]float64)
	for _, term := range terms {
		if _, known := m.idf[term]; known {
			tf[term]++
		}
	}
	return m.weigh(tf)
}

func (m *tfidfModel) weigh(tf map[string]float64) sparseVector {
	v := make(sparseVector, len(tf))
	var norm float64
	for term, count := range tf {
		w := count * m.idf[term]
		v[term] = w
		norm += w * w
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	for term := range v {
		v[term] /= norm
	}
	return v
}

func dot(a, b sparseVector) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for term, w := range a {
		sum += w * b[term]
	}
	return sum
}

// topK sorts by descending score, keeping index order among ties.
func topK(results []models.RetrievedChunk, k int) []models.RetrievedChunk {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
