// Package store implements the per-video search indexes behind
// types.Index.
package store

import (
	"context"
	"fmt"

	"github.com/xhad/vidrag/internal/types"
)

const (
	BackendLexical  = "lexical"
	BackendMemory   = "memory"
	BackendPgVector = "pgvector"
	BackendMilvus   = "milvus"
)

type Config struct {
	Backend  string
	PgVector PgVectorConfig
	Milvus   MilvusConfig
}

// New opens the configured backend wrapped in Serialized. Semantic
// backends need an embedder; the lexical backend needs a tokenizer.
func New(ctx context.Context, config Config, embedder types.Embedder, tokenize Tokenizer) (types.Index, error) {
	var idx types.Index
	switch config.Backend {
	case "", BackendLexical:
		if tokenize == nil {
			return nil, fmt.Errorf("lexical index requires a tokenizer")
		}
		idx = NewLexicalIndex(tokenize)
	case BackendMemory:
		if embedder == nil {
			return nil, fmt.Errorf("%s index requires an embedder", config.Backend)
		}
		idx = NewMemoryIndex(embedder)
	case BackendPgVector:
		if embedder == nil {
			return nil, fmt.Errorf("%s index requires an embedder", config.Backend)
		}
		pi, err := NewPgVectorIndex(ctx, config.PgVector, embedder)
		if err != nil {
			return nil, err
		}
		idx = pi
	case BackendMilvus:
		if embedder == nil {
			return nil, fmt.Errorf("%s index requires an embedder", config.Backend)
		}
		mi, err := NewMilvusIndex(ctx, config.Milvus, embedder)
		if err != nil {
			return nil, err
		}
		idx = mi
	default:
		return nil, fmt.Errorf("unknown index backend %q", config.Backend)
	}
	return Serialize(idx), nil
}

// DefaultMinScore is the retrieval cutoff used when none is configured.
func DefaultMinScore(backend string) float64 {
	if backend == "" || backend == BackendLexical {
		return 0.1
	}
	return 0
}

// IsSemantic reports whether the backend needs an embedder.
func IsSemantic(backend string) bool {
	return backend != "" && backend != BackendLexical
}
