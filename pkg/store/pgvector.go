package store

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
)

type PgVectorConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// PgVectorIndex stores chunk embeddings in a Postgres table with the
// pgvector extension, one row per chunk keyed by video id.
type PgVectorIndex struct {
	config   PgVectorConfig
	table    string
	pool     *pgxpool.Pool
	embedder types.Embedder
}

func NewPgVectorIndex(ctx context.Context, config PgVectorConfig, embedder types.Embedder) (*PgVectorIndex, error) {
	if config.TableName == "" {
		config.TableName = "video_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pi := &PgVectorIndex{
		config:   config,
		table:    pgx.Identifier{config.TableName}.Sanitize(),
		pool:     pool,
		embedder: embedder,
	}

	if err := pi.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pi, nil
}

func (pi *PgVectorIndex) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := pi.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			video_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			content TEXT NOT NULL,
			start_seconds DOUBLE PRECISION NOT NULL,
			embedding vector(%d)
		)`, pi.table, pi.config.VectorDim)

	_, err = pi.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createVideoIndex := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (video_id)`,
		pgx.Identifier{pi.config.TableName + "_video_idx"}.Sanitize(), pi.table)
	if _, err := pi.pool.Exec(ctx, createVideoIndex); err != nil {
		return fmt.Errorf("failed to create video index: %w", err)
	}

	// Queries are always filtered to one video, so ordering must be exact.
	// An approximate index scans a few lists first and filters afterwards,
	// which can drop every chunk of a small video.
	dropVectorIndex := fmt.Sprintf(`DROP INDEX IF EXISTS %s`,
		pgx.Identifier{pi.config.TableName + "_embedding_idx"}.Sanitize())
	if _, err := pi.pool.Exec(ctx, dropVectorIndex); err != nil {
		return fmt.Errorf("failed to drop approximate index: %w", err)
	}

	return nil
}

func (pi *PgVectorIndex) Build(ctx context.Context, videoID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	var exists bool
	err := pi.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE video_id = $1)`, pi.table),
		videoID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check existing chunks: %w", err)
	}
	if exists {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = sanitizeUTF8(chunk.Text)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += pi.config.BatchSize {
		end := min(start+pi.config.BatchSize, len(texts))
		batch, err := pi.embedder.EmbedDocuments(ctx, texts[start:end])
		if err != nil {
			return fmt.Errorf("failed to create embeddings: %w", err)
		}
		vectors = append(vectors, batch...)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	tx, err := pi.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, video_id, chunk_index, content, start_seconds, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		pi.table)

	for i, chunk := range chunks {
		_, err = tx.Exec(ctx, stmt,
			fmt.Sprintf("%s_%d", videoID, i),
			videoID,
			i,
			texts[i],
			chunk.StartSeconds,
			pgvector.NewVector(vectors[i]),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (pi *PgVectorIndex) Query(ctx context.Context, videoID, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return []models.RetrievedChunk{}, nil
	}

	queryEmbedding, err := pi.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// <=> is cosine distance
	sql := fmt.Sprintf(`
		SELECT content, start_seconds, 1 - (embedding <=> $2) AS score
		FROM %s
		WHERE video_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3`,
		pi.table)

	rows, err := pi.pool.Query(ctx, sql, videoID, pgvector.NewVector(queryEmbedding), k)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	results := []models.RetrievedChunk{}
	for rows.Next() {
		var rc models.RetrievedChunk
		if err := rows.Scan(&rc.Text, &rc.StartSeconds, &rc.Score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}

	return results, nil
}

func (pi *PgVectorIndex) Remove(ctx context.Context, videoID string) error {
	_, err := pi.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE video_id = $1`, pi.table), videoID)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (pi *PgVectorIndex) Close() {
	if pi.pool != nil {
		pi.pool.Close()
	}
}

// sanitizeUTF8 drops invalid bytes, which Postgres rejects in TEXT columns.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	v := make([]rune, 0, len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			_, size := utf8.DecodeRuneInString(s[i:])
			if size == 1 {
				continue
			}
		}
		v = append(v, r)
	}
	return string(v)
}
