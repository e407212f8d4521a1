package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
)

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	APIKey     string // Zilliz Cloud
	Collection string
	VectorDim  int
}

// MilvusIndex keeps chunk embeddings in a Milvus collection filtered by
// video id. Search uses the COSINE metric, whose score is already the
// similarity.
type MilvusIndex struct {
	config   MilvusConfig
	mc       client.Client
	embedder types.Embedder
}

func NewMilvusIndex(ctx context.Context, config MilvusConfig, embedder types.Embedder) (*MilvusIndex, error) {
	if config.Address == "" {
		config.Address = "localhost:19530"
	}
	if config.Collection == "" {
		config.Collection = "video_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 768
	}

	mc, err := client.NewClient(ctx, client.Config{
		Address:  config.Address,
		Username: config.Username,
		Password: config.Password,
		APIKey:   config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	mi := &MilvusIndex{config: config, mc: mc, embedder: embedder}
	if err := mi.ensureCollection(ctx); err != nil {
		mc.Close()
		return nil, err
	}
	return mi, nil
}

func (mi *MilvusIndex) ensureCollection(ctx context.Context) error {
	coll := mi.config.Collection
	has, err := mi.mc.HasCollection(ctx, coll)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !has {
		schema := entity.NewSchema().WithName(coll).WithDescription("transcript chunks")
		schema.WithField(entity.NewField().WithName("id").WithIsAutoID(true).WithIsPrimaryKey(true).WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("video_id").WithDataType(entity.FieldTypeVarChar).WithMaxLength(128))
		schema.WithField(entity.NewField().WithName("chunk_index").WithDataType(entity.FieldTypeInt64))
		schema.WithField(entity.NewField().WithName("start").WithDataType(entity.FieldTypeDouble))
		schema.WithField(entity.NewField().WithName("text").WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535))
		schema.WithField(entity.NewField().WithName("vector").WithDataType(entity.FieldTypeFloatVector).WithDim(int64(mi.config.VectorDim)))

		if err := mi.mc.CreateCollection(ctx, schema, 2); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		idx, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("failed to build index params: %w", err)
		}
		if err := mi.mc.CreateIndex(ctx, coll, "vector", idx, false, client.WithIndexName("idx_vector")); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	if err := mi.mc.LoadCollection(ctx, coll, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	return nil
}

func videoFilter(videoID string) string {
	return fmt.Sprintf(`video_id == "%s"`, strings.ReplaceAll(videoID, `"`, `\"`))
}

func (mi *MilvusIndex) hasVideo(ctx context.Context, videoID string) (bool, error) {
	res, err := mi.mc.Query(ctx, mi.config.Collection, nil, videoFilter(videoID), []string{"id"},
		client.WithLimit(1),
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return false, fmt.Errorf("failed to check existing chunks: %w", err)
	}
	for _, col := range res {
		if col.Len() > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (mi *MilvusIndex) Build(ctx context.Context, videoID string, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	exists, err := mi.hasVideo(ctx, videoID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	vectors, err := mi.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	videoIDs := make([]string, len(chunks))
	indexes := make([]int64, len(chunks))
	starts := make([]float64, len(chunks))
	for i, chunk := range chunks {
		videoIDs[i] = videoID
		indexes[i] = int64(i)
		starts[i] = chunk.StartSeconds
	}

	_, err = mi.mc.Insert(ctx, mi.config.Collection, "",
		entity.NewColumnVarChar("video_id", videoIDs),
		entity.NewColumnInt64("chunk_index", indexes),
		entity.NewColumnDouble("start", starts),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnFloatVector("vector", mi.config.VectorDim, vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}
	return nil
}

func (mi *MilvusIndex) Query(ctx context.Context, videoID, query string, k int) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return []models.RetrievedChunk{}, nil
	}

	v, err := mi.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sp, err := entity.NewIndexHNSWSearchParam(74)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	res, err := mi.mc.Search(ctx, mi.config.Collection, nil, videoFilter(videoID),
		[]string{"start", "text"}, []entity.Vector{entity.FloatVector(v)},
		"vector", entity.COSINE, k, sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong))
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := []models.RetrievedChunk{}
	for _, r := range res {
		var starts []float64
		var texts []string
		for _, col := range r.Fields {
			switch c := col.(type) {
			case *entity.ColumnDouble:
				if c.Name() == "start" {
					starts = c.Data()
				}
			case *entity.ColumnVarChar:
				if c.Name() == "text" {
					texts = c.Data()
				}
			}
		}
		for i := 0; i < r.ResultCount && i < len(r.Scores); i++ {
			var rc models.RetrievedChunk
			if i < len(texts) {
				rc.Text = texts[i]
			}
			if i < len(starts) {
				rc.StartSeconds = starts[i]
			}
			rc.Score = float64(r.Scores[i])
			results = append(results, rc)
		}
	}
	return topK(results, k), nil
}

func (mi *MilvusIndex) Remove(ctx context.Context, videoID string) error {
	if err := mi.mc.Delete(ctx, mi.config.Collection, "", videoFilter(videoID)); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	return nil
}

func (mi *MilvusIndex) Close() {
	if mi.mc != nil {
		mi.mc.Close()
	}
}
