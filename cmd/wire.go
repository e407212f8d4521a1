package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xhad/vidrag/internal/types"
	cfgPkg "github.com/xhad/vidrag/pkg/config"
	"github.com/xhad/vidrag/pkg/extract"
	"github.com/xhad/vidrag/pkg/jobs"
	"github.com/xhad/vidrag/pkg/llm"
	"github.com/xhad/vidrag/pkg/metrics"
	"github.com/xhad/vidrag/pkg/processor"
	"github.com/xhad/vidrag/pkg/rag"
	"github.com/xhad/vidrag/pkg/store"
	"github.com/xhad/vidrag/pkg/transcript"
)

// app holds the wired components and releases them in reverse order.
type app struct {
	service *rag.Service
	manager *jobs.Manager
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// build wires every component from config. Jobs are only started when
// withJobs is set.
func build(ctx context.Context, config *cfgPkg.Config, logger *slog.Logger, withJobs bool) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	gen, embedder, err := newProvider(config.LLM)
	if err != nil {
		return nil, err
	}

	proc := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:       config.Processor.ChunkSize,
		CustomStopwords: config.Processor.CustomStopwords,
	})

	index, err := store.New(ctx, store.Config{
		Backend: config.Index.Backend,
		PgVector: store.PgVectorConfig{
			ConnString: config.Index.Database.URL,
			TableName:  config.Index.Database.TableName,
			VectorDim:  config.Index.Database.VectorDim,
			BatchSize:  config.Index.Database.BatchSize,
		},
		Milvus: store.MilvusConfig{
			Address:    config.Index.Milvus.Address,
			Username:   config.Index.Milvus.Username,
			Password:   config.Index.Milvus.Password,
			APIKey:     config.Index.Milvus.APIKey,
			Collection: config.Index.Milvus.Collection,
			VectorDim:  config.Index.Milvus.VectorDim,
		},
	}, embedder, proc.Tokenize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize index: %w", err)
	}
	a.onClose(index.Close)

	source, err := newSource(config.Transcript, logger, a)
	if err != nil {
		return nil, err
	}

	var extractor extract.Extractor
	switch config.Extraction.Strategy {
	case extract.StrategyNER:
		extractor = extract.NewNERExtractor(extract.NewHTTPAnalyzer(config.Extraction.NERURL, config.LLM.Timeout), logger)
	default:
		extractor = extract.NewLLMExtractor(gen, logger)
	}

	service, err := rag.NewService(rag.ServiceConfig{
		TopK:               config.Index.TopK,
		MinScore:           *config.Index.MinScore,
		MaxVideos:          config.Server.MaxVideos,
		MaxTranscriptChars: config.Extraction.MaxChars,
		Logger:             logger,
	}, rag.Deps{
		Source:    source,
		Processor: proc,
		Index:     index,
		Generator: gen,
		Evaluator: metrics.NewEvaluator(gen, embedder, logger),
		Extractor: extractor,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize service: %w", err)
	}
	a.service = service

	if withJobs {
		if err := a.startJobs(ctx, config.Jobs, logger); err != nil {
			return nil, err
		}
	}

	ok = true
	return a, nil
}

func newProvider(config cfgPkg.LLMConfig) (types.Generator, types.Embedder, error) {
	switch config.Provider {
	case "openai":
		oc := llm.OpenAIConfig{
			APIKey:         config.APIKey,
			BaseURL:        config.BaseURL,
			Model:          config.Model,
			EmbeddingModel: config.EmbeddingModel,
			Temperature:    config.Temperature,
			MaxTokens:      config.MaxTokens,
			Timeout:        config.Timeout,
		}
		gen, err := llm.NewOpenAIEngine(oc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize chat engine: %w", err)
		}
		emb, err := llm.NewOpenAIEmbedder(oc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return gen, emb, nil
	default:
		gen, err := llm.NewWithConfig(llm.ChatConfig{
			Model:       config.Model,
			Temperature: config.Temperature,
			MaxTokens:   config.MaxTokens,
			BaseURL:     config.BaseURL,
			Timeout:     config.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize chat engine: %w", err)
		}
		emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
			Model:   config.EmbeddingModel,
			BaseURL: config.BaseURL,
			Timeout: config.Timeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
		return gen, emb, nil
	}
}

func newSource(config cfgPkg.TranscriptConfig, logger *slog.Logger, a *app) (types.TranscriptSource, error) {
	var source types.TranscriptSource
	switch config.Source {
	case "file":
		source = transcript.FileSource{Dir: config.Dir}
	default:
		source = transcript.NewYouTubeSource(transcript.YouTubeConfig{
			Languages: config.Languages,
			RateLimit: config.RateLimit,
			Timeout:   config.Timeout,
		})
	}

	if config.CachePath == "" {
		return source, nil
	}

	cached, err := transcript.OpenCache(config.CachePath, source, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open transcript cache: %w", err)
	}
	a.onClose(func() { cached.Close() })
	return cached, nil
}

func (a *app) startJobs(ctx context.Context, config cfgPkg.JobsConfig, logger *slog.Logger) error {
	var jobStore types.JobStore
	switch config.Store {
	case "redis":
		rs, err := jobs.NewRedisStore(ctx, jobs.RedisConfig{Addr: config.RedisAddr, TTL: config.TTL})
		if err != nil {
			return fmt.Errorf("failed to initialize job store: %w", err)
		}
		jobStore = rs
	default:
		jobStore = jobs.NewMemoryStore(config.TTL)
	}
	a.onClose(func() { jobStore.Close() })

	manager, err := jobs.NewManager(jobs.ManagerConfig{
		Store:        jobStore,
		Run:          a.service.Run,
		Logger:       logger,
		ErrorMessage: rag.UserMessage,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize job manager: %w", err)
	}

	pool := jobs.NewPool(jobs.PoolConfig{
		Workers:   config.Workers,
		QueueSize: config.QueueSize,
		Logger:    logger,
	}, manager.Execute)
	pool.Start(ctx)
	a.onClose(pool.Close)

	switch config.Transport {
	case "amqp":
		queue, err := jobs.NewAMQPQueue(jobs.AMQPConfig{
			URL:      config.AMQPURL,
			Queue:    config.AMQPQueue,
			Logger:   logger,
			Prefetch: config.Workers,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize job queue: %w", err)
		}
		a.onClose(queue.Close)

		go func() {
			if err := queue.Run(ctx, pool); err != nil {
				logger.WarnContext(ctx, "job consumer stopped", "error", err)
			}
		}()
		manager.Attach(queue)
	default:
		manager.Attach(pool)
	}

	a.manager = manager
	return nil
}
