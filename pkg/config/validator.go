package config

import (
	"fmt"
	"net/url"
	"slices"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, msg string) {
		errors = append(errors, ValidationError{Field: field, Message: msg})
	}

	// Validate LLM config
	switch c.LLM.Provider {
	case "ollama":
		if c.LLM.BaseURL == "" {
			add("llm.base_url", "Ollama base URL is required")
		} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
			add("llm.base_url", "invalid Ollama base URL")
		}
	case "openai":
		if c.LLM.APIKey == "" {
			add("llm.api_key", "OpenAI API key is required (set OPENAI_API_KEY)")
		}
	default:
		add("llm.provider", fmt.Sprintf("unknown provider %q", c.LLM.Provider))
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		add("llm.max_tokens", "max_tokens must be between 1 and 8192")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		add("llm.temperature", "temperature must be between 0 and 1")
	}

	if c.LLM.Timeout <= 0 {
		add("llm.timeout", "timeout must be positive")
	}

	// Validate Index config
	switch c.Index.Backend {
	case "lexical", "memory", "milvus":
	case "pgvector":
		if c.Index.Database.URL == "" {
			add("index.database.url", "database URL is required for the pgvector backend")
		}
	default:
		add("index.backend", fmt.Sprintf("unknown backend %q", c.Index.Backend))
	}

	if c.Index.MinScore != nil && (*c.Index.MinScore < 0 || *c.Index.MinScore >= 1) {
		add("index.min_score", "min_score must be in [0, 1)")
	}

	if c.Index.TopK < 1 {
		add("index.top_k", "top_k must be positive")
	}

	if c.Index.Database.VectorDim < 1 {
		add("index.database.vector_dim", "vector_dim must be positive")
	}

	if c.Index.Database.BatchSize < 1 {
		add("index.database.batch_size", "batch_size must be positive")
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		add("processor.chunk_size", "chunk_size must be positive")
	}

	// Validate Transcript config
	switch c.Transcript.Source {
	case "youtube":
	case "file":
		if c.Transcript.Dir == "" {
			add("transcript.dir", "dir is required for the file source")
		}
	default:
		add("transcript.source", fmt.Sprintf("unknown source %q", c.Transcript.Source))
	}

	if c.Transcript.RateLimit <= 0 {
		add("transcript.rate_limit", "rate_limit must be positive")
	}

	// Validate Extraction config
	switch c.Extraction.Strategy {
	case "llm":
	case "ner":
		if c.Extraction.NERURL == "" {
			add("extraction.ner_url", "ner_url is required for the ner strategy")
		}
	default:
		add("extraction.strategy", fmt.Sprintf("unknown strategy %q", c.Extraction.Strategy))
	}

	if c.Extraction.MaxChars < 1 {
		add("extraction.max_chars", "max_chars must be positive")
	}

	// Validate Jobs config
	if c.Jobs.Workers < 1 {
		add("jobs.workers", "workers must be positive")
	}

	if c.Jobs.QueueSize < 1 {
		add("jobs.queue_size", "queue_size must be positive")
	}

	if !slices.Contains([]string{"memory", "redis"}, c.Jobs.Store) {
		add("jobs.store", fmt.Sprintf("unknown store %q", c.Jobs.Store))
	}

	switch c.Jobs.Transport {
	case "local":
	case "amqp":
		if c.Jobs.AMQPURL == "" {
			add("jobs.amqp_url", "amqp_url is required for the amqp transport (set RABBITMQ_URL)")
		}
	default:
		add("jobs.transport", fmt.Sprintf("unknown transport %q", c.Jobs.Transport))
	}

	// Validate Server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535")
	}

	if c.Server.MaxVideos < 1 {
		add("server.max_videos", "max_videos must be positive")
	}

	return errors
}
