package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM        LLMConfig        `yaml:"llm"`
	Index      IndexConfig      `yaml:"index"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Jobs       JobsConfig       `yaml:"jobs"`
	Server     ServerConfig     `yaml:"server"`
}

type LLMConfig struct {
	Provider       string        `yaml:"provider"` // ollama or openai
	BaseURL        string        `yaml:"base_url"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	EmbeddingModel string        `yaml:"embedding_model"`
	MaxTokens      int           `yaml:"max_tokens"`
	Temperature    float64       `yaml:"temperature"`
	Timeout        time.Duration `yaml:"timeout"`
}

type IndexConfig struct {
	Backend  string         `yaml:"backend"` // lexical, memory, pgvector or milvus
	MinScore *float64       `yaml:"min_score"`
	TopK     int            `yaml:"top_k"`
	Database DatabaseConfig `yaml:"database"`
	Milvus   MilvusConfig   `yaml:"milvus"`
}

type DatabaseConfig struct {
	URL       string `yaml:"url"`
	TableName string `yaml:"table_name"`
	VectorDim int    `yaml:"vector_dim"`
	BatchSize int    `yaml:"batch_size"`
}

type MilvusConfig struct {
	Address    string `yaml:"address"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	APIKey     string `yaml:"api_key"`
	Collection string `yaml:"collection"`
	VectorDim  int    `yaml:"vector_dim"`
}

type ProcessorConfig struct {
	ChunkSize       int      `yaml:"chunk_size"`
	CustomStopwords []string `yaml:"custom_stopwords"`
}

type TranscriptConfig struct {
	Source    string        `yaml:"source"` // youtube or file
	Dir       string        `yaml:"dir"`
	Languages []string      `yaml:"languages"`
	RateLimit float64       `yaml:"rate_limit"`
	Timeout   time.Duration `yaml:"timeout"`
	CachePath string        `yaml:"cache_path"`
}

type ExtractionConfig struct {
	Strategy string `yaml:"strategy"` // llm or ner
	NERURL   string `yaml:"ner_url"`
	MaxChars int    `yaml:"max_chars"`
}

type JobsConfig struct {
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
	TTL       time.Duration `yaml:"ttl"`
	Store     string        `yaml:"store"` // memory or redis
	RedisAddr string        `yaml:"redis_addr"`
	Transport string        `yaml:"transport"` // local or amqp
	AMQPURL   string        `yaml:"amqp_url"`
	AMQPQueue string        `yaml:"amqp_queue"`
}

type ServerConfig struct {
	Port      int `yaml:"port"`
	MaxVideos int `yaml:"max_videos"`
}

// LoadConfig reads the YAML file at path, or the first default location that
// exists, then applies .env and environment overrides and defaults.
func LoadConfig(path string) (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()

	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/vidrag/config.yaml"),
			"/etc/vidrag/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "ollama"
	}
	if config.LLM.Model == "" {
		if config.LLM.Provider == "openai" {
			config.LLM.Model = "gpt-4o-mini"
		} else {
			config.LLM.Model = "mistral"
		}
	}
	if config.LLM.EmbeddingModel == "" {
		if config.LLM.Provider == "openai" {
			config.LLM.EmbeddingModel = "text-embedding-3-small"
		} else {
			config.LLM.EmbeddingModel = "nomic-embed-text:latest"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.2
	}
	if config.LLM.BaseURL == "" && config.LLM.Provider == "ollama" {
		config.LLM.BaseURL = "http://localhost:11434"
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 120 * time.Second
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "lexical"
	}
	if config.Index.MinScore == nil {
		score := 0.0
		if config.Index.Backend == "lexical" {
			score = 0.1
		}
		config.Index.MinScore = &score
	}
	if config.Index.TopK == 0 {
		config.Index.TopK = 5
	}
	if config.Index.Database.TableName == "" {
		config.Index.Database.TableName = "video_chunks"
	}
	if config.Index.Database.VectorDim == 0 {
		config.Index.Database.VectorDim = 768
	}
	if config.Index.Database.BatchSize == 0 {
		config.Index.Database.BatchSize = 100
	}
	if config.Index.Milvus.Address == "" {
		config.Index.Milvus.Address = "localhost:19530"
	}
	if config.Index.Milvus.Collection == "" {
		config.Index.Milvus.Collection = "video_chunks"
	}
	if config.Index.Milvus.VectorDim == 0 {
		config.Index.Milvus.VectorDim = config.Index.Database.VectorDim
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}

	if config.Transcript.Source == "" {
		config.Transcript.Source = "youtube"
	}
	if len(config.Transcript.Languages) == 0 {
		config.Transcript.Languages = []string{"en", "en-US", "en-GB"}
	}
	if config.Transcript.RateLimit == 0 {
		config.Transcript.RateLimit = 2.0
	}
	if config.Transcript.Timeout == 0 {
		config.Transcript.Timeout = 30 * time.Second
	}

	if config.Extraction.Strategy == "" {
		config.Extraction.Strategy = "llm"
	}
	if config.Extraction.MaxChars == 0 {
		config.Extraction.MaxChars = 50000
	}

	if config.Jobs.Workers == 0 {
		config.Jobs.Workers = 4
	}
	if config.Jobs.QueueSize == 0 {
		config.Jobs.QueueSize = 64
	}
	if config.Jobs.TTL == 0 {
		config.Jobs.TTL = time.Hour
	}
	if config.Jobs.Store == "" {
		config.Jobs.Store = "memory"
	}
	if config.Jobs.RedisAddr == "" {
		config.Jobs.RedisAddr = "localhost:6379"
	}
	if config.Jobs.Transport == "" {
		config.Jobs.Transport = "local"
	}
	if config.Jobs.AMQPQueue == "" {
		config.Jobs.AMQPQueue = "vidrag_jobs"
	}

	if config.Server.Port == 0 {
		config.Server.Port = 5000
	}
	if config.Server.MaxVideos == 0 {
		config.Server.MaxVideos = 100
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Index.Database.URL = dbURL
	}
	if addr := os.Getenv("MILVUS_ADDR"); addr != "" {
		config.Index.Milvus.Address = addr
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		config.Jobs.RedisAddr = addr
	}
	if amqpURL := os.Getenv("RABBITMQ_URL"); amqpURL != "" {
		config.Jobs.AMQPURL = amqpURL
	}
	if port := os.Getenv("PORT"); port != "" {
		var p int
		if _, err := fmt.Sscanf(port, "%d", &p); err == nil {
			config.Server.Port = p
		}
	}
}
