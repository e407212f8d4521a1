package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// DefaultTimeout bounds every call to an external model.
const DefaultTimeout = 120 * time.Second

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string // Ollama server URL
	Timeout     time.Duration
}

// ChatEngine generates text and JSON completions through langchaingo.
type ChatEngine struct {
	config  ChatConfig
	llm     llms.Model
	jsonLLM llms.Model
}

// NewWithConfig creates a new ChatEngine backed by Ollama.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	jsonLLM, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
		ollama.WithFormat("json"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JSON LLM: %w", err)
	}

	return &ChatEngine{
		config:  config,
		llm:     llm,
		jsonLLM: jsonLLM,
	}, nil
}

// NewWithModels wraps already constructed langchaingo models. jsonModel may be
// nil, in which case JSON prompts go to model.
func NewWithModels(config ChatConfig, model, jsonModel llms.Model) (*ChatEngine, error) {
	config, err := applyChatDefaults(config)
	if err != nil {
		return nil, err
	}
	if jsonModel == nil {
		jsonModel = model
	}
	return &ChatEngine{config: config, llm: model, jsonLLM: jsonModel}, nil
}

func applyChatDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Model == "" {
		config.Model = "mistral" // Default Ollama model
	}
	if config.Temperature < 0 || config.Temperature > 1 {
		return config, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return config, nil
}

// Generate returns the model's text completion for prompt.
func (ce *ChatEngine) Generate(ctx context.Context, prompt string) (string, error) {
	return ce.complete(ctx, ce.llm, prompt)
}

// GenerateJSON asks the model for a JSON document. The output is returned
// verbatim; callers decode it with DecodeJSON.
func (ce *ChatEngine) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	return ce.complete(ctx, ce.jsonLLM, prompt)
}

func (ce *ChatEngine) complete(ctx context.Context, model llms.Model, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ce.config.Timeout)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(ctx, model, prompt,
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(ce.config.MaxTokens),
	)
	if err != nil {
		return "", Classify(fmt.Errorf("chat error: %w", err))
	}

	return strings.TrimSpace(text), nil
}
