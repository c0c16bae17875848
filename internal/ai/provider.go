// Package ai talks to the text-generation backends that answer operator
// questions: a local `ollama run` subprocess, the Ollama and LM Studio HTTP
// APIs, and the Anthropic Messages API.
package ai

import (
	"context"
	"fmt"
)

// Provider defines the interface for LLM providers (Ollama, LM Studio, Anthropic)
type Provider interface {
	// Complete sends the payload and returns the answer text
	Complete(ctx context.Context, prompt string) (string, *Stats, error)

	// GetModelInfo returns information about the configured model
	GetModelInfo() map[string]interface{}

	// GetProviderName returns the name of the provider (e.g., "Anthropic", "Ollama")
	GetProviderName() string
}

// ConnectionChecker is implemented by providers that can check their backend
// before the first question.
type ConnectionChecker interface {
	CheckConnection(ctx context.Context) error
}

// Stats holds statistics about a completion
type Stats struct {
	Provider            string
	Model               string
	InputTokens         int
	OutputTokens        int
	CacheCreationTokens int
	CacheReadTokens     int
	CostUSD             float64
	DurationSeconds     float64
}

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderOllamaCLI ProviderType = "ollama_cli"
	ProviderOllama    ProviderType = "ollama"
	ProviderLMStudio  ProviderType = "lmstudio"
	ProviderAnthropic ProviderType = "anthropic"
)

// ValidProviderTypes returns a list of valid provider types
func ValidProviderTypes() []ProviderType {
	return []ProviderType{ProviderOllamaCLI, ProviderOllama, ProviderLMStudio, ProviderAnthropic}
}

// IsValidProviderType checks if the given provider type is valid
func IsValidProviderType(pt string) bool {
	for _, valid := range ValidProviderTypes() {
		if string(valid) == pt {
			return true
		}
	}
	return false
}

// ProviderConfig carries everything NewProvider may need. Only the fields of
// the selected provider are consulted.
type ProviderConfig struct {
	Type           ProviderType
	TimeoutSeconds int
	MaxTokens      int

	// ollama_cli
	OllamaBinary string
	// ollama_cli and ollama
	OllamaModel   string
	OllamaBaseURL string

	LMStudioBaseURL string
	LMStudioModel   string

	AnthropicAPIKey string
	ClaudeModel     string
	ProxyURL        string
}

// NewProvider builds the provider selected by cfg.Type.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	var (
		provider Provider
		err      error
	)

	switch cfg.Type {
	case ProviderOllamaCLI, "":
		var c *CommandClient
		c, err = NewCommandClient(CommandConfig{
			Binary: cfg.OllamaBinary,
			Model:  cfg.OllamaModel,
		})
		provider = c

	case ProviderOllama:
		var c *OllamaClient
		c, err = NewOllamaClient(OllamaConfig{
			BaseURL:        cfg.OllamaBaseURL,
			Model:          cfg.OllamaModel,
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxTokens:      cfg.MaxTokens,
		})
		provider = c

	case ProviderLMStudio:
		var c *LMStudioClient
		c, err = NewLMStudioClient(LMStudioConfig{
			BaseURL:        cfg.LMStudioBaseURL,
			Model:          cfg.LMStudioModel,
			TimeoutSeconds: cfg.TimeoutSeconds,
			MaxTokens:      cfg.MaxTokens,
		})
		provider = c

	case ProviderAnthropic:
		var c *Client
		c, err = NewClient(cfg.AnthropicAPIKey, cfg.ClaudeModel, cfg.ProxyURL, cfg.TimeoutSeconds, cfg.MaxTokens)
		provider = c

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s provider: %w", cfg.Type, err)
	}
	return provider, nil
}
