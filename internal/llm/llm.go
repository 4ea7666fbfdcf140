// Package llm provides the embedding and text-generation services used by
// the generation pipeline.
package llm

import (
	"context"
	"fmt"
	"net/http"
)

// Provider constants for backend selection.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// Embedder maps text to a fixed-length vector. Implementations must be
// deterministic for identical input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator returns the raw completion for a prompt in a single blocking call.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client is a backend that serves both embeddings and generation.
type Client interface {
	Embedder
	Generator
	Model() string
}

// EmbedderFunc adapts a function to Embedder.
type EmbedderFunc func(ctx context.Context, text string) ([]float32, error)

func (f EmbedderFunc) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config holds backend configuration.
type Config struct {
	Provider       string // "ollama" or "openai"
	BaseURL        string
	APIKey         string // required for openai
	Model          string // generation model
	EmbeddingModel string // defaults to Model
	MaxTokens      int    // completion cap
	HTTPClient     *http.Client
}

// New creates a Client for cfg.Provider. Defaults to Ollama.
func New(cfg Config) (Client, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOllama
	}
	switch provider {
	case ProviderOllama:
		return NewOllamaClient(cfg), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
