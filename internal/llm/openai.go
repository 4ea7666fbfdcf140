package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

type openAIClient struct {
	openai         openai.Client
	model          string
	embeddingModel string
	maxTokens      int
}

// NewOpenAIClient creates a Client backed by an OpenAI-compatible API.
// SDK retries are disabled; failures surface on the first attempt.
func NewOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = defaultOpenAIEmbeddingModel
	}

	return &openAIClient{
		openai:         openai.NewClient(opts...),
		model:          model,
		embeddingModel: embeddingModel,
		maxTokens:      cfg.MaxTokens,
	}, nil
}

func (c *openAIClient) Model() string { return c.model }

func (c *openAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.openai.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai embed: no embedding returned")
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

func (c *openAIClient) Generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}

	start := time.Now()
	resp, err := c.openai.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat: no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}
