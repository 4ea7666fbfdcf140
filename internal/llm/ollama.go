package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "mistral"
)

// OllamaClient talks to the Ollama REST API.
type OllamaClient struct {
	baseURL        string
	model          string
	embeddingModel string
	maxTokens      int
	http           *http.Client
}

func NewOllamaClient(cfg Config) *OllamaClient {
	c := &OllamaClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxTokens:      cfg.MaxTokens,
		http:           cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = defaultOllamaURL
	}
	if c.model == "" {
		c.model = defaultOllamaModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = c.model
	}
	if c.http == nil {
		// Callers bound each call with a context deadline.
		c.http = &http.Client{}
	}
	return c
}

func (o *OllamaClient) Model() string { return o.model }

func (o *OllamaClient) Embed(ctx context.Context, text string) ([]float32, error) {
	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	err := o.post(ctx, "/api/embeddings", map[string]any{
		"model":  o.embeddingModel,
		"prompt": text,
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(result.Embedding) == 0 {
		return nil, errors.New("ollama embed: no embedding returned")
	}
	return result.Embedding, nil
}

func (o *OllamaClient) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  o.model,
		"prompt": prompt,
		"stream": false,
	}
	if o.maxTokens > 0 {
		reqBody["options"] = map[string]any{"num_predict": o.maxTokens}
	}

	var result struct {
		Response string `json:"response"`
	}
	start := time.Now()
	if err := o.post(ctx, "/api/generate", reqBody, &result); err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	slog.DebugContext(ctx, "ollama generate completed",
		"model", o.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"response_chars", len(result.Response))
	return result.Response, nil
}

func (o *OllamaClient) post(ctx context.Context, path string, payload any, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return json.Unmarshal(body, out)
}
