package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestOllamaEmbed(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "nomic-embed-text" || body["prompt"] != "hello" {
			t.Errorf("unexpected body %v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL + "/", EmbeddingModel: "nomic-embed-text"})
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 3 || vec[2] != 0.3 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestOllamaEmbed_EmptyVector(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[]}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClient(Config{BaseURL: srv.URL}).Embed(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "no embedding") {
		t.Fatalf("expected no embedding error, got %v", err)
	}
}

func TestOllamaGenerate(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Model   string         `json:"model"`
			Prompt  string         `json:"prompt"`
			Stream  bool           `json:"stream"`
			Options map[string]int `json:"options"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "mistral" || body.Stream || body.Options["num_predict"] != 4000 {
			t.Errorf("unexpected request %+v", body)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"response": "```ts\nconst x=1;\n```", "done": true})
	}))
	defer srv.Close()

	c := NewOllamaClient(Config{BaseURL: srv.URL, MaxTokens: 4000})
	if c.Model() != "mistral" {
		t.Fatalf("expected default model mistral, got %s", c.Model())
	}
	out, err := c.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(out, "const x=1;") {
		t.Fatalf("unexpected response %q", out)
	}
}

func TestOllamaGenerate_ErrorStatusNotRetried(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaClient(Config{BaseURL: srv.URL}).Generate(context.Background(), "p")
	if err == nil || !strings.Contains(err.Error(), "status 500") {
		t.Fatalf("expected status error, got %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected exactly one request, got %d", hits)
	}
}

func TestOllamaGenerate_ContextDeadline(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewOllamaClient(Config{BaseURL: srv.URL}).Generate(ctx, "p"); err == nil {
		t.Fatalf("expected deadline error")
	}
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Provider: ProviderOpenAI}); err == nil {
		t.Fatalf("expected api key error")
	}
}

func TestNewUnknownProvider(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Provider: "bogus"}); err == nil {
		t.Fatalf("expected unsupported provider error")
	}
	c, err := New(Config{})
	if err != nil {
		t.Fatalf("default provider: %v", err)
	}
	if _, ok := c.(*OllamaClient); !ok {
		t.Fatalf("expected ollama client by default, got %T", c)
	}
}

func TestOpenAIGenerateAndEmbed(t *testing.T) {
	t.Parallel()
	var chatHits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			atomic.AddInt32(&chatHits, 1)
			if r.Header.Get("Authorization") != "Bearer sk-test" {
				t.Errorf("missing bearer token")
			}
			_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hello"}}],
"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`))
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
"data":[{"object":"embedding","index":0,"embedding":[0.5,0.25]}],
"usage":{"prompt_tokens":1,"total_tokens":1}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(Config{Provider: ProviderOpenAI, APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out, err := c.Generate(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "hello" {
		t.Fatalf("unexpected completion %q", out)
	}
	vec, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestOpenAIGenerate_NoRetryOnServerError(t *testing.T) {
	t.Parallel()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	}))
	defer srv.Close()

	c, err := New(Config{Provider: ProviderOpenAI, APIKey: "sk-test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Generate(context.Background(), "p"); err == nil {
		t.Fatalf("expected error")
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected a single attempt, got %d", hits)
	}
}
