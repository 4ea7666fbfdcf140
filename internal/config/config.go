// Package config provides spec2client configuration management using koanf
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load. A double
// underscore separates nesting levels, e.g. SPEC2CLIENT_LLM__BASE_URL.
const EnvPrefix = "SPEC2CLIENT_"

// Config holds all configuration for a generation run
type Config struct {
	LLM       LLMConfig       `koanf:"llm"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Spec      SpecConfig      `koanf:"spec"`
	Log       LogConfig       `koanf:"log"`
}

// LLMConfig selects and configures the embedding and generation backend
type LLMConfig struct {
	Provider       string        `koanf:"provider"` // "ollama" or "openai"
	BaseURL        string        `koanf:"base_url"`
	APIKey         string        `koanf:"api_key"`
	Model          string        `koanf:"model"`
	EmbeddingModel string        `koanf:"embedding_model"`
	MaxTokens      int           `koanf:"max_tokens"`
	Timeout        time.Duration `koanf:"timeout"`
}

// RetrievalConfig holds corpus and retrieval limits
type RetrievalConfig struct {
	K         int    `koanf:"k"`
	SchemaCap int    `koanf:"schema_cap"`
	Store     string `koanf:"store"` // "memory" or "sqlite-vec"
}

// SpecConfig holds specification acquisition settings
type SpecConfig struct {
	HTTPTimeout time.Duration `koanf:"http_timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	// AllowFileRefs lets a spec fetched over http/https follow $refs into
	// the local filesystem. Local spec files always may.
	AllowFileRefs bool `koanf:"allow_file_refs"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `koanf:"level"`  // "debug", "info", "warn", "error"
	Format string `koanf:"format"` // "text" or "json"
}

// Options controls where Load reads from.
type Options struct {
	// ConfigFile is an optional YAML or JSON file. It must exist when set.
	ConfigFile string
	// EnvFile is a dotenv file; missing files are ignored. Defaults to ".env".
	EnvFile string
	// Environ returns the process environment. Defaults to os.Environ.
	Environ func() []string
	// Overrides are applied last, keyed by dotted path (e.g. "llm.model").
	Overrides map[string]any
}

// Load loads configuration from multiple sources with precedence:
// 1. Defaults
// 2. Config file
// 3. .env file
// 4. Environment variables
// 5. Overrides (command-line flags)
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	setDefaults(k)

	if path := strings.TrimSpace(opts.ConfigFile); path != "" {
		if err := loadConfigFile(k, path); err != nil {
			return nil, err
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := loadDotEnv(k, envFile); err != nil {
		return nil, err
	}

	environ := opts.Environ
	if environ == nil {
		environ = os.Environ
	}
	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: transformEnv,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return nil, fmt.Errorf("error applying override %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	k := koanf.New(".")
	setDefaults(k)
	var cfg Config
	_ = k.Unmarshal("", &cfg)
	return &cfg
}

// setDefaults sets default configuration values
func setDefaults(k *koanf.Koanf) {
	defaults := map[string]interface{}{
		"llm.provider":        "ollama",
		"llm.base_url":        "http://localhost:11434",
		"llm.api_key":         "",
		"llm.model":           "mistral",
		"llm.embedding_model": "mistral",
		"llm.max_tokens":      4000,
		"llm.timeout":         "2m",

		"retrieval.k":          8,
		"retrieval.schema_cap": 10,
		"retrieval.store":      "memory",

		"spec.http_timeout":    "10s",
		"spec.max_retries":     3,
		"spec.allow_file_refs": false,

		"log.level":  "info",
		"log.format": "text",
	}

	for key, value := range defaults {
		_ = k.Set(key, value) // Ignore error for setting defaults
	}
}

func loadConfigFile(k *koanf.Koanf, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("config file %q: %w", path, err)
	}
	var parser koanf.Parser = yaml.Parser()
	if strings.EqualFold(filepath.Ext(path), ".json") {
		parser = json.Parser()
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// loadDotEnv applies prefixed entries from a dotenv file without touching
// the process environment, so real environment variables still win.
func loadDotEnv(k *koanf.Koanf, path string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read env file %q: %w", path, err)
	}
	for name, value := range values {
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		key, v := transformEnv(name, value)
		if key == "" {
			continue
		}
		_ = k.Set(key, v)
	}
	return nil
}

func transformEnv(name, value string) (string, any) {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	return key, value
}

func (c *Config) normalize() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	c.LLM.EmbeddingModel = strings.TrimSpace(c.LLM.EmbeddingModel)
	c.Retrieval.Store = strings.ToLower(strings.TrimSpace(c.Retrieval.Store))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama":
	case "openai":
		if c.LLM.APIKey == "" {
			return fmt.Errorf("llm.api_key is required when llm.provider is openai")
		}
	default:
		return fmt.Errorf("unsupported llm.provider %q (allowed: ollama, openai)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.MaxTokens < 1 {
		return fmt.Errorf("llm.max_tokens must be at least 1")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("llm.timeout must be positive")
	}

	if c.Retrieval.K < 1 {
		return fmt.Errorf("retrieval.k must be at least 1")
	}
	if c.Retrieval.SchemaCap < 0 {
		return fmt.Errorf("retrieval.schema_cap must not be negative")
	}
	switch c.Retrieval.Store {
	case "memory", "sqlite-vec":
	default:
		return fmt.Errorf("unsupported retrieval.store %q (allowed: memory, sqlite-vec)", c.Retrieval.Store)
	}

	if c.Spec.HTTPTimeout <= 0 {
		return fmt.Errorf("spec.http_timeout must be positive")
	}
	if c.Spec.MaxRetries < 0 {
		return fmt.Errorf("spec.max_retries must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log.format %q (allowed: text, json)", c.Log.Format)
	}
	return nil
}
