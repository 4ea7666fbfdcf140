package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mark3labs/spec2client/internal/config"
	"github.com/mark3labs/spec2client/internal/index"
	"github.com/mark3labs/spec2client/internal/llm"
	"github.com/mark3labs/spec2client/internal/logger"
	"github.com/mark3labs/spec2client/internal/pipeline"
	genspec "github.com/mark3labs/spec2client/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, environment and CLI overrides.
type GenerateConfig struct {
	Spec       string
	Data       string
	Output     string
	File       string
	ConfigPath string
	Verbose    bool
	App        *config.Config
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a TypeScript API client from an OpenAPI/Swagger document",
		Long: "Generate a self-contained TypeScript client that fetches the described data " +
			"from an API and reshapes it. Endpoints are grounded in the OpenAPI document " +
			"through retrieval over its paths and schemas. Options can be provided via flags, " +
			"config files, a .env file or SPEC2CLIENT_* environment variables.",
		Example: strings.TrimSpace(`  spec2client generate --spec https://petstore3.swagger.io/api/v3/openapi.json \
    --data "available pets" --output "interface Pet { name: string; status: string }"
  spec2client --config spec2client.yaml generate --spec ./openapi.yaml --data "orders" \
    --output "interface Order { id: number }" --file ./client.ts`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("spec", "", "Path or URL to the OpenAPI/Swagger document")
	flags.String("data", "", "Description of the data to retrieve")
	flags.String("output", "", "Desired output shape (e.g. a TypeScript interface)")
	flags.String("file", "", "Write the generated client to this file instead of stdout")
	flags.String("provider", "", "LLM provider (ollama|openai)")
	flags.String("model", "", "Generation model name")
	flags.String("embedding-model", "", "Embedding model name")
	flags.String("base-url", "", "Base URL of the LLM service")
	flags.Int("max-tokens", 0, "Maximum tokens to generate")
	flags.Int("k", 0, "Number of documents retrieved as context")
	flags.Int("schema-cap", 0, "Maximum number of schema documents indexed")
	flags.String("store", "", "Vector store (memory|sqlite-vec)")
	flags.Duration("timeout", 0, "Timeout for each embedding and generation call")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := &GenerateConfig{}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = strings.TrimSpace(configPath)

	if err := applyGenerateFlagOverrides(cmd.Flags(), cfg); err != nil {
		return nil, err
	}
	overrides, err := configOverrides(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if cfg.Verbose {
		overrides["log.level"] = "debug"
	}

	app, err := config.Load(config.Options{
		ConfigFile: cfg.ConfigPath,
		Overrides:  overrides,
	})
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("generate: %v", err))
	}
	cfg.App = app

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	for name, dst := range map[string]*string{
		"spec":   &cfg.Spec,
		"data":   &cfg.Data,
		"output": &cfg.Output,
		"file":   &cfg.File,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, err := flags.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(value)
	}
	if flags.Changed("verbose") {
		value, err := flags.GetBool("verbose")
		if err != nil {
			return err
		}
		cfg.Verbose = value
	}
	return nil
}

// configOverrides maps changed flags onto configuration keys.
func configOverrides(flags *pflag.FlagSet) (map[string]any, error) {
	overrides := map[string]any{}
	for flag, key := range map[string]string{
		"provider":        "llm.provider",
		"model":           "llm.model",
		"embedding-model": "llm.embedding_model",
		"base-url":        "llm.base_url",
		"store":           "retrieval.store",
	} {
		if !flags.Changed(flag) {
			continue
		}
		value, err := flags.GetString(flag)
		if err != nil {
			return nil, err
		}
		overrides[key] = strings.TrimSpace(value)
	}
	for flag, key := range map[string]string{
		"max-tokens": "llm.max_tokens",
		"k":          "retrieval.k",
		"schema-cap": "retrieval.schema_cap",
	} {
		if !flags.Changed(flag) {
			continue
		}
		value, err := flags.GetInt(flag)
		if err != nil {
			return nil, err
		}
		overrides[key] = value
	}
	if flags.Changed("timeout") {
		value, err := flags.GetDuration("timeout")
		if err != nil {
			return nil, err
		}
		overrides["llm.timeout"] = value
	}
	return overrides, nil
}

func (c *GenerateConfig) validate() error {
	var missing []string
	if c.Spec == "" {
		missing = append(missing, "--spec")
	}
	if c.Data == "" {
		missing = append(missing, "--data")
	}
	if c.Output == "" {
		missing = append(missing, "--output")
	}
	if len(missing) > 0 {
		return newUsageError(fmt.Sprintf("generate: %s required", strings.Join(missing, ", ")))
	}
	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	app := cfg.App
	if app == nil {
		app = config.Default()
	}
	if _, err := logger.Setup(logger.Options{Level: app.Log.Level, Format: app.Log.Format}); err != nil {
		return newUsageError(fmt.Sprintf("generate: %v", err))
	}

	client, err := llm.New(llm.Config{
		Provider:       app.LLM.Provider,
		BaseURL:        app.LLM.BaseURL,
		APIKey:         app.LLM.APIKey,
		Model:          app.LLM.Model,
		EmbeddingModel: app.LLM.EmbeddingModel,
		MaxTokens:      app.LLM.MaxTokens,
	})
	if err != nil {
		return newUsageError(fmt.Sprintf("generate: %v", err))
	}

	schemaCap := app.Retrieval.SchemaCap
	if schemaCap == 0 {
		// The pipeline reads zero as its default cap.
		schemaCap = -1
	}
	store := app.Retrieval.Store
	gen, err := pipeline.New(pipeline.Config{
		Embedder:   client,
		Generator:  client,
		RetrievalK: app.Retrieval.K,
		SchemaCap:  schemaCap,
		Timeout:    app.LLM.Timeout,
		NewStore: func(ctx context.Context) (index.VectorStore, error) {
			return index.NewStore(ctx, store)
		},
		SpecOptions: []genspec.Option{
			genspec.WithHTTPTimeout(app.Spec.HTTPTimeout),
			genspec.WithMaxRetries(app.Spec.MaxRetries),
			genspec.WithAllowFileRefs(app.Spec.AllowFileRefs),
		},
	})
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	slog.InfoContext(ctx, "generating client",
		"spec", cfg.Spec,
		"provider", app.LLM.Provider,
		"model", client.Model(),
		"store", store)
	start := time.Now()

	res, err := gen.Generate(ctx, pipeline.Request{
		SpecLocation:    cfg.Spec,
		DataDescription: cfg.Data,
		OutputShape:     cfg.Output,
	})
	if err != nil {
		return specUsageError(err)
	}
	slog.InfoContext(ctx, "client generated",
		"duration_ms", time.Since(start).Milliseconds(),
		"degraded", res.Retrieval.Degraded)

	// A cancelled run must not leave output behind.
	if err := ctx.Err(); err != nil {
		return err
	}

	if cfg.File == "" {
		fmt.Fprintln(os.Stdout, res.Code)
		return nil
	}
	absPath, err := filepath.Abs(cfg.File)
	if err != nil {
		return fmt.Errorf("generate: resolve output path: %w", err)
	}
	if err := writeFileAtomic(absPath, []byte(res.Code)); err != nil {
		return wrapOutputError(err, absPath)
	}
	fmt.Fprintf(os.Stderr, "Wrote client to %s\n", absPath)
	return nil
}

// writeFileAtomic writes via a temp file in the target directory and renames
// it into place, creating parent directories as needed.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func wrapOutputError(err error, path string) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "output directory") || strings.Contains(lower, "rename") || strings.Contains(lower, "not a directory") {
		return newUsageError(fmt.Sprintf("output error for %s: %s\nHint: choose a different --file or check directory permissions.", path, msg))
	}
	return err
}
