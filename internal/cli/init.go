package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample spec2client configuration file",
		Long:  "Scaffold a commented spec2client configuration file that documents available options.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			return initRunner(cmd.Context(), &InitConfig{OutputPath: out, Force: force})
		},
	}

	cmd.Flags().String("out", "spec2client.yaml", "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(_ context.Context, cfg *InitConfig) error {
	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = "spec2client.yaml"
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	content := strings.TrimSpace(sampleConfigYAML) + "\n"
	if err := writeFileAtomic(absPath, []byte(content)); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write %s: %v\nHint: choose a different --out or check directory permissions.", absPath, err))
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
const sampleConfigYAML = `# spec2client configuration (YAML)
# All fields are optional. Precedence, lowest first: this file, .env,
# SPEC2CLIENT_* environment variables (e.g. SPEC2CLIENT_LLM__MODEL), flags.

llm:
  # Backend serving embeddings and generation (ollama|openai).
  provider: ollama
  base_url: http://localhost:11434
  # Required for openai. Prefer SPEC2CLIENT_LLM__API_KEY over this file.
  # api_key: ""
  model: mistral
  embedding_model: mistral
  max_tokens: 4000
  # Bounds each embedding and generation call.
  timeout: 2m

retrieval:
  # Documents shown to the model as context (>= 1).
  k: 8
  # Schema documents indexed, shortest names first (>= 0).
  schema_cap: 10
  # Vector store (memory|sqlite-vec).
  store: memory

spec:
  # Fetch timeout and retries for http/https specification URLs.
  http_timeout: 10s
  max_retries: 3
  # Let a remote spec follow $refs into local files.
  allow_file_refs: false

log:
  # debug|info|warn|error. --verbose forces debug.
  level: info
  # text|json. Logs are written to stderr.
  format: text
`
