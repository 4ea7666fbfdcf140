package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the spec2client CLI.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spec2client",
		Short:         "Generate API clients from OpenAPI/Swagger specs with retrieval-grounded LLMs",
		Long:          "spec2client indexes an OpenAPI/Swagger document and asks a language model for a runnable TypeScript client that only uses endpoints the document declares.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Convert Cobra flag errors (like unknown flags) into friendly usage errors
	// that also show the command's help text.
	cmd.SetFlagErrorFunc(flagErrorFunc)

	cmd.PersistentFlags().StringP("config", "c", "", "Config file path (YAML or JSON)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")

	g := newGenerateCmd()
	g.SetFlagErrorFunc(flagErrorFunc)
	cmd.AddCommand(g)

	i := newInitCmd()
	i.SetFlagErrorFunc(flagErrorFunc)
	cmd.AddCommand(i)

	return cmd
}

func flagErrorFunc(c *cobra.Command, err error) error {
	return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
}
