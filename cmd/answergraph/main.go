// Command answergraph answers a question from one or more JSON
// documents using an LLM-backed pipeline.
//
// Usage:
//
//	answergraph --prompt "What is the project license?" \
//	    --source ./package.json --source https://example.com/meta.json
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/answergraph-go/pipelines"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		prompt     string
		sources    []string
		provider   string
		modelName  string
		outPath    string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:           "answergraph",
		Short:         "Answer a question from JSON documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if prompt == "" {
				return fmt.Errorf("--prompt is required")
			}
			if len(sources) == 0 {
				return fmt.Errorf("at least one --source is required")
			}

			var cfg pipelines.Config
			if configPath != "" {
				loaded, err := pipelines.LoadConfig(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			if provider != "" {
				cfg.Provider = provider
			}
			if modelName != "" {
				cfg.Model = modelName
			}
			if verbose {
				cfg.Verbose = true
			}

			ctx := cmd.Context()
			pipe, err := pipelines.NewJSONScraperMultiPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = pipe.Close() }()

			answer, err := pipe.Run(ctx, prompt, sources)
			if err != nil {
				return err
			}

			if outPath != "" {
				if err := os.WriteFile(outPath, []byte(answer+"\n"), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", outPath, err)
				}
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), answer)
			}

			if cfg.Verbose {
				if usage := pipe.Usage(); usage != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), usage.String())
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "question to answer")
	cmd.Flags().StringArrayVarP(&sources, "source", "s", nil, "JSON document path or URL (repeatable)")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider (openai, anthropic, google)")
	cmd.Flags().StringVar(&modelName, "model", "", "model name override")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the answer to a file instead of stdout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "emit per-step progress to stderr")
	return cmd
}
