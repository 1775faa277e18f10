// Package main provides the Atlas CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/config"
	"github.com/atlas-drive/atlas/libs/retrieval-engine/internal/observability"
)

// cli holds the global flags and the state PersistentPreRunE prepares.
type cli struct {
	cfgFile    string
	outputJSON bool
	verbose    bool
	noColor    bool

	cfg    *config.Config
	logger *observability.Logger
	ui     *UI
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "atlas-cli",
		Short: "Atlas CLI for asking questions, inspecting retrieval and the knowledge base",
		Long: `Atlas CLI runs the retrieval engine in-process.

Use this tool to:
- Ask a question through the full answer pipeline
- Inspect ranking, boosts and force-add rules for a query
- Summarize the loaded knowledge base
- Look up service prices

All commands support --json for automation.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Only ask talks to the generator; the other commands work offline.
			load := config.LoadLocal
			if cmd.Name() == "ask" {
				load = config.Load
			}
			cfg, err := load(c.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			c.cfg = cfg

			level := "warn"
			if c.verbose {
				level = "debug"
			}
			c.logger = observability.NewLogger(observability.LogConfig{
				Level:       level,
				Format:      "console",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "atlas-cli",
			})
			c.ui = NewUI(cmd.OutOrStdout(), c.outputJSON, c.noColor)
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&c.cfgFile, "config", "c", "", "config file path (default: uses env vars)")
	root.PersistentFlags().BoolVar(&c.outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(newAskCmd(c))
	root.AddCommand(newSearchCmd(c))
	root.AddCommand(newCorpusCmd(c))
	root.AddCommand(newPriceCmd(c))

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
