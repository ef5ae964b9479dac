// Binary parley is a terminal client for the parley agent library.
//
// The default command starts an interactive chat with a tool-using agent:
// messages stream to the terminal as the model produces them, tool calls and
// their results are shown inline, and the conversation can be saved and
// restored with /save and /load.
//
// The serve-mcp command exposes the same built-in toolkit over the Model
// Context Protocol instead, so MCP clients can call the tools directly.
//
// Configuration comes from a TOML file (parley.toml by default) with
// PARLEY_* env vars taking precedence for secrets.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "parley:", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "Chat with a tool-using agent in the terminal",
		Long: `Parley runs a conversational agent in your terminal. The agent answers in
a streaming ReAct loop: it reasons, calls built-in tools (files, web fetch,
PDF reading, docs search, code execution), and folds the results into its
reply.

Providers are configured in parley.toml; any OpenAI-compatible endpoint and
DashScope are supported.`,
		Example: `  # Chat with the default config
  parley

  # Chat with a custom config and verbose agent logs
  parley --config work.toml --debug`,
		Version: version,
		// SilenceUsage prevents printing usage on every error.
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(configPath, debug)
		},
	}

	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to TOML config file (default parley.toml)")
	rootCmd.Flags().BoolVarP(&debug, "debug", "d", false, "Log agent activity and model thinking to stderr")

	rootCmd.AddCommand(buildServeMCPCmd())

	return rootCmd
}
