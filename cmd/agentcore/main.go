// Package main provides the agentcore CLI: a smoke-testing harness that
// wires the orchestration core's registries together against an in-memory
// store and a scripted model adapter, with no network calls and no real
// vendor credentials required.
//
// # Basic Usage
//
//	agentcore run --agent default --prompt "list the files here"
//	agentcore agents list
//	agentcore status
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	agentsDir string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "agentcore",
		Short:        "agentcore - agent orchestration engine smoke-test harness",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&agentsDir, "agents-dir", "", "directory of project agent definition YAML files (optional)")

	rootCmd.AddCommand(
		buildRunCmd(),
		buildAgentsCmd(),
		buildStatusCmd(),
	)
	return rootCmd
}
