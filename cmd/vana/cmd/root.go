// Package cmd provides the CLI commands for vana.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/NickB03/vana/internal/logging"
	"github.com/NickB03/vana/pkg/version"
)

var (
	flagDataDir string
	flagDebug   bool

	loggingCleanup func()
)

// NewRootCmd creates the root command for the vana CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vana",
		Short: "Hybrid retrieval orchestrator with an MCP surface",
		Long: `Vana fans a query out to vector, graph, and web backends in
parallel, fuses the results with weighted scoring, and degrades
gracefully when backends fail.

Run 'vana serve' to expose search over MCP, or 'vana search' for
one-shot queries against the local stores.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("vana version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the data directory (default ~/.vana)")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging to ~/.vana/logs/")

	cmd.PersistentPreRunE = setupDebugLogging
	cmd.PersistentPostRunE = teardownDebugLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupDebugLogging(_ *cobra.Command, _ []string) error {
	if !flagDebug {
		return nil
	}

	cfg := logging.DefaultConfig()
	cfg.Level = "debug"
	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return fmt.Errorf("setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func teardownDebugLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
