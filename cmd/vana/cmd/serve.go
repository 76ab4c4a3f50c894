package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NickB03/vana/internal/config"
	"github.com/NickB03/vana/internal/logging"
	"github.com/NickB03/vana/internal/mcp"
	"github.com/NickB03/vana/internal/search"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Start the MCP server, exposing the search and backend_health tools
over stdio for AI clients.

Stdout carries JSON-RPC exclusively; all logging goes to the log file.
The config file is watched and tunable fields (weights, result counts)
are applied without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	return cmd
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stdout is reserved for JSON-RPC, so logs go to the file only.
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	logCfg.WriteToStderr = false
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer cleanup()
	slog.SetDefault(logger)

	a, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		return err
	}
	defer a.close()

	srv, err := mcp.NewServer(a.orchestrator, a.reporter, mcp.WithServerLogger(logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() { _ = a.reporter.Run(ctx) }()

	watcher := config.NewWatcher(".", func(updated *config.Config) {
		applyTunables(a.orchestrator, updated, logger)
	}, config.WithWatchLogger(logger))
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
	} else {
		defer watcher.Stop()
	}

	return srv.Serve(ctx, cfg.Server.Transport)
}

func applyTunables(orch *search.Orchestrator, cfg *config.Config, logger *slog.Logger) {
	err := orch.UpdateTunables(search.Weights{
		Vector: cfg.Search.VectorWeight,
		Graph:  cfg.Search.GraphWeight,
		Web:    cfg.Search.WebWeight,
	}, cfg.Search.DefaultK, cfg.Search.DefaultCount)
	if err != nil {
		logger.Warn("config reload rejected", slog.String("error", err.Error()))
	}
}
