package cmd

import (
	"fmt"
	"log/slog"

	"github.com/NickB03/vana/internal/backend"
	"github.com/NickB03/vana/internal/breaker"
	"github.com/NickB03/vana/internal/config"
	"github.com/NickB03/vana/internal/health"
	"github.com/NickB03/vana/internal/search"
	"github.com/NickB03/vana/internal/store"
)

// app bundles everything a command needs to run searches locally.
type app struct {
	cfg          *config.Config
	store        *store.Store
	web          *backend.WebSearchClient
	orchestrator *search.Orchestrator
	reporter     *health.Reporter
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Store.DataDir = flagDataDir
	}
	return cfg, nil
}

// buildApp opens the local stores and wires the orchestrator over them.
// The caller must call app.close when done.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.Open(store.Config{
		DataDir:         cfg.Store.DataDir,
		EmbedDimensions: cfg.Store.EmbedDimensions,
	}, store.WithStoreLogger(logger))
	if err != nil {
		return nil, err
	}

	web, err := backend.NewWebSearchClient(backend.WebSearchConfig{
		Endpoint: cfg.Backends.Web.Endpoint,
		Timeout:  cfg.Backends.Web.Timeout.Std(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	vectorAdapter, err := backend.NewVectorAdapter(st.Vectors())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	graphAdapter, err := backend.NewGraphAdapter(st.Entities())
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	webAdapter, err := backend.NewWebAdapter(web)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	opts := []search.OrchestratorOption{
		search.WithLogger(logger),
		search.WithBreakerOptions(
			breaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			breaker.WithRecoveryTimeout(cfg.Breaker.RecoveryTimeout.Std()),
		),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, search.WithResultCache(
			search.NewResultCache(cfg.Cache.Size, cfg.Cache.TTL.Std())))
	}

	orch, err := search.NewOrchestrator(search.Adapters{
		Vector: vectorAdapter,
		Graph:  graphAdapter,
		Web:    webAdapter,
	}, searchConfigFrom(cfg), opts...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("build orchestrator: %w", err)
	}

	reporter := health.NewReporter(orch,
		health.WithLogger(logger),
		health.WithInterval(cfg.Health.ProbeInterval.Std()),
		health.WithProbeTimeout(cfg.Health.ProbeTimeout.Std()),
	)

	return &app{
		cfg:          cfg,
		store:        st,
		web:          web,
		orchestrator: orch,
		reporter:     reporter,
	}, nil
}

func (a *app) close() {
	a.reporter.Stop()
	a.web.Close()
	_ = a.store.Close()
}

func searchConfigFrom(cfg *config.Config) search.Config {
	return search.Config{
		Weights: search.Weights{
			Vector: cfg.Search.VectorWeight,
			Graph:  cfg.Search.GraphWeight,
			Web:    cfg.Search.WebWeight,
		},
		DefaultK:      cfg.Search.DefaultK,
		DefaultCount:  cfg.Search.DefaultCount,
		MaxResults:    cfg.Search.MaxResults,
		SearchTimeout: cfg.Search.Timeout.Std(),
		BaselineScore: cfg.Search.BaselineScore,
		CountCanceled: cfg.Search.CountCanceled,
	}
}
