package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NickB03/vana/internal/backend"
	"github.com/NickB03/vana/internal/breaker"
	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// Response is the outcome of one orchestrated search.
type Response struct {
	// Results are the fused, ranked items in descending final score.
	Results []RankedResult

	// Partial is true when at least one backend failed but others answered.
	Partial bool

	// FailedBackends lists the backends that did not contribute, in
	// priority order.
	FailedBackends []backend.Name

	// Errors maps each failed backend to its error.
	Errors map[backend.Name]error

	// Duration is the wall time of the whole search.
	Duration time.Duration
}

// Orchestrator fans a query out to all registered backends, guards each
// call with its circuit breaker, and fuses whatever came back.
//
// A backend failure degrades the response instead of failing it; only when
// every backend fails does Search return an error.
type Orchestrator struct {
	adapters    []backend.Adapter
	breakers    map[backend.Name]*breaker.Breaker
	breakerOpts []breaker.Option
	cache       *ResultCache
	logger      *slog.Logger

	// mu guards the tunable pipeline pieces swapped by UpdateTunables.
	mu     sync.RWMutex
	dedupe *Deduplicator
	ranker *Ranker
	config Config
}

// Adapters carries one adapter per backend for the orchestrator.
type Adapters struct {
	Vector backend.Adapter
	Graph  backend.Adapter
	Web    backend.Adapter
}

// OrchestratorOption configures the orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithResultCache enables response caching for full (non-partial) results.
func WithResultCache(cache *ResultCache) OrchestratorOption {
	return func(o *Orchestrator) {
		o.cache = cache
	}
}

// WithBreakerOptions applies extra options to every backend breaker.
func WithBreakerOptions(opts ...breaker.Option) OrchestratorOption {
	return func(o *Orchestrator) {
		o.breakerOpts = append(o.breakerOpts, opts...)
	}
}

// NewOrchestrator wires adapters, breakers, and the fusion pipeline.
// All three adapters are required; weights are validated eagerly.
func NewOrchestrator(adapters Adapters, config Config, opts ...OrchestratorOption) (*Orchestrator, error) {
	if adapters.Vector == nil || adapters.Graph == nil || adapters.Web == nil {
		return nil, vanaerrors.ConfigError("all three backend adapters are required", nil)
	}
	applyConfigDefaults(&config)

	ranker, err := NewRanker(config.Weights, config.BaselineScore)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		adapters: []backend.Adapter{adapters.Vector, adapters.Graph, adapters.Web},
		breakers: make(map[backend.Name]*breaker.Breaker, 3),
		dedupe:   NewDeduplicator(config.BaselineScore),
		ranker:   ranker,
		config:   config,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	bopts := o.breakerOpts
	if !config.CountCanceled {
		bopts = append(bopts, breaker.WithFailurePredicate(notCancellation))
	}
	for _, a := range o.adapters {
		o.breakers[a.Name()] = breaker.New(string(a.Name()), bopts...)
	}
	return o, nil
}

// notCancellation exempts deadline and cancellation errors from the
// breaker's failure count.
func notCancellation(err error) bool {
	return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}

func applyConfigDefaults(cfg *Config) {
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultBackendK
	}
	if cfg.DefaultCount <= 0 {
		cfg.DefaultCount = DefaultDesiredCount
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = DefaultSearchTimeout
	}
	if cfg.BaselineScore <= 0 {
		cfg.BaselineScore = DefaultBaselineScore
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
}

// Search fans the query out to every backend in parallel and returns the
// fused ranking. One or two backend failures yield a partial response;
// when all backends fail the error carries every underlying cause.
func (o *Orchestrator) Search(ctx context.Context, q Query) (*Response, error) {
	start := time.Now()

	o.mu.RLock()
	cfg := o.config
	dedupe := o.dedupe
	ranker := o.ranker
	o.mu.RUnlock()

	q.Text = strings.TrimSpace(q.Text)
	if q.Text == "" {
		return nil, vanaerrors.ErrQueryEmpty
	}
	if q.DesiredCount <= 0 {
		q.DesiredCount = cfg.DefaultCount
	}
	if q.DesiredCount > cfg.MaxResults {
		q.DesiredCount = cfg.MaxResults
	}

	if o.cache != nil {
		if resp, ok := o.cache.Get(q); ok {
			o.logger.Debug("result cache hit", slog.String("query", q.Text))
			return resp, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.SearchTimeout)
	defer cancel()

	items, failures := o.fanOut(ctx, q, cfg.DefaultK)

	if len(failures) == len(o.adapters) {
		causes := make([]error, 0, len(failures))
		for _, a := range o.adapters {
			if err, ok := failures[a.Name()]; ok {
				causes = append(causes, err)
			}
		}
		o.logger.Error("all backends failed",
			slog.String("query", q.Text),
			slog.Int("backends", len(o.adapters)))
		return nil, vanaerrors.AllBackendsError(errors.Join(causes...))
	}

	deduped := dedupe.Dedupe(items)
	ranked := ranker.Rank(deduped, q.DesiredCount)

	resp := &Response{
		Results:  ranked,
		Partial:  len(failures) > 0,
		Errors:   failures,
		Duration: time.Since(start),
	}
	for _, a := range o.adapters {
		if _, ok := failures[a.Name()]; ok {
			resp.FailedBackends = append(resp.FailedBackends, a.Name())
		}
	}

	o.logger.Info("search completed",
		slog.String("query", q.Text),
		slog.Int("results", len(ranked)),
		slog.Bool("partial", resp.Partial),
		slog.Int("failed_backends", len(failures)),
		slog.Duration("duration", resp.Duration))

	if o.cache != nil {
		o.cache.Put(q, resp)
	}
	return resp, nil
}

// fanOut queries every backend in parallel through its breaker and
// collects normalized items in backend priority order.
func (o *Orchestrator) fanOut(ctx context.Context, q Query, defaultK int) ([]*ResultItem, map[backend.Name]error) {
	g, gctx := errgroup.WithContext(ctx)

	type branch struct {
		records []backend.Record
		err     error
	}
	branches := make([]branch, len(o.adapters))

	for i, a := range o.adapters {
		g.Go(func() error {
			k := q.K(a.Name(), defaultK)
			records, err := breaker.Do(o.breakers[a.Name()], func() ([]backend.Record, error) {
				return a.Query(gctx, q.Text, k)
			})
			branches[i] = branch{records: records, err: err}
			if err != nil {
				o.logger.Warn("backend query failed",
					slog.String("backend", string(a.Name())),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	_ = g.Wait()

	var items []*ResultItem
	failures := make(map[backend.Name]error)
	for i, a := range o.adapters {
		b := branches[i]
		if b.err != nil {
			failures[a.Name()] = b.err
			continue
		}
		for _, rec := range b.records {
			items = append(items, Normalize(a.Name(), rec))
		}
	}
	if len(failures) == 0 {
		failures = nil
	}
	return items, failures
}

// UpdateTunables swaps the fusion weights and count tunables at runtime,
// used by the config watcher. Invalid weights leave the previous
// configuration untouched. Cached responses ranked under the old weights
// are purged.
func (o *Orchestrator) UpdateTunables(weights Weights, defaultK, defaultCount int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ranker, err := NewRanker(weights, o.config.BaselineScore)
	if err != nil {
		return err
	}

	o.ranker = ranker
	o.config.Weights = weights
	if defaultK > 0 {
		o.config.DefaultK = defaultK
	}
	if defaultCount > 0 {
		o.config.DefaultCount = defaultCount
	}
	if o.cache != nil {
		o.cache.Purge()
	}

	o.logger.Info("search tunables updated",
		slog.Float64("vector_weight", weights.Vector),
		slog.Float64("graph_weight", weights.Graph),
		slog.Float64("web_weight", weights.Web))
	return nil
}

// HealthSnapshot reports the breaker state of every backend in priority
// order.
func (o *Orchestrator) HealthSnapshot() []breaker.HealthSnapshot {
	out := make([]breaker.HealthSnapshot, 0, len(o.adapters))
	for _, a := range o.adapters {
		out = append(out, o.breakers[a.Name()].Snapshot())
	}
	return out
}

// Probe issues a lightweight query against one backend through its
// breaker, feeding the outcome into the breaker state machine.
func (o *Orchestrator) Probe(ctx context.Context, name backend.Name) error {
	for _, a := range o.adapters {
		if a.Name() != name {
			continue
		}
		return o.breakers[name].Execute(func() error {
			_, err := a.Query(ctx, "health", 1)
			return err
		})
	}
	return vanaerrors.ValidationError("unknown backend: "+string(name), nil)
}

// Breaker exposes the breaker for one backend, or nil if unknown.
func (o *Orchestrator) Breaker(name backend.Name) *breaker.Breaker {
	return o.breakers[name]
}
