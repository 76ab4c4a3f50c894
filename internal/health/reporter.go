// Package health runs periodic backend probes and exposes an aggregated
// health view of the retrieval pipeline.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/NickB03/vana/internal/backend"
	"github.com/NickB03/vana/internal/breaker"
)

// DefaultProbeInterval is the default spacing between probe rounds.
const DefaultProbeInterval = 15 * time.Second

// DefaultProbeTimeout bounds one probe call.
const DefaultProbeTimeout = 2 * time.Second

// Prober issues a lightweight call against one backend and reports
// breaker state. The search orchestrator implements this.
type Prober interface {
	Probe(ctx context.Context, name backend.Name) error
	HealthSnapshot() []breaker.HealthSnapshot
}

// Status aggregates one probe round.
type Status struct {
	// Healthy is true when every backend breaker is closed.
	Healthy bool `json:"healthy"`

	// Backends holds the per-backend breaker snapshots in priority order.
	Backends []breaker.HealthSnapshot `json:"backends"`

	// CheckedAt is when the snapshot was taken.
	CheckedAt time.Time `json:"checked_at"`
}

// Reporter periodically probes failed backends and caches the latest
// aggregated status for cheap reads.
type Reporter struct {
	prober   Prober
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	latest  Status
	stopCh  chan struct{}
	stopped bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithInterval sets the probe interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithProbeTimeout sets the per-probe deadline.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReporter creates a health reporter over the given prober.
func NewReporter(prober Prober, opts ...Option) *Reporter {
	r := &Reporter{
		prober:   prober,
		interval: DefaultProbeInterval,
		timeout:  DefaultProbeTimeout,
		logger:   slog.Default(),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.refresh()
	return r
}

// Run probes on the configured interval until the context is cancelled or
// Stop is called. Blocking; callers run it on its own goroutine.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopCh:
			return nil
		case <-ticker.C:
			r.probeRound(ctx)
		}
	}
}

// Stop terminates a running Run loop.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
}

// Snapshot returns the most recent aggregated status.
func (r *Reporter) Snapshot() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest
}

// Check refreshes the status from the breakers without probing and
// returns it. Used by the CLI for one-shot health output.
func (r *Reporter) Check() Status {
	r.refresh()
	return r.Snapshot()
}

// ProbeNow runs a single probe round and returns the refreshed status.
func (r *Reporter) ProbeNow(ctx context.Context) Status {
	r.probeRound(ctx)
	return r.Snapshot()
}

// probeRound probes every backend whose breaker is not closed. Probing
// through the breaker means a recovered backend closes its circuit on the
// next round instead of waiting for live traffic.
func (r *Reporter) probeRound(ctx context.Context) {
	for _, snap := range r.prober.HealthSnapshot() {
		if snap.State == breaker.StateClosed.String() {
			continue
		}
		name := backend.Name(snap.Backend)

		probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.prober.Probe(probeCtx, name)
		cancel()

		if err != nil {
			r.logger.Debug("health probe failed",
				slog.String("backend", snap.Backend),
				slog.String("error", err.Error()))
			continue
		}
		r.logger.Info("backend recovered", slog.String("backend", snap.Backend))
	}
	r.refresh()
}

// refresh recomputes the aggregated status from breaker snapshots.
func (r *Reporter) refresh() {
	snaps := r.prober.HealthSnapshot()
	status := Status{
		Healthy:   true,
		Backends:  snaps,
		CheckedAt: time.Now(),
	}
	for _, s := range snaps {
		if s.State != breaker.StateClosed.String() {
			status.Healthy = false
			break
		}
	}

	r.mu.Lock()
	r.latest = status
	r.mu.Unlock()
}
