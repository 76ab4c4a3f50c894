// Package breaker implements the per-backend circuit breaker that isolates
// the retrieval pipeline from backend instability.
//
// Each breaker is owned by exactly one adapter and is the only mutable
// state touched by concurrent searches. All state transitions and counter
// mutations happen under the breaker's mutex, which guarantees the
// single-probe invariant in the half-open state.
package breaker

import (
	"sync"
	"time"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed is the normal state where calls pass through.
	StateClosed State = iota
	// StateOpen is when the circuit is tripped and calls fail fast.
	StateOpen
	// StateHalfOpen is when a single probe is testing recovery.
	StateHalfOpen
)

// String returns a string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Defaults applied by New.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 30 * time.Second
)

// HealthSnapshot is a read-only view of one breaker's health, recomputed
// on every call and never written by consumers.
type HealthSnapshot struct {
	Backend             string     `json:"backend"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureTime     *time.Time `json:"last_failure_time,omitempty"`
	LastSuccessTime     *time.Time `json:"last_success_time,omitempty"`
}

// Breaker implements the three-state circuit breaker pattern.
//
// Closed: calls pass through; consecutive failures are counted and any
// success resets the counter. Reaching the failure threshold opens the
// circuit. Open: calls fail fast without touching the backend until the
// recovery timeout elapses, at which point the next attempt is admitted as
// a single probe and the state moves to half-open before the probe runs.
// HalfOpen: probe success closes the circuit, probe failure reopens it and
// restarts the timeout.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time
	isFailure        func(error) bool

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	probing     bool
	lastFailure time.Time
	lastSuccess time.Time
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets the number of consecutive failures before
// opening the circuit.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.failureThreshold = n
		}
	}
}

// WithRecoveryTimeout sets the time to wait in the open state before
// admitting a recovery probe.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.recoveryTimeout = d
		}
	}
}

// WithClock overrides the time source. Tests use this to step through the
// recovery timeout without sleeping.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithFailurePredicate sets a predicate deciding which errors charge the
// breaker. Errors the predicate rejects still propagate to the caller but
// count neither as failure nor as success; a rejected probe error returns
// the circuit to open without restarting the recovery timeout.
func WithFailurePredicate(pred func(error) bool) Option {
	return func(b *Breaker) {
		b.isFailure = pred
	}
}

// New creates a circuit breaker named after the backend it guards.
// Defaults: 5 consecutive failures, 30 second recovery timeout.
func New(name string, opts ...Option) *Breaker {
	b := &Breaker{
		name:             name,
		failureThreshold: DefaultFailureThreshold,
		recoveryTimeout:  DefaultRecoveryTimeout,
		now:              time.Now,
		state:            StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state without mutating it. An open breaker
// whose recovery timeout has elapsed reports half-open, matching what the
// next caller will observe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.recoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the current consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Snapshot returns a read-only health view of this breaker.
func (b *Breaker) Snapshot() HealthSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := b.state
	if state == StateOpen && b.now().Sub(b.openedAt) >= b.recoveryTimeout {
		state = StateHalfOpen
	}

	snap := HealthSnapshot{
		Backend:             b.name,
		State:               state.String(),
		ConsecutiveFailures: b.failures,
	}
	if !b.lastFailure.IsZero() {
		ts := b.lastFailure
		snap.LastFailureTime = &ts
	}
	if !b.lastSuccess.IsZero() {
		ts := b.lastSuccess
		snap.LastSuccessTime = &ts
	}
	return snap
}

// Execute runs fn through the circuit breaker, recording the outcome.
// If the circuit is open it returns a circuit-open error immediately
// without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	if err := fn(); err != nil {
		b.record(probe, err)
		return err
	}
	b.onSuccess()
	return nil
}

// Do runs a function returning a value through the breaker. It is the
// typed counterpart of Execute for adapter calls that produce results.
func Do[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T

	probe, err := b.admit()
	if err != nil {
		return zero, err
	}

	result, err := fn()
	if err != nil {
		b.record(probe, err)
		return result, err
	}
	b.onSuccess()
	return result, nil
}

// record routes an error through the failure predicate.
func (b *Breaker) record(probe bool, err error) {
	if b.isFailure == nil || b.isFailure(err) {
		b.onFailure(probe)
		return
	}
	b.onNeutral(probe)
}

// admit decides whether a call may proceed. It returns probe=true when the
// call is the single half-open recovery probe. The half-open transition
// happens here, before the probe executes.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.recoveryTimeout {
			return false, vanaerrors.CircuitOpenError(b.name)
		}
		b.state = StateHalfOpen
		b.probing = true
		return true, nil

	default: // StateHalfOpen
		if b.probing {
			// A probe is already in flight; everyone else fails fast.
			return false, vanaerrors.CircuitOpenError(b.name)
		}
		b.probing = true
		return true, nil
	}
}

// onSuccess records a successful call. Any success resets the counter and
// closes the circuit.
func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = StateClosed
	b.probing = false
	b.lastSuccess = b.now()
}

// onFailure records a failed call. A failed probe reopens the circuit and
// restarts the recovery timeout; a closed-state failure counts toward the
// threshold.
func (b *Breaker) onFailure(probe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	if probe {
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
		return
	}

	b.failures++
	if b.state == StateClosed && b.failures >= b.failureThreshold {
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// onNeutral discards a call outcome the predicate excluded. A neutral
// probe puts the circuit back to open with the original timeout intact so
// the next caller may probe again immediately.
func (b *Breaker) onNeutral(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.probing = false
	}
}
