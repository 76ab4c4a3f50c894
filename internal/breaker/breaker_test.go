package breaker

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// fakeClock is a manually advanced time source for stepping through the
// recovery timeout without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func trip(t *testing.T, b *Breaker, failures int) {
	t.Helper()
	for i := 0; i < failures; i++ {
		_ = b.Execute(func() error { return errors.New("backend down") })
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	// Given: a breaker with threshold 3
	b := New("vector", WithFailureThreshold(3), WithRecoveryTimeout(time.Minute))

	// When: recording 3 consecutive failures
	trip(t, b, 3)

	// Then: circuit is open and calls fail fast without invoking fn
	assert.Equal(t, StateOpen, b.State())

	invoked := false
	err := b.Execute(func() error {
		invoked = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vanaerrors.ErrCircuitOpen))
	assert.False(t, invoked, "open circuit must not invoke the wrapped function")
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := New("graph", WithFailureThreshold(5))

	trip(t, b, 3)
	assert.Equal(t, 3, b.Failures())

	// When: a success occurs before the threshold
	err := b.Execute(func() error { return nil })

	// Then: the counter resets and the circuit stays closed
	require.NoError(t, err)
	assert.Equal(t, 0, b.Failures())
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	clock := newFakeClock()
	b := New("web",
		WithFailureThreshold(2),
		WithRecoveryTimeout(30*time.Second),
		WithClock(clock.Now),
	)

	trip(t, b, 2)
	require.Equal(t, StateOpen, b.State())

	// Before the timeout the circuit stays open.
	clock.Advance(29 * time.Second)
	assert.Equal(t, StateOpen, b.State())

	// When: the recovery timeout elapses
	clock.Advance(1 * time.Second)

	// Then: the state reads half-open and a probe is admitted
	assert.Equal(t, StateHalfOpen, b.State())

	probed := false
	err := b.Execute(func() error {
		probed = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, probed)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
}

func TestBreaker_ProbeFailureReopensAndRestartsTimeout(t *testing.T) {
	clock := newFakeClock()
	b := New("web",
		WithFailureThreshold(1),
		WithRecoveryTimeout(30*time.Second),
		WithClock(clock.Now),
	)

	trip(t, b, 1)
	clock.Advance(30 * time.Second)

	// When: the probe fails
	err := b.Execute(func() error { return errors.New("still down") })
	require.Error(t, err)

	// Then: the circuit reopens with the timeout restarted
	assert.Equal(t, StateOpen, b.State())
	clock.Advance(29 * time.Second)
	assert.Equal(t, StateOpen, b.State(), "timeout must restart from the probe failure")
	clock.Advance(1 * time.Second)
	assert.Equal(t, StateHalfOpen, b.State())
}

func TestBreaker_SingleProbeUnderConcurrency(t *testing.T) {
	clock := newFakeClock()
	b := New("vector",
		WithFailureThreshold(1),
		WithRecoveryTimeout(10*time.Second),
		WithClock(clock.Now),
	)

	trip(t, b, 1)
	clock.Advance(10 * time.Second)

	// When: many concurrent callers race for the half-open probe
	var invoked atomic.Int32
	var rejected atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := b.Execute(func() error {
				invoked.Add(1)
				<-release // hold the probe open so racers observe probing state
				return nil
			})
			if errors.Is(err, vanaerrors.ErrCircuitOpen) {
				rejected.Add(1)
			}
		}()
	}

	// Wait until the probe is in flight and every other caller has been
	// rejected, then release the probe.
	require.Eventually(t, func() bool {
		return invoked.Load() == 1 && rejected.Load() == 15
	}, time.Second, time.Millisecond)
	assert.Equal(t, StateHalfOpen, b.State())
	close(release)
	wg.Wait()

	// Then: exactly one probe ran and all other callers failed fast
	assert.Equal(t, int32(1), invoked.Load())
	assert.Equal(t, int32(15), rejected.Load())
	assert.Equal(t, StateClosed, b.State())
}

func TestDo_ReturnsResultThroughBreaker(t *testing.T) {
	b := New("vector")

	got, err := Do(b, func() ([]string, error) {
		return []string{"hit"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"hit"}, got)
}

func TestDo_FailFastWhenOpen(t *testing.T) {
	b := New("vector", WithFailureThreshold(1), WithRecoveryTimeout(time.Minute))
	trip(t, b, 1)

	invoked := false
	_, err := Do(b, func() (int, error) {
		invoked = true
		return 42, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, vanaerrors.ErrCircuitOpen))
	assert.False(t, invoked)
}

func TestBreaker_Snapshot(t *testing.T) {
	clock := newFakeClock()
	b := New("graph",
		WithFailureThreshold(2),
		WithRecoveryTimeout(time.Minute),
		WithClock(clock.Now),
	)

	// Fresh breaker: closed, no timestamps.
	snap := b.Snapshot()
	assert.Equal(t, "graph", snap.Backend)
	assert.Equal(t, "closed", snap.State)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Nil(t, snap.LastFailureTime)
	assert.Nil(t, snap.LastSuccessTime)

	// After one success and two failures: open with both timestamps set.
	_ = b.Execute(func() error { return nil })
	trip(t, b, 2)

	snap = b.Snapshot()
	assert.Equal(t, "open", snap.State)
	assert.Equal(t, 2, snap.ConsecutiveFailures)
	require.NotNil(t, snap.LastFailureTime)
	require.NotNil(t, snap.LastSuccessTime)

	// Once the timeout elapses the read-only view reports half-open.
	clock.Advance(time.Minute)
	assert.Equal(t, "half-open", b.Snapshot().State)
}

func TestBreaker_Defaults(t *testing.T) {
	b := New("web")
	assert.Equal(t, "web", b.Name())
	assert.Equal(t, DefaultFailureThreshold, b.failureThreshold)
	assert.Equal(t, DefaultRecoveryTimeout, b.recoveryTimeout)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_ConcurrentMixedCalls(t *testing.T) {
	b := New("vector", WithFailureThreshold(10), WithRecoveryTimeout(time.Minute))

	var wg sync.WaitGroup
	var completed atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Execute(func() error {
				if i%2 == 0 {
					return nil
				}
				return errors.New("flaky")
			})
			completed.Add(1)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(32), completed.Load())
}

func TestBreaker_FailurePredicateExemptsErrors(t *testing.T) {
	errSkip := errors.New("canceled")
	b := New("vector",
		WithFailureThreshold(2),
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, errSkip) }))

	// Exempt errors propagate but never charge the counter.
	for i := 0; i < 5; i++ {
		err := b.Execute(func() error { return errSkip })
		require.ErrorIs(t, err, errSkip)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Zero(t, b.Failures())

	// Exempt errors do not reset the counter either.
	_ = b.Execute(func() error { return errors.New("backend down") })
	_ = b.Execute(func() error { return errSkip })
	assert.Equal(t, 1, b.Failures())

	_ = b.Execute(func() error { return errors.New("backend down") })
	assert.Equal(t, StateOpen, b.State())
}

func TestBreaker_NeutralProbeReopensWithoutRestartingTimeout(t *testing.T) {
	clock := newFakeClock()
	errSkip := errors.New("canceled")
	b := New("vector",
		WithFailureThreshold(1),
		WithRecoveryTimeout(time.Minute),
		WithClock(clock.Now),
		WithFailurePredicate(func(err error) bool { return !errors.Is(err, errSkip) }))

	trip(t, b, 1)
	require.Equal(t, StateOpen, b.State())
	clock.Advance(time.Minute)

	// The probe is admitted but its outcome is exempt, so the circuit
	// returns to open and the next caller may probe again immediately.
	err := b.Execute(func() error { return errSkip })
	require.ErrorIs(t, err, errSkip)
	require.Equal(t, StateHalfOpen, b.State(), "elapsed open circuit reports half-open")

	invoked := false
	_ = b.Execute(func() error {
		invoked = true
		return nil
	})
	assert.True(t, invoked, "next caller must be admitted as a fresh probe")
	assert.Equal(t, StateClosed, b.State())
}
