package search

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickB03/vana/internal/backend"
	"github.com/NickB03/vana/internal/breaker"
	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// stubAdapter is a canned backend adapter for orchestrator tests.
type stubAdapter struct {
	name    backend.Name
	records []backend.Record
	err     error
	calls   atomic.Int32
	fn      func(ctx context.Context, text string, k int) ([]backend.Record, error)
}

func (s *stubAdapter) Name() backend.Name { return s.name }

func (s *stubAdapter) Query(ctx context.Context, text string, k int) ([]backend.Record, error) {
	s.calls.Add(1)
	if s.fn != nil {
		return s.fn(ctx, text, k)
	}
	if s.err != nil {
		return nil, s.err
	}
	out := s.records
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

var _ backend.Adapter = (*stubAdapter)(nil)

func testAdapters(vector, graph, web *stubAdapter) Adapters {
	if vector == nil {
		vector = &stubAdapter{name: backend.Vector}
	}
	if graph == nil {
		graph = &stubAdapter{name: backend.Graph}
	}
	if web == nil {
		web = &stubAdapter{name: backend.Web}
	}
	return Adapters{Vector: vector, Graph: graph, Web: web}
}

func newTestOrchestrator(t *testing.T, adapters Adapters, opts ...OrchestratorOption) *Orchestrator {
	t.Helper()
	opts = append(opts, WithLogger(slog.New(slog.DiscardHandler)))
	o, err := NewOrchestrator(adapters, DefaultConfig(), opts...)
	require.NoError(t, err)
	return o
}

func TestNewOrchestrator_RequiresAllAdapters(t *testing.T) {
	_, err := NewOrchestrator(Adapters{Vector: &stubAdapter{name: backend.Vector}}, DefaultConfig())
	require.Error(t, err)
	assert.Equal(t, vanaerrors.ErrCodeConfigInvalid, vanaerrors.GetCode(err))
}

func TestNewOrchestrator_RejectsBadWeights(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Weights = Weights{Vector: 0.9, Graph: 0.9, Web: 0.9}

	_, err := NewOrchestrator(testAdapters(nil, nil, nil), cfg)
	require.Error(t, err)
	assert.Equal(t, vanaerrors.ErrCodeWeightsInvalid, vanaerrors.GetCode(err))
}

func TestSearch_FusesAllBackends(t *testing.T) {
	// Given one scored vector hit, an empty graph, and one scoreless web
	// hit under default weights.
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", Body: "vector hit", Score: 0.9, HasScore: true},
	}}
	web := &stubAdapter{name: backend.Web, records: []backend.Record{
		{NativeID: "http://x", Title: "X", URL: "http://x", Body: "web hit"},
	}}
	o := newTestOrchestrator(t, testAdapters(vector, nil, web))

	resp, err := o.Search(context.Background(), Query{Text: "anything"})

	// Then the vector hit ranks first at 0.45 and the web hit second at
	// 0.02, with dense ranks and no degradation.
	require.NoError(t, err)
	assert.False(t, resp.Partial)
	assert.Empty(t, resp.FailedBackends)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "vector:v1", resp.Results[0].Item.ID)
	assert.InDelta(t, 0.45, resp.Results[0].FinalScore, 1e-12)
	assert.Equal(t, 1, resp.Results[0].Rank)
	assert.Equal(t, "web:http://x", resp.Results[1].Item.ID)
	assert.InDelta(t, 0.02, resp.Results[1].FinalScore, 1e-12)
	assert.Equal(t, 2, resp.Results[1].Rank)
}

func TestSearch_DeduplicatesAcrossBackends(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", URL: "https://docs/x", Score: 0.8, HasScore: true},
	}}
	web := &stubAdapter{name: backend.Web, records: []backend.Record{
		{NativeID: "https://docs/x", URL: "https://docs/x", Title: "X"},
	}}
	o := newTestOrchestrator(t, testAdapters(vector, nil, web))

	resp, err := o.Search(context.Background(), Query{Text: "dup"})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "vector:v1", resp.Results[0].Item.ID)
	assert.Equal(t, "vector,web", resp.Results[0].Item.Metadata["provenance"])
}

func TestSearch_PartialOnSingleBackendFailure(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", Body: "hit", Score: 0.5, HasScore: true},
	}}
	graph := &stubAdapter{name: backend.Graph, err: vanaerrors.BackendError("graph", assert.AnError)}
	o := newTestOrchestrator(t, testAdapters(vector, graph, nil))

	resp, err := o.Search(context.Background(), Query{Text: "q"})

	require.NoError(t, err)
	assert.True(t, resp.Partial)
	assert.Equal(t, []backend.Name{backend.Graph}, resp.FailedBackends)
	require.Contains(t, resp.Errors, backend.Graph)
	require.Len(t, resp.Results, 1)
}

func TestSearch_AllBackendsDown(t *testing.T) {
	fail := func(name backend.Name) *stubAdapter {
		return &stubAdapter{name: name, err: vanaerrors.BackendError(string(name), assert.AnError)}
	}
	o := newTestOrchestrator(t, testAdapters(
		fail(backend.Vector), fail(backend.Graph), fail(backend.Web)))

	resp, err := o.Search(context.Background(), Query{Text: "q"})

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, vanaerrors.ErrCodeAllBackendsDown, vanaerrors.GetCode(err))
	assert.ErrorIs(t, err, vanaerrors.ErrAllBackendsUnavailable)
}

func TestSearch_EmptyQueryRejected(t *testing.T) {
	o := newTestOrchestrator(t, testAdapters(nil, nil, nil))

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := o.Search(context.Background(), Query{Text: text})
		require.Error(t, err)
		assert.ErrorIs(t, err, vanaerrors.ErrQueryEmpty)
	}
}

func TestSearch_DesiredCountDefaultsAndCap(t *testing.T) {
	records := make([]backend.Record, 0, 150)
	for i := range 150 {
		records = append(records, backend.Record{
			NativeID: fmt.Sprintf("chunk-%03d", i),
			Score:    0.5,
			HasScore: true,
		})
	}
	vector := &stubAdapter{name: backend.Vector, records: records}
	o := newTestOrchestrator(t, testAdapters(vector, nil, nil))

	// Default count when the query leaves it zero.
	resp, err := o.Search(context.Background(), Query{
		Text:        "q",
		PerBackendK: map[backend.Name]int{backend.Vector: 150},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, DefaultDesiredCount)

	// Requests above the cap are clamped.
	resp, err = o.Search(context.Background(), Query{
		Text:         "q",
		DesiredCount: 10_000,
		PerBackendK:  map[backend.Name]int{backend.Vector: 150},
	})
	require.NoError(t, err)
	assert.Len(t, resp.Results, DefaultMaxResults)
}

func TestSearch_PerBackendKOverride(t *testing.T) {
	var gotK atomic.Int32
	vector := &stubAdapter{name: backend.Vector, fn: func(_ context.Context, _ string, k int) ([]backend.Record, error) {
		gotK.Store(int32(k))
		return nil, nil
	}}
	o := newTestOrchestrator(t, testAdapters(vector, nil, nil))

	_, err := o.Search(context.Background(), Query{
		Text:        "q",
		PerBackendK: map[backend.Name]int{backend.Vector: 17},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(17), gotK.Load())
}

func TestSearch_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, err: vanaerrors.BackendError("vector", assert.AnError)}
	graph := &stubAdapter{name: backend.Graph, records: []backend.Record{
		{NativeID: "e1", Body: "entity"},
	}}
	o := newTestOrchestrator(t, testAdapters(vector, graph, nil))

	for range breaker.DefaultFailureThreshold {
		resp, err := o.Search(context.Background(), Query{Text: "q"})
		require.NoError(t, err)
		assert.True(t, resp.Partial)
	}
	require.Equal(t, int32(breaker.DefaultFailureThreshold), vector.calls.Load())
	assert.Equal(t, breaker.StateOpen, o.Breaker(backend.Vector).State())

	// The open circuit fails fast without touching the backend.
	resp, err := o.Search(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assert.True(t, resp.Partial)
	assert.Equal(t, int32(breaker.DefaultFailureThreshold), vector.calls.Load())
	assert.Equal(t, vanaerrors.ErrCodeCircuitOpen, vanaerrors.GetCode(resp.Errors[backend.Vector]))
}

func TestSearch_CachesFullResponses(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", Body: "hit", Score: 0.7, HasScore: true},
	}}
	o := newTestOrchestrator(t, testAdapters(vector, nil, nil),
		WithResultCache(NewResultCache(8, time.Minute)))

	first, err := o.Search(context.Background(), Query{Text: "cached"})
	require.NoError(t, err)
	second, err := o.Search(context.Background(), Query{Text: "cached"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), vector.calls.Load())
}

func TestSearch_CacheHitsAreIsolated(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", Title: "original", Score: 0.7, HasScore: true},
	}}
	o := newTestOrchestrator(t, testAdapters(vector, nil, nil),
		WithResultCache(NewResultCache(8, time.Minute)))

	first, err := o.Search(context.Background(), Query{Text: "cached"})
	require.NoError(t, err)
	second, err := o.Search(context.Background(), Query{Text: "cached"})
	require.NoError(t, err)
	require.Len(t, second.Results, 1)

	// Callers may trim or reorder their copy without poisoning the cache.
	second.Results[0].Rank = 99
	second.Results = second.Results[:0]

	third, err := o.Search(context.Background(), Query{Text: "cached"})
	require.NoError(t, err)
	require.Len(t, third.Results, 1)
	assert.Equal(t, 1, third.Results[0].Rank)
	assert.Equal(t, first.Results, third.Results)
	assert.Equal(t, int32(1), vector.calls.Load())
}

func TestSearch_PartialResponsesNotCached(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", Body: "hit", Score: 0.7, HasScore: true},
	}}
	web := &stubAdapter{name: backend.Web, err: vanaerrors.BackendError("web", assert.AnError)}
	o := newTestOrchestrator(t, testAdapters(vector, nil, web),
		WithResultCache(NewResultCache(8, time.Minute)))

	resp, err := o.Search(context.Background(), Query{Text: "degraded"})
	require.NoError(t, err)
	require.True(t, resp.Partial)

	_, err = o.Search(context.Background(), Query{Text: "degraded"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), vector.calls.Load())
}

func TestSearch_TimeoutCountsTowardBreakerByDefault(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, fn: func(ctx context.Context, _ string, _ int) ([]backend.Record, error) {
		<-ctx.Done()
		return nil, vanaerrors.TimeoutError("vector", ctx.Err())
	}}
	cfg := DefaultConfig()
	cfg.SearchTimeout = 20 * time.Millisecond
	o, err := NewOrchestrator(testAdapters(vector, nil, nil), cfg,
		WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	resp, err := o.Search(context.Background(), Query{Text: "slow"})

	require.NoError(t, err)
	assert.True(t, resp.Partial)
	assert.Equal(t, 1, o.Breaker(backend.Vector).Failures())
}

func TestSearch_TimeoutExemptWhenCountCanceledOff(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, fn: func(ctx context.Context, _ string, _ int) ([]backend.Record, error) {
		<-ctx.Done()
		return nil, vanaerrors.TimeoutError("vector", ctx.Err())
	}}
	cfg := DefaultConfig()
	cfg.SearchTimeout = 20 * time.Millisecond
	cfg.CountCanceled = false
	o, err := NewOrchestrator(testAdapters(vector, nil, nil), cfg,
		WithLogger(slog.New(slog.DiscardHandler)))
	require.NoError(t, err)

	resp, err := o.Search(context.Background(), Query{Text: "slow"})

	// The backend still degrades the response but the breaker is not
	// charged for the deadline.
	require.NoError(t, err)
	assert.True(t, resp.Partial)
	assert.Equal(t, 0, o.Breaker(backend.Vector).Failures())
}

func TestHealthSnapshot_PriorityOrder(t *testing.T) {
	o := newTestOrchestrator(t, testAdapters(nil, nil, nil))

	snaps := o.HealthSnapshot()

	require.Len(t, snaps, 3)
	assert.Equal(t, "vector", snaps[0].Backend)
	assert.Equal(t, "graph", snaps[1].Backend)
	assert.Equal(t, "web", snaps[2].Backend)
	for _, s := range snaps {
		assert.Equal(t, "closed", s.State)
	}
}

func TestProbe_FeedsBreaker(t *testing.T) {
	graph := &stubAdapter{name: backend.Graph, err: vanaerrors.BackendError("graph", assert.AnError)}
	o := newTestOrchestrator(t, testAdapters(nil, graph, nil))

	require.Error(t, o.Probe(context.Background(), backend.Graph))
	assert.Equal(t, 1, o.Breaker(backend.Graph).Failures())

	graph.err = nil
	require.NoError(t, o.Probe(context.Background(), backend.Graph))
	assert.Equal(t, 0, o.Breaker(backend.Graph).Failures())
}

func TestProbe_UnknownBackend(t *testing.T) {
	o := newTestOrchestrator(t, testAdapters(nil, nil, nil))

	err := o.Probe(context.Background(), backend.Name("oracle"))
	require.Error(t, err)
	assert.Equal(t, vanaerrors.ErrCodeInvalidInput, vanaerrors.GetCode(err))
}

func TestUpdateTunables_ReordersResults(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", Title: "vector", Score: 0.5, HasScore: true},
	}}
	web := &stubAdapter{name: backend.Web, records: []backend.Record{
		{NativeID: "w1", Title: "web", Score: 0.9, HasScore: true},
	}}
	o := newTestOrchestrator(t, testAdapters(vector, nil, web))

	resp, err := o.Search(context.Background(), Query{Text: "reorder"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "vector:v1", resp.Results[0].Item.ID)

	require.NoError(t, o.UpdateTunables(Weights{Vector: 0.1, Graph: 0.1, Web: 0.8}, 0, 0))

	resp, err = o.Search(context.Background(), Query{Text: "reorder"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "web:w1", resp.Results[0].Item.ID)
}

func TestUpdateTunables_RejectsInvalidWeights(t *testing.T) {
	o := newTestOrchestrator(t, testAdapters(nil, nil, nil))

	err := o.UpdateTunables(Weights{Vector: 0.9, Graph: 0.9, Web: 0.9}, 0, 0)
	require.Error(t, err)
	assert.Equal(t, vanaerrors.ErrCodeWeightsInvalid, vanaerrors.GetCode(err))
}

func TestUpdateTunables_PurgesCache(t *testing.T) {
	vector := &stubAdapter{name: backend.Vector, records: []backend.Record{
		{NativeID: "v1", Title: "vector", Score: 0.5, HasScore: true},
	}}
	cache := NewResultCache(8, time.Minute)
	o := newTestOrchestrator(t, testAdapters(vector, nil, nil), WithResultCache(cache))

	_, err := o.Search(context.Background(), Query{Text: "cached"})
	require.NoError(t, err)
	require.Equal(t, 1, cache.Len())

	require.NoError(t, o.UpdateTunables(DefaultWeights(), 0, 0))
	assert.Zero(t, cache.Len())
}
