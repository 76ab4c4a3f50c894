package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

type fakeVectorBackend struct {
	hits []VectorHit
	err  error
}

func (f *fakeVectorBackend) Query(ctx context.Context, text string, k int) ([]VectorHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.hits, nil
}

type fakeGraphBackend struct {
	entities []Entity
	err      error
}

func (f *fakeGraphBackend) Query(ctx context.Context, text string) ([]Entity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entities, nil
}

type fakeWebBackend struct {
	hits []WebHit
	err  error
}

func (f *fakeWebBackend) Query(ctx context.Context, text string, k int) ([]WebHit, error) {
	if f.err != nil {
		return nil, f.err
	}
	if k > 0 && len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

func TestName_PriorityOrder(t *testing.T) {
	// Vector > Graph > Web, matching the fixed tie-break priority.
	assert.Less(t, Vector.Priority(), Graph.Priority())
	assert.Less(t, Graph.Priority(), Web.Priority())
	assert.Equal(t, []Name{Vector, Graph, Web}, All())
}

func TestName_Valid(t *testing.T) {
	assert.True(t, Vector.Valid())
	assert.True(t, Graph.Valid())
	assert.True(t, Web.Valid())
	assert.False(t, Name("sparql").Valid())
}

func TestVectorAdapter_MapsHitsToRecords(t *testing.T) {
	// Given: a vector backend with one scored hit carrying payload fields
	adapter, err := NewVectorAdapter(&fakeVectorBackend{
		hits: []VectorHit{
			{ID: "v1", Score: 0.9, Payload: map[string]string{
				"title": "Design notes",
				"body":  "circuit breaker states",
				"url":   "http://docs/breaker",
				"path":  "docs/breaker.md",
			}},
		},
	})
	require.NoError(t, err)

	// When: querying through the adapter
	records, err := adapter.Query(context.Background(), "breaker", 5)

	// Then: the record carries the normalized shape with score preserved
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "v1", rec.NativeID)
	assert.Equal(t, "Design notes", rec.Title)
	assert.Equal(t, "circuit breaker states", rec.Body)
	assert.Equal(t, "http://docs/breaker", rec.URL)
	assert.True(t, rec.HasScore)
	assert.InDelta(t, 0.9, rec.Score, 1e-9)
	assert.Equal(t, "docs/breaker.md", rec.Fields["path"])
}

func TestVectorAdapter_ClampsScore(t *testing.T) {
	adapter, err := NewVectorAdapter(&fakeVectorBackend{
		hits: []VectorHit{{ID: "a", Score: 1.2}, {ID: "b", Score: -0.1}},
	})
	require.NoError(t, err)

	records, err := adapter.Query(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, records[0].Score)
	assert.Equal(t, 0.0, records[1].Score)
}

func TestVectorAdapter_WrapsBackendError(t *testing.T) {
	adapter, err := NewVectorAdapter(&fakeVectorBackend{err: errors.New("dial tcp: refused")})
	require.NoError(t, err)

	_, err = adapter.Query(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Equal(t, vanaerrors.ErrCodeBackendCall, vanaerrors.GetCode(err))
}

func TestVectorAdapter_CanceledContextIsTimeout(t *testing.T) {
	adapter, err := NewVectorAdapter(&fakeVectorBackend{err: context.DeadlineExceeded})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = adapter.Query(ctx, "q", 5)
	require.Error(t, err)
	assert.Equal(t, vanaerrors.ErrCodeBackendTimeout, vanaerrors.GetCode(err))
}

func TestGraphAdapter_JoinsObservationsAndTruncates(t *testing.T) {
	adapter, err := NewGraphAdapter(&fakeGraphBackend{
		entities: []Entity{
			{ID: "e1", Name: "Orchestrator", Type: "component", Observations: []string{"fans out queries", "owns breakers"}},
			{ID: "e2", Name: "Ranker", Type: "component", Observations: []string{"weighted fusion"}},
			{ID: "e3", Name: "Cache", Type: "component"},
		},
	})
	require.NoError(t, err)

	records, err := adapter.Query(context.Background(), "orchestrator", 2)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "e1", records[0].NativeID)
	assert.Equal(t, "Orchestrator", records[0].Title)
	assert.Equal(t, "fans out queries\nowns breakers", records[0].Body)
	assert.Equal(t, "component", records[0].Fields["entity_type"])
	assert.False(t, records[0].HasScore, "graph backend reports no score")
	assert.Empty(t, records[0].URL)
}

func TestGraphAdapter_EmptyResultIsNotError(t *testing.T) {
	adapter, err := NewGraphAdapter(&fakeGraphBackend{})
	require.NoError(t, err)

	records, err := adapter.Query(context.Background(), "nothing", 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWebAdapter_MapsHitsAndIdentity(t *testing.T) {
	adapter, err := NewWebAdapter(&fakeWebBackend{
		hits: []WebHit{
			{Title: "X", URL: "http://x", Snippet: "about x"},
			{Title: "No URL", Snippet: "orphan"},
		},
	})
	require.NoError(t, err)

	records, err := adapter.Query(context.Background(), "x", 5)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "http://x", records[0].NativeID)
	assert.Equal(t, "about x", records[0].Body)
	assert.False(t, records[0].HasScore)

	// Results without a URL fall back to positional identity.
	assert.Equal(t, "pos-1", records[1].NativeID)
}

func TestWebAdapter_WrapsBackendError(t *testing.T) {
	adapter, err := NewWebAdapter(&fakeWebBackend{err: errors.New("503 service unavailable")})
	require.NoError(t, err)

	_, err = adapter.Query(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Equal(t, vanaerrors.ErrCodeBackendCall, vanaerrors.GetCode(err))
}

func TestNewAdapters_NilBackendRejected(t *testing.T) {
	_, err := NewVectorAdapter(nil)
	assert.Error(t, err)
	_, err = NewGraphAdapter(nil)
	assert.Error(t, err)
	_, err = NewWebAdapter(nil)
	assert.Error(t, err)
}
