package mcp

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickB03/vana/internal/backend"
	vanaerrors "github.com/NickB03/vana/internal/errors"
	"github.com/NickB03/vana/internal/health"
	"github.com/NickB03/vana/internal/search"
)

type stubAdapter struct {
	name    backend.Name
	records []backend.Record
	err     error
}

func (s *stubAdapter) Name() backend.Name { return s.name }

func (s *stubAdapter) Query(ctx context.Context, text string, k int) ([]backend.Record, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.records, nil
}

func newTestServer(t *testing.T, adapters search.Adapters) *Server {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	orch, err := search.NewOrchestrator(adapters, search.DefaultConfig(), search.WithLogger(logger))
	require.NoError(t, err)

	reporter := health.NewReporter(orch, health.WithLogger(logger))
	t.Cleanup(reporter.Stop)

	srv, err := NewServer(orch, reporter, WithServerLogger(logger))
	require.NoError(t, err)
	return srv
}

func healthyAdapters() search.Adapters {
	return search.Adapters{
		Vector: &stubAdapter{name: backend.Vector, records: []backend.Record{
			{NativeID: "chunk-1", Title: "Vector hit", Score: 0.9, HasScore: true},
		}},
		Graph: &stubAdapter{name: backend.Graph, records: []backend.Record{
			{NativeID: "entity-1", Title: "Graph hit"},
		}},
		Web: &stubAdapter{name: backend.Web, records: []backend.Record{
			{NativeID: "https://example.com", Title: "Web hit", URL: "https://example.com"},
		}},
	}
}

func TestServer_SearchTool(t *testing.T) {
	srv := newTestServer(t, healthyAdapters())

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "hit"})
	require.NoError(t, err)

	require.Len(t, out.Results, 3)
	assert.Equal(t, "vector:chunk-1", out.Results[0].ID)
	assert.Equal(t, 1, out.Results[0].Rank)
	assert.False(t, out.Partial)
	assert.Empty(t, out.FailedBackends)
}

func TestServer_SearchToolRequiresQuery(t *testing.T) {
	srv := newTestServer(t, healthyAdapters())

	_, _, err := srv.searchHandler(context.Background(), nil, SearchInput{})

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, ErrCodeInvalidParams, perr.Code)
}

func TestServer_SearchToolReportsPartial(t *testing.T) {
	adapters := healthyAdapters()
	adapters.Web = &stubAdapter{name: backend.Web, err: assert.AnError}
	srv := newTestServer(t, adapters)

	_, out, err := srv.searchHandler(context.Background(), nil, SearchInput{Query: "hit"})
	require.NoError(t, err)

	assert.True(t, out.Partial)
	assert.Equal(t, []string{"web"}, out.FailedBackends)
}

func TestServer_HealthTool(t *testing.T) {
	srv := newTestServer(t, healthyAdapters())

	_, out, err := srv.healthHandler(context.Background(), nil, HealthInput{})
	require.NoError(t, err)

	assert.True(t, out.Healthy)
	require.Len(t, out.Backends, 3)
	assert.Equal(t, "vector", out.Backends[0].Backend)
}

func TestServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, nil)
	require.Error(t, err)
}

func TestMapError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"empty query", vanaerrors.ErrQueryEmpty, ErrCodeInvalidParams},
		{"all backends down", vanaerrors.AllBackendsError(assert.AnError), ErrCodeBackendsDown},
		{"timeout", vanaerrors.TimeoutError(string(backend.Web), assert.AnError), ErrCodeTimeout},
		{"unknown", assert.AnError, ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := MapError(tt.err)
			require.NotNil(t, perr)
			assert.Equal(t, tt.code, perr.Code)
		})
	}
}
