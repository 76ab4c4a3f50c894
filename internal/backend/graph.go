package backend

import (
	"context"
	"fmt"
	"strings"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// GraphAdapter wraps a GraphBackend behind the uniform Adapter contract.
type GraphAdapter struct {
	backend GraphBackend
}

var _ Adapter = (*GraphAdapter)(nil)

// NewGraphAdapter creates an adapter over the given graph backend.
func NewGraphAdapter(b GraphBackend) (*GraphAdapter, error) {
	if b == nil {
		return nil, fmt.Errorf("graph backend is required")
	}
	return &GraphAdapter{backend: b}, nil
}

// Name identifies the graph backend.
func (a *GraphAdapter) Name() Name {
	return Graph
}

// Query runs one entity lookup and maps entities to Records.
// The graph store reports no relevance score; the ranker assigns its
// baseline downstream. The count hint truncates because the backend
// contract takes only the query text.
func (a *GraphAdapter) Query(ctx context.Context, text string, k int) ([]Record, error) {
	entities, err := a.backend.Query(ctx, text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, vanaerrors.TimeoutError(string(Graph), err)
		}
		return nil, vanaerrors.BackendError(string(Graph), err)
	}

	if k > 0 && len(entities) > k {
		entities = entities[:k]
	}

	records := make([]Record, 0, len(entities))
	for _, e := range entities {
		records = append(records, Record{
			NativeID: e.ID,
			Title:    e.Name,
			Body:     strings.Join(e.Observations, "\n"),
			Fields: map[string]string{
				"entity_name": e.Name,
				"entity_type": e.Type,
			},
		})
	}
	return records, nil
}
