package backend

import (
	"context"
	"fmt"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// WebAdapter wraps a WebBackend behind the uniform Adapter contract.
type WebAdapter struct {
	backend WebBackend
}

var _ Adapter = (*WebAdapter)(nil)

// NewWebAdapter creates an adapter over the given web search backend.
func NewWebAdapter(b WebBackend) (*WebAdapter, error) {
	if b == nil {
		return nil, fmt.Errorf("web backend is required")
	}
	return &WebAdapter{backend: b}, nil
}

// Name identifies the web backend.
func (a *WebAdapter) Name() Name {
	return Web
}

// Query runs one web search and maps hits to Records.
// Web providers return no comparable relevance score, so records carry no
// score and the ranker applies its baseline.
func (a *WebAdapter) Query(ctx context.Context, text string, k int) ([]Record, error) {
	hits, err := a.backend.Query(ctx, text, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil, vanaerrors.TimeoutError(string(Web), err)
		}
		return nil, vanaerrors.BackendError(string(Web), err)
	}

	records := make([]Record, 0, len(hits))
	for i, h := range hits {
		records = append(records, Record{
			// Web results have no stable native ID; the URL is the identity,
			// falling back to list position for results without one.
			NativeID: webNativeID(h.URL, i),
			Title:    h.Title,
			Body:     h.Snippet,
			URL:      h.URL,
		})
	}
	return records, nil
}

func webNativeID(url string, position int) string {
	if url != "" {
		return url
	}
	return fmt.Sprintf("pos-%d", position)
}
