package backend

import (
	"context"
	"fmt"
	"strconv"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// VectorAdapter wraps a VectorBackend behind the uniform Adapter contract.
type VectorAdapter struct {
	backend VectorBackend
}

var _ Adapter = (*VectorAdapter)(nil)

// NewVectorAdapter creates an adapter over the given vector backend.
func NewVectorAdapter(b VectorBackend) (*VectorAdapter, error) {
	if b == nil {
		return nil, fmt.Errorf("vector backend is required")
	}
	return &VectorAdapter{backend: b}, nil
}

// Name identifies the vector backend.
func (a *VectorAdapter) Name() Name {
	return Vector
}

// Query runs one similarity search and maps hits to Records.
// Similarity scores are clamped to [0,1]; backends that report a distance
// are expected to convert to similarity (1 - distance) before this layer.
func (a *VectorAdapter) Query(ctx context.Context, text string, k int) ([]Record, error) {
	hits, err := a.backend.Query(ctx, text, k)
	if err != nil {
		if ctx.Err() != nil {
			return nil, vanaerrors.TimeoutError(string(Vector), err)
		}
		return nil, vanaerrors.BackendError(string(Vector), err)
	}

	records := make([]Record, 0, len(hits))
	for _, h := range hits {
		rec := Record{
			NativeID: h.ID,
			Score:    clamp01(h.Score),
			HasScore: true,
			Fields:   map[string]string{"raw_score": strconv.FormatFloat(h.Score, 'f', -1, 64)},
		}
		if h.Payload != nil {
			rec.Title = h.Payload["title"]
			rec.Body = h.Payload["body"]
			rec.URL = h.Payload["url"]
			for key, val := range h.Payload {
				if key == "title" || key == "body" || key == "url" {
					continue
				}
				rec.Fields[key] = val
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
