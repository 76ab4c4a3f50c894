// Package backend defines the uniform adapter contract over the three
// knowledge backends (vector similarity, graph store, web search) and the
// narrow interfaces each backend implementation must satisfy.
//
// Adapters translate one backend's native call and response shape into the
// common Record type without leaking backend-specific types upward. They
// hold no search-related mutable state; failure accounting lives entirely
// in the owning circuit breaker.
package backend

import (
	"context"
)

// Name identifies one of the three knowledge backends.
// The set is closed: adding a backend means adding a constant and an
// adapter, not inserting into a runtime map.
type Name string

const (
	// Vector is the dense vector similarity backend.
	Vector Name = "vector"
	// Graph is the structured knowledge (entity/observation) backend.
	Graph Name = "graph"
	// Web is the external web search backend.
	Web Name = "web"
)

// All returns the backends in fixed priority order (highest first).
// The order doubles as the deduplication and ranking tie-break priority.
func All() []Name {
	return []Name{Vector, Graph, Web}
}

// Priority returns the fixed tie-break priority of the backend.
// Lower values rank first: Vector > Graph > Web.
func (n Name) Priority() int {
	switch n {
	case Vector:
		return 0
	case Graph:
		return 1
	case Web:
		return 2
	default:
		return 3
	}
}

// Valid reports whether n is one of the three known backends.
func (n Name) Valid() bool {
	switch n {
	case Vector, Graph, Web:
		return true
	}
	return false
}

// String returns the backend name.
func (n Name) String() string {
	return string(n)
}

// Record is one backend-native hit reduced to the fields the normalizer
// consumes. Missing optional fields stay empty; HasScore distinguishes
// "score zero" from "no score reported".
type Record struct {
	// NativeID is the backend's own identifier for the hit.
	NativeID string

	// Title is an optional display title.
	Title string

	// Body is the primary text of the hit.
	Body string

	// URL is an optional canonical location.
	URL string

	// Score is the backend-native relevance score, already scaled to [0,1]
	// by the adapter when HasScore is true.
	Score float64

	// HasScore reports whether the backend provided a relevance score.
	HasScore bool

	// Fields carries backend-specific metadata as flat key-value pairs.
	Fields map[string]string
}

// Adapter is the uniform interface wrapping one backend call.
//
// An empty result list means "no hits" and is not an error. Network,
// timeout, and auth failures are fatal for that one call and propagate to
// the owning circuit breaker; adapters never retry.
type Adapter interface {
	// Name identifies which backend this adapter wraps.
	Name() Name

	// Query runs one backend call for the query text with a per-backend
	// count hint and returns the hits in backend order.
	Query(ctx context.Context, text string, k int) ([]Record, error)
}

// VectorHit is one result from the dense similarity backend.
type VectorHit struct {
	ID      string
	Score   float64 // similarity in [0,1], higher is closer
	Payload map[string]string
}

// VectorBackend is the contract of the external nearest-neighbor index.
type VectorBackend interface {
	Query(ctx context.Context, text string, k int) ([]VectorHit, error)
}

// Entity is one result from the structured knowledge store.
type Entity struct {
	ID           string
	Name         string
	Type         string
	Observations []string
}

// GraphBackend is the contract of the external structured knowledge store.
type GraphBackend interface {
	Query(ctx context.Context, text string) ([]Entity, error)
}

// WebHit is one result from the external web search provider.
type WebHit struct {
	Title   string
	URL     string
	Snippet string
}

// WebBackend is the contract of the external web search provider.
type WebBackend interface {
	Query(ctx context.Context, text string, k int) ([]WebHit, error)
}
