// Package store provides the local retrieval backends: a hash-embedding
// HNSW vector index and a SQLite-backed entity store with a bleve match
// index over entity text. Both satisfy the backend contracts consumed by
// the search orchestrator.
package store

import (
	"fmt"
)

// Document is one ingestable piece of content for the vector index.
type Document struct {
	ID       string            `json:"id" yaml:"id"`
	Title    string            `json:"title,omitempty" yaml:"title,omitempty"`
	Body     string            `json:"body" yaml:"body"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// EntityInput is one ingestable entity for the graph store.
type EntityInput struct {
	Name         string   `json:"name" yaml:"name"`
	Type         string   `json:"type" yaml:"type"`
	Observations []string `json:"observations,omitempty" yaml:"observations,omitempty"`
}

// Config configures the on-disk store layout.
type Config struct {
	// DataDir is the root directory holding all store state.
	DataDir string

	// EmbedDimensions is the hash embedder's output dimensionality.
	EmbedDimensions int
}

// ErrDimensionMismatch is returned when a vector's dimensionality does not
// match the index.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
