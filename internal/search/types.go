// Package search implements the hybrid retrieval pipeline: fan-out to the
// vector, graph, and web backends, normalization into a canonical result
// shape, cross-backend deduplication, and weighted-score fusion ranking.
package search

import (
	"fmt"
	"math"
	"time"

	"github.com/NickB03/vana/internal/backend"
	vanaerrors "github.com/NickB03/vana/internal/errors"
)

// Query is one search request. Immutable once created.
type Query struct {
	// Text is the query text.
	Text string

	// DesiredCount is the number of ranked results the caller wants.
	DesiredCount int

	// PerBackendK overrides the per-backend result count hint.
	// Backends without an override use the orchestrator default.
	PerBackendK map[backend.Name]int
}

// K returns the count hint for one backend, falling back to def.
func (q Query) K(name backend.Name, def int) int {
	if k, ok := q.PerBackendK[name]; ok && k > 0 {
		return k
	}
	return def
}

// ResultItem is the canonical representation of one hit, produced exactly
// once by the normalizer from one raw backend record. NormalizedScore is
// set once during ranking and never mutated afterwards.
type ResultItem struct {
	// ID is unique per backend and native identifier.
	ID string

	// Backend names the source backend.
	Backend backend.Name

	// Title is an optional display title; empty when the backend has none.
	Title string

	// Body is the primary text of the hit.
	Body string

	// URL is an optional canonical location; empty when the backend has none.
	URL string

	// RawScore is the backend-native relevance score in [0,1].
	// Valid only when HasRawScore is true.
	RawScore float64

	// HasRawScore distinguishes "score zero" from "no score reported".
	HasRawScore bool

	// NormalizedScore is the [0,1] score assigned by the ranker.
	NormalizedScore float64

	// Metadata carries flat provenance and backend-specific fields.
	Metadata map[string]string
}

// RankedResult is one entry of the final ordered list, produced only by
// the ranker. Ranks form a dense 1..N sequence with non-increasing
// FinalScore.
type RankedResult struct {
	Item       *ResultItem
	FinalScore float64
	Rank       int
}

// Weights configures the relative importance of the three backends in the
// weighted-score fusion. The weights must sum to 1.0.
type Weights struct {
	Vector float64 `yaml:"vector" json:"vector"`
	Graph  float64 `yaml:"graph" json:"graph"`
	Web    float64 `yaml:"web" json:"web"`
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{
		Vector: 0.5,
		Graph:  0.3,
		Web:    0.2,
	}
}

// For returns the weight for one backend.
func (w Weights) For(name backend.Name) float64 {
	switch name {
	case backend.Vector:
		return w.Vector
	case backend.Graph:
		return w.Graph
	case backend.Web:
		return w.Web
	default:
		return 0
	}
}

// weightSumTolerance absorbs float accumulation error when validating
// that weights sum to 1.0.
const weightSumTolerance = 1e-9

// Validate checks that all weights are non-negative and sum to 1.0.
// Validation is eager: constructors call this and fail fast, so weight
// errors never surface at search time.
func (w Weights) Validate() error {
	if w.Vector < 0 || w.Graph < 0 || w.Web < 0 {
		return vanaerrors.New(vanaerrors.ErrCodeWeightsInvalid,
			fmt.Sprintf("backend weights must be non-negative: vector=%v graph=%v web=%v", w.Vector, w.Graph, w.Web), nil)
	}
	sum := w.Vector + w.Graph + w.Web
	if math.Abs(sum-1.0) > weightSumTolerance {
		return vanaerrors.New(vanaerrors.ErrCodeWeightsInvalid,
			fmt.Sprintf("backend weights must sum to 1.0, got %v", sum), nil)
	}
	return nil
}

// Defaults for the orchestrator configuration.
const (
	DefaultBackendK      = 5
	DefaultDesiredCount  = 10
	DefaultMaxResults    = 100
	DefaultSearchTimeout = 5 * time.Second
	DefaultBaselineScore = 0.1
)

// Config configures the orchestrator.
type Config struct {
	// Weights are the fusion weights, validated at construction.
	Weights Weights

	// DefaultK is the per-backend count hint when the query has no override.
	DefaultK int

	// DefaultCount is the desired result count when the query leaves it zero.
	DefaultCount int

	// MaxResults caps the desired result count.
	MaxResults int

	// SearchTimeout is the overall deadline for one search. Adapter calls
	// still outstanding at the deadline are cancelled and recorded as
	// failures against their breakers.
	SearchTimeout time.Duration

	// BaselineScore is assigned to items whose backend reported no score.
	BaselineScore float64

	// CountCanceled controls whether deadline cancellations count toward
	// the breaker failure threshold like any other failure.
	CountCanceled bool
}

// DefaultConfig returns sensible orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		DefaultK:      DefaultBackendK,
		DefaultCount:  DefaultDesiredCount,
		MaxResults:    DefaultMaxResults,
		SearchTimeout: DefaultSearchTimeout,
		BaselineScore: DefaultBaselineScore,
		CountCanceled: true,
	}
}

// itemID builds the pipeline-wide identifier from backend and native ID.
func itemID(name backend.Name, nativeID string) string {
	return string(name) + ":" + nativeID
}
