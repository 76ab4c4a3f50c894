package store

import (
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Embedding bucket weights. Tokens carry most of the signal; character
// trigrams smooth over morphology and typos.
const (
	tokenWeight   = 0.7
	trigramWeight = 0.3
	trigramSize   = 3
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// HashEmbedder produces deterministic dense vectors by hashing tokens and
// character trigrams into a fixed number of buckets. No model, no
// network: the same text always embeds to the same unit vector, which is
// what the vector index needs for a fully local setup.
type HashEmbedder struct {
	dims int
}

// DefaultEmbedDimensions balances bucket collisions against index size.
const DefaultEmbedDimensions = 256

// NewHashEmbedder creates an embedder with the given dimensionality.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultEmbedDimensions
	}
	return &HashEmbedder{dims: dims}
}

// Dimensions returns the embedding dimensionality.
func (e *HashEmbedder) Dimensions() int {
	return e.dims
}

// Embed converts text into a unit-length vector. Blank text embeds to the
// zero vector.
func (e *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, e.dims)

	text = strings.TrimSpace(strings.ToLower(text))
	if text == "" {
		return vec
	}

	for _, token := range tokenPattern.FindAllString(text, -1) {
		vec[e.bucket(token)] += tokenWeight
	}

	collapsed := strings.Join(strings.Fields(text), " ")
	for i := 0; i+trigramSize <= len(collapsed); i++ {
		vec[e.bucket(collapsed[i:i+trigramSize])] += trigramWeight
	}

	normalizeInPlace(vec)
	return vec
}

func (e *HashEmbedder) bucket(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dims))
}

// normalizeInPlace scales a vector to unit length. The zero vector is
// left untouched.
func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
