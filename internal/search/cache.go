package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/NickB03/vana/internal/backend"
)

// Cache configuration constants.
const (
	// DefaultResultCacheSize is the default number of query results to cache.
	DefaultResultCacheSize = 256

	// DefaultResultCacheTTL bounds staleness of cached results.
	DefaultResultCacheTTL = 60 * time.Second
)

// ResultCache memoizes complete search responses keyed by the query shape.
// Only full responses are cached; partial results from degraded backends
// are never stored, so recovering backends become visible immediately.
type ResultCache struct {
	cache *expirable.LRU[string, *Response]
}

// NewResultCache creates a result cache with the given capacity and TTL.
func NewResultCache(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		size = DefaultResultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultResultCacheTTL
	}
	return &ResultCache{
		cache: expirable.NewLRU[string, *Response](size, nil, ttl),
	}
}

// cacheKey derives a stable key from everything that shapes a response.
func (c *ResultCache) cacheKey(q Query) string {
	combined := fmt.Sprintf("%s\x00%d\x00%d\x00%d\x00%d",
		q.Text,
		q.DesiredCount,
		q.K(backend.Vector, 0),
		q.K(backend.Graph, 0),
		q.K(backend.Web, 0),
	)
	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// Get returns the cached response for a query, if present and fresh. The
// returned response is a copy with its own results slice, so callers may
// reorder or trim it without touching the cached entry.
func (c *ResultCache) Get(q Query) (*Response, bool) {
	resp, ok := c.cache.Get(c.cacheKey(q))
	if !ok {
		return nil, false
	}
	out := *resp
	out.Results = make([]RankedResult, len(resp.Results))
	copy(out.Results, resp.Results)
	return &out, true
}

// Put stores a response unless it is partial. The stored copy is detached
// from the caller's results slice for the same reason Get detaches its own.
func (c *ResultCache) Put(q Query, resp *Response) {
	if resp == nil || resp.Partial {
		return
	}
	stored := *resp
	stored.Results = make([]RankedResult, len(resp.Results))
	copy(stored.Results, resp.Results)
	c.cache.Add(c.cacheKey(q), &stored)
}

// Purge drops all cached responses.
func (c *ResultCache) Purge() {
	c.cache.Purge()
}

// Len reports the number of cached responses.
func (c *ResultCache) Len() int {
	return c.cache.Len()
}
