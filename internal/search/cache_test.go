package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickB03/vana/internal/backend"
)

func TestResultCache_KeyedByQueryShape(t *testing.T) {
	c := NewResultCache(8, time.Minute)
	resp := &Response{}

	c.Put(Query{Text: "q", DesiredCount: 10}, resp)

	_, ok := c.Get(Query{Text: "q", DesiredCount: 5})
	assert.False(t, ok, "different desired count must miss")

	_, ok = c.Get(Query{Text: "q", DesiredCount: 10, PerBackendK: map[backend.Name]int{backend.Vector: 3}})
	assert.False(t, ok, "different per-backend k must miss")

	got, ok := c.Get(Query{Text: "q", DesiredCount: 10})
	require.True(t, ok)
	assert.Equal(t, resp, got)
}

func TestResultCache_CopiesOnGetAndPut(t *testing.T) {
	c := NewResultCache(8, time.Minute)
	resp := &Response{Results: []RankedResult{
		{Item: &ResultItem{ID: "vector:v1"}, FinalScore: 0.5, Rank: 1},
	}}

	c.Put(Query{Text: "q"}, resp)
	resp.Results[0].Rank = 99
	resp.Results = nil

	got, ok := c.Get(Query{Text: "q"})
	require.True(t, ok)
	require.Len(t, got.Results, 1)
	assert.Equal(t, 1, got.Results[0].Rank)

	got.Results[0].FinalScore = 0

	again, ok := c.Get(Query{Text: "q"})
	require.True(t, ok)
	assert.NotSame(t, got, again)
	assert.InDelta(t, 0.5, again.Results[0].FinalScore, 1e-9)
}

func TestResultCache_RejectsPartial(t *testing.T) {
	c := NewResultCache(8, time.Minute)

	c.Put(Query{Text: "q"}, &Response{Partial: true})
	c.Put(Query{Text: "q2"}, nil)

	assert.Zero(t, c.Len())
}

func TestResultCache_Expiry(t *testing.T) {
	c := NewResultCache(8, 10*time.Millisecond)
	c.Put(Query{Text: "q"}, &Response{})

	require.Eventually(t, func() bool {
		_, ok := c.Get(Query{Text: "q"})
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestResultCache_Purge(t *testing.T) {
	c := NewResultCache(8, time.Minute)
	c.Put(Query{Text: "a"}, &Response{})
	c.Put(Query{Text: "b"}, &Response{})
	require.Equal(t, 2, c.Len())

	c.Purge()
	assert.Zero(t, c.Len())
}
