package search

import (
	"sort"
)

// Ranker applies weighted score fusion to deduplicated items.
//
// Every item gets a normalized score in [0, 1]: its raw score when the
// backend provided one, otherwise the baseline. The final score is the
// normalized score multiplied by the item's backend weight. Items are
// ordered by final score descending, with ties broken by backend priority
// and then by input order.
type Ranker struct {
	weights  Weights
	baseline float64
}

// NewRanker validates the weights eagerly and returns a ranker.
func NewRanker(weights Weights, baseline float64) (*Ranker, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if baseline <= 0 {
		baseline = DefaultBaselineScore
	}
	return &Ranker{weights: weights, baseline: baseline}, nil
}

// Rank scores, sorts, and truncates items to at most limit results.
// Ranks are dense, starting at 1. A limit <= 0 means no truncation.
func (r *Ranker) Rank(items []*ResultItem, limit int) []RankedResult {
	ranked := make([]RankedResult, 0, len(items))
	for i, item := range items {
		score := r.baseline
		if item.HasRawScore {
			score = item.RawScore
		}
		item.NormalizedScore = score
		ranked = append(ranked, RankedResult{
			Item:       item,
			FinalScore: score * r.weights.For(item.Backend),
			Rank:       i, // input order, reused as the final tie-break
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.FinalScore != b.FinalScore {
			return a.FinalScore > b.FinalScore
		}
		if pa, pb := a.Item.Backend.Priority(), b.Item.Backend.Priority(); pa != pb {
			return pa < pb
		}
		return a.Rank < b.Rank
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// Weights returns the ranker's configured weights.
func (r *Ranker) Weights() Weights {
	return r.weights
}
