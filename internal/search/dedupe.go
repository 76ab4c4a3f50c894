package search

import (
	"net/url"
	"strings"

	"github.com/NickB03/vana/internal/backend"
)

// provenanceKey is the metadata key recording which backends contributed
// to a deduplicated item.
const provenanceKey = "provenance"

// Deduplicator collapses near-duplicate items across backends.
//
// Two items are duplicates when their normalized URLs are equal and
// non-empty, or when their whitespace-collapsed bodies are equal. The kept
// item is the one with the higher raw score; ties fall back to the fixed
// backend priority (Vector > Graph > Web). The discarded item's backend is
// merged into the winner's provenance metadata.
//
// The rules are heuristic and deliberately simple; the baseline below
// makes the score comparison configurable for callers that tune it.
type Deduplicator struct {
	// Baseline substitutes for a missing raw score when comparing
	// duplicate pairs, mirroring the ranker's baseline.
	Baseline float64

	// TieRank orders backends for score ties, lower winning. Nil uses
	// the built-in Vector > Graph > Web order.
	TieRank func(backend.Name) int
}

// NewDeduplicator creates a deduplicator with the given comparison baseline.
func NewDeduplicator(baseline float64) *Deduplicator {
	if baseline <= 0 {
		baseline = DefaultBaselineScore
	}
	return &Deduplicator{Baseline: baseline}
}

// Dedupe collapses duplicates and returns survivors in first-seen order.
// Idempotent: running it over its own output changes nothing.
func (d *Deduplicator) Dedupe(items []*ResultItem) []*ResultItem {
	if len(items) <= 1 {
		return items
	}

	// kept holds survivors by arrival position; merged-away slots are nil.
	kept := make([]*ResultItem, 0, len(items))
	byURL := make(map[string]int, len(items))
	byBody := make(map[string]int, len(items))

	// lookup returns the live slot for a key, discarding stale entries
	// left behind by earlier merges.
	lookup := func(index map[string]int, key string) (int, bool) {
		i, ok := index[key]
		if !ok {
			return 0, false
		}
		if kept[i] == nil {
			delete(index, key)
			return 0, false
		}
		return i, true
	}

	for _, item := range items {
		pos := -1 // slot the item ends up in; -1 means append
		cand := item

		if key := canonicalURL(cand.URL); key != "" {
			if i, ok := lookup(byURL, "u:"+key); ok {
				cand = d.merge(kept, i, cand)
				pos = i
			}
		}
		if key := collapseWhitespace(cand.Body); key != "" {
			if i, ok := lookup(byBody, "b:"+key); ok && i != pos {
				if pos >= 0 {
					// The item bridges two existing survivors: collapse
					// them into the earlier slot.
					winner := d.mergePair(kept[pos], kept[i])
					lo := min(pos, i)
					kept[pos], kept[i] = nil, nil
					kept[lo] = winner
					pos = lo
					cand = winner
				} else {
					cand = d.merge(kept, i, cand)
					pos = i
				}
			}
		}

		if pos < 0 {
			kept = append(kept, cand)
			pos = len(kept) - 1
		} else {
			kept[pos] = cand
		}

		if key := canonicalURL(cand.URL); key != "" {
			byURL["u:"+key] = pos
		}
		if key := collapseWhitespace(cand.Body); key != "" {
			byBody["b:"+key] = pos
		}
	}

	out := make([]*ResultItem, 0, len(kept))
	for _, item := range kept {
		if item != nil {
			out = append(out, item)
		}
	}
	return out
}

// merge resolves a duplicate pair between the survivor at slot i and a new
// candidate, returning the winner.
func (d *Deduplicator) merge(kept []*ResultItem, i int, cand *ResultItem) *ResultItem {
	return d.mergePair(kept[i], cand)
}

// mergePair keeps the higher-scoring item of a duplicate pair and records
// the loser's backend as provenance on the winner.
func (d *Deduplicator) mergePair(a, b *ResultItem) *ResultItem {
	winner, loser := a, b
	if d.prefer(b, a) {
		winner, loser = b, a
	}
	mergeProvenance(winner, loser)
	return winner
}

// prefer reports whether a should be kept over b in a duplicate pair.
func (d *Deduplicator) prefer(a, b *ResultItem) bool {
	sa, sb := d.effectiveScore(a), d.effectiveScore(b)
	if sa != sb {
		return sa > sb
	}
	return d.tieRank(a.Backend) < d.tieRank(b.Backend)
}

func (d *Deduplicator) tieRank(name backend.Name) int {
	if d.TieRank != nil {
		return d.TieRank(name)
	}
	return name.Priority()
}

// effectiveScore substitutes the baseline for items without a raw score,
// so a real score always beats a scoreless duplicate from another backend.
func (d *Deduplicator) effectiveScore(item *ResultItem) float64 {
	if item.HasRawScore {
		return item.RawScore
	}
	return d.Baseline
}

// mergeProvenance records the discarded duplicate's backend (and any
// provenance it accumulated) on the winner.
func mergeProvenance(winner, loser *ResultItem) {
	entries := []string{string(loser.Backend)}
	if prev := loser.Metadata[provenanceKey]; prev != "" {
		entries = append(entries, strings.Split(prev, ",")...)
	}

	if winner.Metadata == nil {
		winner.Metadata = make(map[string]string, 1)
	}
	current := winner.Metadata[provenanceKey]
	if current == "" {
		current = string(winner.Backend)
	}
	have := make(map[string]struct{})
	for _, part := range strings.Split(current, ",") {
		have[part] = struct{}{}
	}
	for _, e := range entries {
		if _, ok := have[e]; ok {
			continue
		}
		have[e] = struct{}{}
		current += "," + e
	}
	winner.Metadata[provenanceKey] = current
}

// canonicalURL normalizes a URL for duplicate comparison: lowercased
// scheme and host, trailing slash trimmed, fragment dropped. Unparseable
// URLs fall back to the trimmed raw string.
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

// collapseWhitespace normalizes a body for duplicate comparison by
// collapsing all whitespace runs to single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
