package search

import (
	"github.com/NickB03/vana/internal/backend"
)

// Normalize converts one raw backend record into the canonical ResultItem.
// It is a pure function: all backend-shape knowledge lives here so that
// downstream stages never inspect backend-specific fields.
//
// Missing optional fields (title, url) degrade to the empty string. Only
// backends that report a relevance score get a raw score; the ranker
// assigns the baseline to the rest.
func Normalize(name backend.Name, rec backend.Record) *ResultItem {
	item := &ResultItem{
		ID:      itemID(name, rec.NativeID),
		Backend: name,
		Title:   rec.Title,
		Body:    rec.Body,
		URL:     rec.URL,
	}

	if rec.HasScore {
		item.RawScore = rec.Score
		item.HasRawScore = true
	}

	if len(rec.Fields) > 0 {
		item.Metadata = make(map[string]string, len(rec.Fields))
		for k, v := range rec.Fields {
			item.Metadata[k] = v
		}
	}

	return item
}

// NormalizeAll converts a batch of records from one backend, preserving
// backend order.
func NormalizeAll(name backend.Name, recs []backend.Record) []*ResultItem {
	items := make([]*ResultItem, 0, len(recs))
	for _, rec := range recs {
		items = append(items, Normalize(name, rec))
	}
	return items
}
