package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/NickB03/vana/internal/backend"
)

// VectorIndex is an in-process dense similarity backend: documents are
// embedded with the hash embedder and indexed in a pure-Go HNSW graph.
// It satisfies backend.VectorBackend.
type VectorIndex struct {
	embedder *HashEmbedder

	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	docs    map[uint64]Document
	idMap   map[string]uint64
	nextKey uint64
	closed  bool
}

// vectorMetadata is the gob-persisted sidecar next to the graph export.
type vectorMetadata struct {
	Docs    map[uint64]Document
	IDMap   map[string]uint64
	NextKey uint64
	Dims    int
}

// NewVectorIndex creates an empty vector index over the given embedder.
func NewVectorIndex(embedder *HashEmbedder) *VectorIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 20
	graph.Ml = 0.25

	return &VectorIndex{
		embedder: embedder,
		graph:    graph,
		docs:     make(map[uint64]Document),
		idMap:    make(map[string]uint64),
	}
}

// Add indexes documents, replacing any previous version with the same ID.
// Replacement is lazy: the old graph node is orphaned rather than removed.
func (v *VectorIndex) Add(docs ...Document) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document has no ID")
		}
		if oldKey, exists := v.idMap[doc.ID]; exists {
			delete(v.docs, oldKey)
			delete(v.idMap, doc.ID)
		}

		key := v.nextKey
		v.nextKey++

		vec := v.embedder.Embed(doc.Title + " " + doc.Body)
		v.graph.Add(hnsw.MakeNode(key, vec))

		v.docs[key] = doc
		v.idMap[doc.ID] = key
	}
	return nil
}

// Query embeds the text and returns the k nearest documents as vector
// hits with cosine similarity scores in [0,1].
func (v *VectorIndex) Query(ctx context.Context, text string, k int) ([]backend.VectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v.graph.Len() == 0 {
		return []backend.VectorHit{}, nil
	}

	query := v.embedder.Embed(text)
	nodes := v.graph.Search(query, k)

	hits := make([]backend.VectorHit, 0, len(nodes))
	for _, node := range nodes {
		doc, ok := v.docs[node.Key]
		if !ok {
			// Orphaned by a replace or delete; skip.
			continue
		}

		distance := v.graph.Distance(query, node.Value)
		payload := map[string]string{
			"title": doc.Title,
			"body":  doc.Body,
			"url":   doc.URL,
		}
		for mk, mv := range doc.Metadata {
			payload[mk] = mv
		}

		hits = append(hits, backend.VectorHit{
			ID:      doc.ID,
			Score:   cosineScore(distance),
			Payload: payload,
		})
	}
	return hits, nil
}

// Delete removes documents by ID. Graph nodes are orphaned lazily.
func (v *VectorIndex) Delete(ids ...string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range ids {
		if key, exists := v.idMap[id]; exists {
			delete(v.docs, key)
			delete(v.idMap, id)
		}
	}
}

// Count returns the number of live documents.
func (v *VectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

// Save persists the graph and document metadata, writing each file to a
// temp path first and renaming into place.
func (v *VectorIndex) Save(path string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := v.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return v.saveMetadata(path + ".meta")
}

func (v *VectorIndex) saveMetadata(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}

	meta := vectorMetadata{
		Docs:    v.docs,
		IDMap:   v.idMap,
		NextKey: v.nextKey,
		Dims:    v.embedder.Dimensions(),
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores a previously saved index. The embedder dimensionality
// must match the persisted one.
func (v *VectorIndex) Load(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return fmt.Errorf("vector index is closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	var meta vectorMetadata
	decodeErr := gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if decodeErr != nil {
		return fmt.Errorf("decode metadata: %w", decodeErr)
	}
	if meta.Dims != v.embedder.Dimensions() {
		return ErrDimensionMismatch{Expected: v.embedder.Dimensions(), Got: meta.Dims}
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// hnsw Import requires an io.ByteReader.
	if err := v.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}

	v.docs = meta.Docs
	v.idMap = meta.IDMap
	v.nextKey = meta.NextKey
	return nil
}

// Close marks the index closed. Further calls fail.
func (v *VectorIndex) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.graph = nil
	return nil
}

var _ backend.VectorBackend = (*VectorIndex)(nil)

// cosineScore maps cosine distance (0..2) onto a similarity in [0,1].
func cosineScore(distance float32) float64 {
	score := 1.0 - float64(distance)/2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
