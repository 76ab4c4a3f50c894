package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	vanaerrors "github.com/NickB03/vana/internal/errors"
)

const (
	vectorIndexFile = "vectors.hnsw"
	storeLockFile   = ".vana.lock"
)

// Store owns the local retrieval data under a single data directory:
// the HNSW vector index and the SQLite-backed entity store. A file lock
// guards the directory against concurrent writers from other processes.
type Store struct {
	dataDir  string
	lock     *flock.Flock
	vectors  *VectorIndex
	entities *EntityStore
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger used by the store.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open acquires the data directory lock and loads any persisted state.
// Another process holding the lock yields ErrCodeStoreLocked.
func Open(cfg Config, opts ...StoreOption) (*Store, error) {
	dataDir := cfg.DataDir
	if dataDir == "" {
		return nil, vanaerrors.ConfigError("store data directory is empty", nil)
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, vanaerrors.InternalError("create data directory", err)
	}

	dims := cfg.EmbedDimensions
	if dims <= 0 {
		dims = DefaultEmbedDimensions
	}

	s := &Store{
		dataDir: dataDir,
		lock:    flock.New(filepath.Join(dataDir, storeLockFile)),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	acquired, err := s.lock.TryLock()
	if err != nil {
		return nil, vanaerrors.InternalError("acquire store lock", err)
	}
	if !acquired {
		return nil, vanaerrors.New(vanaerrors.ErrCodeStoreLocked,
			fmt.Sprintf("data directory %s is locked by another process", dataDir), nil)
	}

	s.vectors = NewVectorIndex(NewHashEmbedder(dims))
	vectorPath := filepath.Join(dataDir, vectorIndexFile)
	if _, statErr := os.Stat(vectorPath); statErr == nil {
		if err := s.vectors.Load(vectorPath); err != nil {
			_ = s.lock.Unlock()
			return nil, vanaerrors.New(vanaerrors.ErrCodeStoreCorrupt,
				"load vector index", err)
		}
	}

	s.entities, err = NewEntityStore(dataDir)
	if err != nil {
		_ = s.vectors.Close()
		_ = s.lock.Unlock()
		return nil, vanaerrors.New(vanaerrors.ErrCodeStoreCorrupt,
			"open entity store", err)
	}

	s.logger.Info("store opened",
		slog.String("data_dir", dataDir),
		slog.Int("documents", s.vectors.Count()),
	)
	return s, nil
}

// Vectors returns the vector index for query wiring.
func (s *Store) Vectors() *VectorIndex {
	return s.vectors
}

// Entities returns the entity store for query wiring.
func (s *Store) Entities() *EntityStore {
	return s.entities
}

// Ingest indexes documents into the vector index and persists it.
func (s *Store) Ingest(ctx context.Context, docs []Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.vectors.Add(docs...); err != nil {
		return vanaerrors.InternalError("index documents", err)
	}
	if err := s.vectors.Save(filepath.Join(s.dataDir, vectorIndexFile)); err != nil {
		return vanaerrors.InternalError("persist vector index", err)
	}

	s.logger.Info("documents ingested",
		slog.Int("count", len(docs)),
		slog.Int("total", s.vectors.Count()),
	)
	return nil
}

// IngestEntities upserts entities into the entity store.
func (s *Store) IngestEntities(ctx context.Context, inputs []EntityInput) error {
	if err := s.entities.Upsert(ctx, inputs...); err != nil {
		return vanaerrors.InternalError("upsert entities", err)
	}

	s.logger.Info("entities ingested", slog.Int("count", len(inputs)))
	return nil
}

// Close persists nothing further, releases handles, and drops the lock.
func (s *Store) Close() error {
	var firstErr error
	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.entities != nil {
		if err := s.entities.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
