package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/NickB03/vana/internal/backend"
)

const (
	entityDBFile    = "entities.db"
	entityIndexDir  = "entities.bleve"
	maxGraphResults = 10
)

// EntityStore keeps named entities and their observations in SQLite and
// maintains a full-text match index over them for query-time lookup.
// It satisfies backend.GraphBackend.
type EntityStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	index  bleve.Index
	closed bool
}

// entityDocument is the bleve-indexed projection of an entity.
type entityDocument struct {
	Text string `json:"text"`
}

// NewEntityStore opens (or creates) an entity store under dir. An empty
// dir creates an in-memory store for testing.
func NewEntityStore(dir string) (*EntityStore, error) {
	var dsn string
	var idx bleve.Index
	var err error

	mapping := bleve.NewIndexMapping()

	if dir == "" {
		dsn = ":memory:"
		idx, err = bleve.NewMemOnly(mapping)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create entity store directory: %w", err)
		}
		dsn = filepath.Join(dir, entityDBFile) + "?_journal_mode=WAL&_busy_timeout=5000"

		indexPath := filepath.Join(dir, entityIndexDir)
		idx, err = bleve.Open(indexPath)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(indexPath, mapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open entity index: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = idx.Close()
		return nil, fmt.Errorf("open entity database: %w", err)
	}

	// Single writer keeps SQLite lock contention out of the picture.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params, set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			_ = idx.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &EntityStore{db: db, index: idx}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		_ = idx.Close()
		return nil, fmt.Errorf("initialize entity schema: %w", err)
	}
	return s, nil
}

func (s *EntityStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		name TEXT PRIMARY KEY,
		type TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS observations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entity_name TEXT NOT NULL REFERENCES entities(name) ON DELETE CASCADE,
		content TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_observations_entity
		ON observations(entity_name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces entities by name. Observations for an
// existing entity are replaced wholesale.
func (s *EntityStore) Upsert(ctx context.Context, inputs ...EntityInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("entity store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	batch := s.index.NewBatch()
	for _, in := range inputs {
		if strings.TrimSpace(in.Name) == "" {
			return fmt.Errorf("entity has no name")
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entities (name, type) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET type = excluded.type`,
			in.Name, in.Type); err != nil {
			return fmt.Errorf("upsert entity %s: %w", in.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM observations WHERE entity_name = ?`, in.Name); err != nil {
			return fmt.Errorf("clear observations for %s: %w", in.Name, err)
		}
		for _, obs := range in.Observations {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO observations (entity_name, content) VALUES (?, ?)`,
				in.Name, obs); err != nil {
				return fmt.Errorf("insert observation for %s: %w", in.Name, err)
			}
		}

		text := in.Name + " " + in.Type + " " + strings.Join(in.Observations, " ")
		if err := batch.Index(in.Name, entityDocument{Text: text}); err != nil {
			return fmt.Errorf("index entity %s: %w", in.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit entities: %w", err)
	}
	if err := s.index.Batch(batch); err != nil {
		return fmt.Errorf("index entities: %w", err)
	}
	return nil
}

// Query matches text against entity names and observations and returns
// the hydrated entities, best match first.
func (s *EntityStore) Query(ctx context.Context, text string) ([]backend.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("entity store is closed")
	}
	if strings.TrimSpace(text) == "" {
		return []backend.Entity{}, nil
	}

	matchQuery := bleve.NewMatchQuery(text)
	matchQuery.SetField("text")

	request := bleve.NewSearchRequest(matchQuery)
	request.Size = maxGraphResults

	result, err := s.index.SearchInContext(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("entity search: %w", err)
	}

	entities := make([]backend.Entity, 0, len(result.Hits))
	for _, hit := range result.Hits {
		entity, err := s.loadEntity(ctx, hit.ID)
		if err != nil {
			return nil, err
		}
		if entity == nil {
			// Stale index entry, entity removed from SQLite.
			continue
		}
		entities = append(entities, *entity)
	}
	return entities, nil
}

func (s *EntityStore) loadEntity(ctx context.Context, name string) (*backend.Entity, error) {
	var entityType string
	err := s.db.QueryRowContext(ctx,
		`SELECT type FROM entities WHERE name = ?`, name).Scan(&entityType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", name, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM observations WHERE entity_name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("load observations for %s: %w", name, err)
	}
	defer rows.Close()

	var observations []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		observations = append(observations, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate observations: %w", err)
	}

	return &backend.Entity{
		ID:           name,
		Name:         name,
		Type:         entityType,
		Observations: observations,
	}, nil
}

// Delete removes entities by name from both SQLite and the index.
func (s *EntityStore) Delete(ctx context.Context, names ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("entity store is closed")
	}

	for _, name := range names {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM observations WHERE entity_name = ?`, name); err != nil {
			return fmt.Errorf("delete observations for %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM entities WHERE name = ?`, name); err != nil {
			return fmt.Errorf("delete entity %s: %w", name, err)
		}
		if err := s.index.Delete(name); err != nil {
			return fmt.Errorf("unindex entity %s: %w", name, err)
		}
	}
	return nil
}

// Count returns the number of stored entities.
func (s *EntityStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("entity store is closed")
	}

	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM entities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entities: %w", err)
	}
	return count, nil
}

// Close releases the database and index handles.
func (s *EntityStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	dbErr := s.db.Close()
	idxErr := s.index.Close()
	if dbErr != nil {
		return fmt.Errorf("close entity database: %w", dbErr)
	}
	if idxErr != nil {
		return fmt.Errorf("close entity index: %w", idxErr)
	}
	return nil
}

var _ backend.GraphBackend = (*EntityStore)(nil)
