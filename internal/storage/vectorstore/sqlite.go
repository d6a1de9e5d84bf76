package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/haasonsaas/charlotte/internal/errdefs"
)

// SQLiteConfig configures the SQLite vector store.
type SQLiteConfig struct {
	// DB is an open SQLite database. The store does not close it.
	DB *sql.DB

	// Quantize stores vectors as int8 with a per-vector scale.
	Quantize bool
}

// SQLite stores vectors in SQLite and scores them by exhaustive cosine
// scan. Collections are expected to stay in the low tens of thousands of
// points.
type SQLite struct {
	db       *sql.DB
	quantize bool

	mu   sync.RWMutex
	dims map[string]int
}

var _ Store = (*SQLite)(nil)

// NewSQLite creates the store and its tables.
func NewSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLite, error) {
	if cfg.DB == nil {
		return nil, errors.New("vectorstore: sqlite db is required")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vector_collections (
			name TEXT PRIMARY KEY,
			dimension INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS vector_points (
			collection TEXT NOT NULL REFERENCES vector_collections(name) ON DELETE CASCADE,
			id TEXT NOT NULL,
			scale REAL NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (collection, id)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := cfg.DB.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create vector tables: %w", err)
		}
	}
	s := &SQLite{db: cfg.DB, quantize: cfg.Quantize, dims: make(map[string]int)}
	if err := s.loadCollections(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLite) loadCollections(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, dimension FROM vector_collections`)
	if err != nil {
		return fmt.Errorf("load vector collections: %w", err)
	}
	defer rows.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	for rows.Next() {
		var name string
		var dim int
		if err := rows.Scan(&name, &dim); err != nil {
			return fmt.Errorf("scan vector collection: %w", err)
		}
		s.dims[name] = dim
	}
	return rows.Err()
}

func (s *SQLite) dimension(collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dim, ok := s.dims[collection]
	if !ok {
		return 0, missingCollection(collection)
	}
	return dim, nil
}

func (s *SQLite) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := validateCollection(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return errdefs.Invalid("collection %s: dimension must be positive", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if have, ok := s.dims[name]; ok {
		return checkDimension(name, have, dimension)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO vector_collections (name, dimension) VALUES (?, ?)`, name, dimension); err != nil {
		return describe("ensure", name, err)
	}
	s.dims[name] = dimension
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, collection string, points ...Point) error {
	dim, err := s.dimension(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if err := validateDimension(collection, dim, p.Vector); err != nil {
			return err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return describe("upsert", collection, err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, p := range points {
		data, scale := encodeVector(p.Vector, s.quantize)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vector_points (collection, id, scale, data) VALUES (?, ?, ?, ?)
			 ON CONFLICT(collection, id) DO UPDATE SET scale = excluded.scale, data = excluded.data`,
			collection, p.ID, scale, data); err != nil {
			return describe("upsert", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return describe("upsert", collection, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, collection string, ids ...string) error {
	if _, err := s.dimension(collection); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return describe("delete", collection, err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vector_points WHERE collection = ? AND id = ?`, collection, id); err != nil {
			return describe("delete", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return describe("delete", collection, err)
	}
	return nil
}

func (s *SQLite) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error) {
	dim, err := s.dimension(collection)
	if err != nil {
		return nil, err
	}
	if err := validateDimension(collection, dim, vector); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scale, data FROM vector_points WHERE collection = ?`, collection)
	if err != nil {
		return nil, describe("search", collection, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			id    string
			scale float64
			data  []byte
		)
		if err := rows.Scan(&id, &scale, &data); err != nil {
			return nil, describe("search", collection, err)
		}
		v, err := decodeVector(data, float32(scale), dim)
		if err != nil {
			return nil, fmt.Errorf("collection %s point %s: %w", collection, id, err)
		}
		matches = append(matches, Match{ID: id, Score: Cosine(vector, v)})
	}
	if err := rows.Err(); err != nil {
		return nil, describe("search", collection, err)
	}
	return rank(matches, limit), nil
}

// Close is a no-op; the caller owns the database.
func (s *SQLite) Close() error { return nil }
