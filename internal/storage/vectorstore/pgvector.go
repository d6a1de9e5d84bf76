package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/lib/pq"
)

// PGVectorConfig configures the pgvector store.
type PGVectorConfig struct {
	// DB is an open PostgreSQL connection. The store does not close it.
	DB *sql.DB

	// SkipExtension disables CREATE EXTENSION, for databases where the
	// role cannot create extensions and vector is already installed.
	SkipExtension bool
}

// PGVector stores each collection in its own table with an HNSW cosine
// index.
type PGVector struct {
	db *sql.DB

	mu   sync.RWMutex
	dims map[string]int
}

var _ Store = (*PGVector)(nil)

// NewPGVector creates the store.
func NewPGVector(ctx context.Context, cfg PGVectorConfig) (*PGVector, error) {
	if cfg.DB == nil {
		return nil, errors.New("vectorstore: postgres db is required")
	}
	if !cfg.SkipExtension {
		if _, err := cfg.DB.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
			return nil, fmt.Errorf("create vector extension: %w", err)
		}
	}
	return &PGVector{db: cfg.DB, dims: make(map[string]int)}, nil
}

func tableName(collection string) string {
	return "vec_" + collection
}

func (s *PGVector) dimension(collection string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	dim, ok := s.dims[collection]
	if !ok {
		return 0, missingCollection(collection)
	}
	return dim, nil
}

func (s *PGVector) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := validateCollection(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if have, ok := s.dims[name]; ok {
		return checkDimension(name, have, dimension)
	}
	table := tableName(name)
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (id TEXT PRIMARY KEY, embedding vector(%d) NOT NULL)`, table, dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return describe("ensure", name, err)
		}
	}
	s.dims[name] = dimension
	return nil
}

func (s *PGVector) Upsert(ctx context.Context, collection string, points ...Point) error {
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
	query := fmt.Sprintf(`INSERT INTO %s (id, embedding) VALUES ($1, $2::vector)
		ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`, tableName(collection))
	for _, p := range points {
		if _, err := tx.ExecContext(ctx, query, p.ID, encodeEmbedding(p.Vector)); err != nil {
			return describe("upsert", collection, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return describe("upsert", collection, err)
	}
	return nil
}

func (s *PGVector) Delete(ctx context.Context, collection string, ids ...string) error {
	if _, err := s.dimension(collection); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, tableName(collection))
	if _, err := s.db.ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return describe("delete", collection, err)
	}
	return nil
}

func (s *PGVector) Search(ctx context.Context, collection string, vector []float32, limit int) ([]Match, error) {
	dim, err := s.dimension(collection)
	if err != nil {
		return nil, err
	}
	if err := validateDimension(collection, dim, vector); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT id, 1 - (embedding <=> $1::vector) AS score
		FROM %s ORDER BY embedding <=> $1::vector LIMIT $2`, tableName(collection))
	rows, err := s.db.QueryContext(ctx, query, encodeEmbedding(vector), limit)
	if err != nil {
		return nil, describe("search", collection, err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var score float64
		if err := rows.Scan(&m.ID, &score); err != nil {
			return nil, describe("search", collection, err)
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, describe("search", collection, err)
	}
	return matches, nil
}

// Close is a no-op; the caller owns the database.
func (s *PGVector) Close() error { return nil }

// encodeEmbedding renders v in pgvector's text format.
func encodeEmbedding(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
