// Package textindex implements a per-entity-kind full-text index on SQLite
// FTS5.
//
// Each kind gets two tables: a document table holding the entity as JSON
// plus one column per filterable field, and an FTS5 table over the
// entity's searchable text. Hits are ranked by bm25.
package textindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// DefaultPageSize is used when a caller passes a non-positive limit.
const DefaultPageSize = 20

var identRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Field is a filterable secondary key of an entity.
type Field[T any] struct {
	Name  string
	Value func(T) string
}

// Schema describes how entities of kind T are indexed.
type Schema[T any] struct {
	// Name is the index name, used as the table name.
	Name string

	// Key returns the primary key.
	Key func(T) string

	// Text returns the searchable text fields.
	Text func(T) []string

	// Fields are secondary keys usable with Find and Filter.
	Fields []Field[T]
}

// Filter restricts a search to entities whose fields equal the given values.
type Filter map[string]string

// Index is the full-text index for one entity kind.
type Index[T any] struct {
	db     *sql.DB
	schema Schema[T]
	fields map[string]bool
}

// New creates an index. Call EnsureIndex before use.
func New[T any](db *sql.DB, schema Schema[T]) (*Index[T], error) {
	if db == nil {
		return nil, errors.New("textindex: db is required")
	}
	if !identRe.MatchString(schema.Name) {
		return nil, fmt.Errorf("textindex: invalid index name %q", schema.Name)
	}
	if schema.Key == nil || schema.Text == nil {
		return nil, fmt.Errorf("textindex %s: Key and Text are required", schema.Name)
	}
	fields := make(map[string]bool, len(schema.Fields))
	for _, f := range schema.Fields {
		if !identRe.MatchString(f.Name) || f.Value == nil {
			return nil, fmt.Errorf("textindex %s: invalid field %q", schema.Name, f.Name)
		}
		fields[f.Name] = true
	}
	return &Index[T]{db: db, schema: schema, fields: fields}, nil
}

// Name returns the index name.
func (ix *Index[T]) Name() string {
	return ix.schema.Name
}

func (ix *Index[T]) docTable() string { return ix.schema.Name }
func (ix *Index[T]) ftsTable() string { return ix.schema.Name + "_fts" }

// EnsureIndex creates the tables. Existing tables are left untouched.
func (ix *Index[T]) EnsureIndex(ctx context.Context) error {
	cols := []string{"id TEXT PRIMARY KEY", "body TEXT NOT NULL"}
	for _, f := range ix.schema.Fields {
		cols = append(cols, "f_"+f.Name+" TEXT NOT NULL DEFAULT ''")
	}
	stmts := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", ix.docTable(), strings.Join(cols, ", ")),
		fmt.Sprintf("CREATE VIRTUAL TABLE IF NOT EXISTS %s USING fts5(id UNINDEXED, terms, tokenize = 'unicode61 remove_diacritics 2')", ix.ftsTable()),
	}
	for _, f := range ix.schema.Fields {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_%s_idx ON %s (f_%s)",
			ix.docTable(), f.Name, ix.docTable(), f.Name))
	}
	for _, stmt := range stmts {
		if _, err := ix.db.ExecContext(ctx, stmt); err != nil {
			if err := errdefs.IgnoreExists(existsError(ix.schema.Name, err)); err != nil {
				return errdefs.Backend("textindex.ensure", err.Error(), err)
			}
		}
	}
	return nil
}

func existsError(name string, err error) error {
	if strings.Contains(err.Error(), "already exists") {
		return errdefs.AlreadyExists("index " + name)
	}
	return err
}

// Put inserts or replaces entities.
func (ix *Index[T]) Put(ctx context.Context, items ...T) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return errdefs.Backend("textindex.put", err.Error(), err)
	}
	defer func() { _ = tx.Rollback() }()

	cols := []string{"id", "body"}
	updates := []string{"body = excluded.body"}
	for _, f := range ix.schema.Fields {
		cols = append(cols, "f_"+f.Name)
		updates = append(updates, fmt.Sprintf("f_%s = excluded.f_%s", f.Name, f.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	upsert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		ix.docTable(), strings.Join(cols, ", "), placeholders, strings.Join(updates, ", "))

	for _, item := range items {
		key := ix.schema.Key(item)
		if key == "" {
			return errdefs.Invalid("%s: entity key is required", ix.schema.Name)
		}
		body, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("marshal %s %q: %w", ix.schema.Name, key, err)
		}
		args := []any{key, string(body)}
		for _, f := range ix.schema.Fields {
			args = append(args, f.Value(item))
		}
		if _, err := tx.ExecContext(ctx, upsert, args...); err != nil {
			return errdefs.Backend("textindex.put", err.Error(), err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", ix.ftsTable()), key); err != nil {
			return errdefs.Backend("textindex.put", err.Error(), err)
		}
		text := strings.Join(ix.schema.Text(item), "\n")
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s (id, terms) VALUES (?, ?)", ix.ftsTable()), key, text); err != nil {
			return errdefs.Backend("textindex.put", err.Error(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errdefs.Backend("textindex.put", err.Error(), err)
	}
	return nil
}

// Get returns the entity with the given key.
func (ix *Index[T]) Get(ctx context.Context, key string) (T, error) {
	return ix.one(ctx, fmt.Sprintf("SELECT body FROM %s WHERE id = ?", ix.docTable()), key, key)
}

// Find returns the first entity whose field equals value.
func (ix *Index[T]) Find(ctx context.Context, field, value string) (T, error) {
	if !ix.fields[field] {
		var zero T
		return zero, errdefs.Invalid("%s: unknown field %q", ix.schema.Name, field)
	}
	query := fmt.Sprintf("SELECT body FROM %s WHERE f_%s = ? ORDER BY rowid LIMIT 1", ix.docTable(), field)
	return ix.one(ctx, query, value, field+"="+value)
}

func (ix *Index[T]) one(ctx context.Context, query, arg, what string) (T, error) {
	var zero T
	var body string
	err := ix.db.QueryRowContext(ctx, query, arg).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, errdefs.NotFound(ix.schema.Name, what)
	}
	if err != nil {
		return zero, errdefs.Backend("textindex.get", err.Error(), err)
	}
	var out T
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return zero, fmt.Errorf("unmarshal %s %q: %w", ix.schema.Name, what, err)
	}
	return out, nil
}

// Has reports whether key exists.
func (ix *Index[T]) Has(ctx context.Context, key string) (bool, error) {
	var n int
	err := ix.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", ix.docTable()), key).Scan(&n)
	if err != nil {
		return false, errdefs.Backend("textindex.get", err.Error(), err)
	}
	return n > 0, nil
}

// Delete removes entities by key. Missing keys are ignored.
func (ix *Index[T]) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return errdefs.Backend("textindex.delete", err.Error(), err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, key := range keys {
		for _, table := range []string{ix.ftsTable(), ix.docTable()} {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", table), key); err != nil {
				return errdefs.Backend("textindex.delete", err.Error(), err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return errdefs.Backend("textindex.delete", err.Error(), err)
	}
	return nil
}

// Search runs a free-text query. page is 1-based. A query with no
// searchable terms returns an empty page.
func (ix *Index[T]) Search(ctx context.Context, query string, filter Filter, page, limit int) (models.SearchResult[T], error) {
	page, limit = normalizePage(page, limit)
	result := models.SearchResult[T]{Hits: []T{}, Page: page}

	match := MatchExpression(query)
	if match == "" {
		return result, nil
	}
	where, args, err := ix.filterClause("d.", filter)
	if err != nil {
		return result, err
	}
	from := fmt.Sprintf("FROM %s f JOIN %s d ON d.id = f.id WHERE %s MATCH ?%s",
		ix.ftsTable(), ix.docTable(), ix.ftsTable(), where)
	args = append([]any{match}, args...)

	total, err := ix.count(ctx, "SELECT COUNT(*) "+from, args)
	if err != nil {
		return result, err
	}
	result.TotalPages = totalPages(total, limit)

	query = fmt.Sprintf("SELECT d.body %s ORDER BY bm25(%s), d.rowid LIMIT ? OFFSET ?", from, ix.ftsTable())
	hits, err := ix.scan(ctx, query, append(args, limit, (page-1)*limit))
	if err != nil {
		return result, err
	}
	result.Hits = hits
	return result, nil
}

// List returns entities in insertion order. page is 1-based.
func (ix *Index[T]) List(ctx context.Context, filter Filter, page, limit int) (models.SearchResult[T], error) {
	page, limit = normalizePage(page, limit)
	result := models.SearchResult[T]{Hits: []T{}, Page: page}

	where, args, err := ix.filterClause("", filter)
	if err != nil {
		return result, err
	}
	from := fmt.Sprintf("FROM %s WHERE 1 = 1%s", ix.docTable(), where)

	total, err := ix.count(ctx, "SELECT COUNT(*) "+from, args)
	if err != nil {
		return result, err
	}
	result.TotalPages = totalPages(total, limit)

	hits, err := ix.scan(ctx, "SELECT body "+from+" ORDER BY rowid LIMIT ? OFFSET ?", append(args, limit, (page-1)*limit))
	if err != nil {
		return result, err
	}
	result.Hits = hits
	return result, nil
}

func (ix *Index[T]) filterClause(prefix string, filter Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	var b strings.Builder
	args := make([]any, 0, len(filter))
	// Iterate schema order so the generated SQL is stable.
	for _, f := range ix.schema.Fields {
		value, ok := filter[f.Name]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, " AND %sf_%s = ?", prefix, f.Name)
		args = append(args, value)
	}
	if len(args) != len(filter) {
		for name := range filter {
			if !ix.fields[name] {
				return "", nil, errdefs.Invalid("%s: unknown filter field %q", ix.schema.Name, name)
			}
		}
	}
	return b.String(), args, nil
}

func (ix *Index[T]) count(ctx context.Context, query string, args []any) (int, error) {
	var total int
	if err := ix.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, errdefs.Backend("textindex.search", err.Error(), err)
	}
	return total, nil
}

func (ix *Index[T]) scan(ctx context.Context, query string, args []any) ([]T, error) {
	rows, err := ix.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errdefs.Backend("textindex.search", err.Error(), err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errdefs.Backend("textindex.search", err.Error(), err)
		}
		var item T
		if err := json.Unmarshal([]byte(body), &item); err != nil {
			return nil, fmt.Errorf("unmarshal %s hit: %w", ix.schema.Name, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Backend("textindex.search", err.Error(), err)
	}
	return out, nil
}

// MatchExpression turns free text into an FTS5 query that matches any of
// its terms. It returns "" when the text has no letters or digits.
func MatchExpression(text string) string {
	terms := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(terms))
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.ToLower(term)
		if seen[term] {
			continue
		}
		seen[term] = true
		quoted = append(quoted, `"`+term+`"`)
	}
	return strings.Join(quoted, " OR ")
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return page, limit
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
