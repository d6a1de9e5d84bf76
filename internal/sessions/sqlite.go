package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// SQLiteStore keeps session snapshots as JSON rows.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the snapshot table if missing. The store does not
// own db.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, errors.New("sessions: db is required")
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			persona_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			body TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS sessions_persona_idx ON sessions (persona_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("create session tables: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session *models.Session) error {
	if session == nil || session.ID == "" {
		return errors.New("session with an id is required")
	}
	body, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", session.ID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, persona_id, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			persona_id = excluded.persona_id,
			updated_at = excluded.updated_at,
			body = excluded.body`,
		session.ID, session.Persona.ID, session.CreatedAt.UnixNano(), time.Now().UnixNano(), string(body))
	if err != nil {
		return errdefs.Backend("sessions.save", err.Error(), err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*models.Session, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM sessions WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errdefs.NotFound("session", id)
	}
	if err != nil {
		return nil, errdefs.Backend("sessions.get", err.Error(), err)
	}
	return decodeSession(body)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return errdefs.Backend("sessions.delete", err.Error(), err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errdefs.NotFound("session", id)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, personaID string) ([]*models.Session, error) {
	query := `SELECT body FROM sessions ORDER BY created_at, id`
	var args []any
	if personaID != "" {
		query = `SELECT body FROM sessions WHERE persona_id = ? ORDER BY created_at, id`
		args = append(args, personaID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errdefs.Backend("sessions.list", err.Error(), err)
	}
	defer rows.Close()

	out := []*models.Session{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errdefs.Backend("sessions.list", err.Error(), err)
		}
		session, err := decodeSession(body)
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, errdefs.Backend("sessions.list", err.Error(), err)
	}
	return out, nil
}

func decodeSession(body string) (*models.Session, error) {
	var session models.Session
	if err := json.Unmarshal([]byte(body), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &session, nil
}
