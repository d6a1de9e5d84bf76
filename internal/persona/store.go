// Package persona stores the characters the assistant plays and the
// auxiliary facts retrieved about them during a chat turn.
package persona

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/storage/textindex"
	"github.com/haasonsaas/charlotte/pkg/models"
)

const (
	IndexName     = "personas"
	InfoIndexName = "persona_info"

	personaField = "persona_id"
)

// Config wires a Store to its database.
type Config struct {
	DB     *sql.DB
	Logger *slog.Logger
}

// Store holds personas and persona info. It is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	personas *textindex.Index[models.Persona]
	info     *textindex.Index[models.PersonaInfo]
	logger   *slog.Logger
}

// New creates the store and its indexes if missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	personas, err := textindex.New(cfg.DB, textindex.Schema[models.Persona]{
		Name: IndexName,
		Key:  func(p models.Persona) string { return p.ID },
		Text: func(p models.Persona) []string { return []string{p.Name, p.KeyInfo, p.Greeting} },
	})
	if err != nil {
		return nil, err
	}
	info, err := textindex.New(cfg.DB, textindex.Schema[models.PersonaInfo]{
		Name: InfoIndexName,
		Key:  func(i models.PersonaInfo) string { return i.ID },
		Text: func(i models.PersonaInfo) []string { return []string{i.Content} },
		Fields: []textindex.Field[models.PersonaInfo]{
			{Name: personaField, Value: func(i models.PersonaInfo) string { return i.PersonaID }},
		},
	})
	if err != nil {
		return nil, err
	}
	for _, ensure := range []func(context.Context) error{personas.EnsureIndex, info.EnsureIndex} {
		if err := ensure(ctx); err != nil {
			return nil, fmt.Errorf("ensure persona index: %w", err)
		}
	}
	return &Store{
		personas: personas,
		info:     info,
		logger:   logger.With("component", "persona"),
	}, nil
}

func validate(p models.Persona) error {
	if strings.TrimSpace(p.Name) == "" {
		return errdefs.Invalid("persona name is required")
	}
	return nil
}

// CreatePersona stores a new persona, assigning an id and creation time
// where missing.
func (s *Store) CreatePersona(ctx context.Context, p models.Persona) (models.Persona, error) {
	if err := validate(p); err != nil {
		return p, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	exists, err := s.personas.Has(ctx, p.ID)
	if err != nil {
		return p, err
	}
	if exists {
		return p, errdefs.Duplicate("persona", p.ID)
	}
	if err := s.personas.Put(ctx, p); err != nil {
		return p, fmt.Errorf("store persona: %w", err)
	}
	s.logger.Info("persona created", "persona_id", p.ID, "name", p.Name)
	return p, nil
}

// GetPersona returns a persona by id.
func (s *Store) GetPersona(ctx context.Context, id string) (models.Persona, error) {
	return s.personas.Get(ctx, id)
}

// UpdatePersona replaces an existing persona. The creation time is kept.
// Sessions already holding a snapshot are unaffected.
func (s *Store) UpdatePersona(ctx context.Context, p models.Persona) (models.Persona, error) {
	if err := validate(p); err != nil {
		return p, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := s.personas.Get(ctx, p.ID)
	if err != nil {
		return p, err
	}
	p.CreatedAt = old.CreatedAt
	if err := s.personas.Put(ctx, p); err != nil {
		return p, fmt.Errorf("store persona: %w", err)
	}
	return p, nil
}

// DeletePersona removes a persona and all of its info.
func (s *Store) DeletePersona(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.personas.Get(ctx, id); err != nil {
		return err
	}
	infoIDs, err := s.infoIDs(ctx, id)
	if err != nil {
		return err
	}
	if err := s.info.Delete(ctx, infoIDs...); err != nil {
		return fmt.Errorf("delete persona info: %w", err)
	}
	if err := s.personas.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete persona: %w", err)
	}
	s.logger.Info("persona deleted", "persona_id", id, "info", len(infoIDs))
	return nil
}

func (s *Store) infoIDs(ctx context.Context, personaID string) ([]string, error) {
	const pageSize = 500
	var ids []string
	filter := textindex.Filter{personaField: personaID}
	for page := 1; ; page++ {
		res, err := s.info.List(ctx, filter, page, pageSize)
		if err != nil {
			return nil, err
		}
		for _, info := range res.Hits {
			ids = append(ids, info.ID)
		}
		if page >= res.TotalPages {
			return ids, nil
		}
	}
}

// ListPersonas pages through personas in creation order.
func (s *Store) ListPersonas(ctx context.Context, page, limit int) (models.SearchResult[models.Persona], error) {
	return s.personas.List(ctx, nil, page, limit)
}

// SearchPersonas runs a paginated full-text search over names, key info
// and greetings.
func (s *Store) SearchPersonas(ctx context.Context, query string, page, limit int) (models.SearchResult[models.Persona], error) {
	return s.personas.Search(ctx, query, nil, page, limit)
}

// AddPersonaInfo attaches facts to an existing persona.
func (s *Store) AddPersonaInfo(ctx context.Context, personaID string, contents ...string) ([]models.PersonaInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.personas.Get(ctx, personaID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]models.PersonaInfo, 0, len(contents))
	for i, content := range contents {
		content = strings.TrimSpace(content)
		if content == "" {
			return nil, errdefs.Invalid("persona info %d is empty", i)
		}
		out = append(out, models.PersonaInfo{
			ID:        uuid.NewString(),
			PersonaID: personaID,
			Content:   content,
			CreatedAt: now,
		})
	}
	if err := s.info.Put(ctx, out...); err != nil {
		return nil, fmt.Errorf("store persona info: %w", err)
	}
	return out, nil
}

// ListPersonaInfo pages through the info of one persona.
func (s *Store) ListPersonaInfo(ctx context.Context, personaID string, page, limit int) (models.SearchResult[models.PersonaInfo], error) {
	return s.info.List(ctx, textindex.Filter{personaField: personaID}, page, limit)
}

// DeletePersonaInfo removes info entries. Unknown ids are ignored.
func (s *Store) DeletePersonaInfo(ctx context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Delete(ctx, ids...)
}

// SearchPersonaInfo returns up to limit info entries of one persona
// matching query, best first.
func (s *Store) SearchPersonaInfo(ctx context.Context, personaID, query string, limit int) ([]models.PersonaInfo, error) {
	if limit <= 0 {
		return nil, nil
	}
	res, err := s.info.Search(ctx, query, textindex.Filter{personaField: personaID}, 1, limit)
	if err != nil {
		return nil, err
	}
	return res.Hits, nil
}
