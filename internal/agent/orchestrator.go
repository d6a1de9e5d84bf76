// Package agent drives chat turns: it retrieves knowledge and tools for a
// user message, assembles the persona prompt, runs the bounded tool-call
// loop against the language model and keeps each session's context window
// and working set consistent.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/charlotte/internal/config"
	"github.com/haasonsaas/charlotte/internal/datetime"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/observability"
	"github.com/haasonsaas/charlotte/internal/sessions"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// Knowledge retrieves documents for a turn. *knowledge.Store implements it.
type Knowledge interface {
	QueryDocuments(ctx context.Context, query string, k int, embedding []float32) ([]models.Document, error)
}

// Tools retrieves and runs tools. *registry.Registry implements it.
type Tools interface {
	Query(ctx context.Context, text string, k int, embedding []float32) ([]models.ToolDefinition, error)
	Execute(ctx context.Context, name, arguments string) (string, error)
}

// Personas resolves personas and their info. *persona.Store implements it.
type Personas interface {
	GetPersona(ctx context.Context, id string) (models.Persona, error)
	SearchPersonaInfo(ctx context.Context, personaID, query string, limit int) ([]models.PersonaInfo, error)
}

// Config wires an Orchestrator.
type Config struct {
	LLM       llm.Client
	Knowledge Knowledge
	Tools     Tools
	Personas  Personas
	Sessions  sessions.Store

	Chat config.ChatConfig

	// Clock overrides the clock derived from Chat.Timezone. Tests pin it.
	Clock *datetime.Clock

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// settings is the reloadable part of the configuration.
type settings struct {
	userName       string
	historyLength  int
	recursionLimit int
	retrievalLimit int
	requestTimeout time.Duration
	fillers        *fillers
	clock          *datetime.Clock
}

// Orchestrator owns the chat sessions. It is safe for concurrent use;
// turns on one session are serialized, turns on different sessions run in
// parallel.
type Orchestrator struct {
	llm       llm.Client
	knowledge Knowledge
	tools     Tools
	personas  Personas
	sessions  sessions.Store
	locks     *sessions.Locks

	pinnedClock *datetime.Clock
	settings    atomic.Pointer[settings]

	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.LLM == nil || cfg.Knowledge == nil || cfg.Tools == nil || cfg.Personas == nil || cfg.Sessions == nil {
		return nil, errors.New("agent: LLM, Knowledge, Tools, Personas and Sessions are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		llm:         cfg.LLM,
		knowledge:   cfg.Knowledge,
		tools:       cfg.Tools,
		personas:    cfg.Personas,
		sessions:    cfg.Sessions,
		locks:       sessions.NewLocks(),
		pinnedClock: cfg.Clock,
		logger:      logger.With("component", "agent"),
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
	}
	o.settings.Store(o.newSettings(cfg.Chat))
	return o, nil
}

func (o *Orchestrator) newSettings(chat config.ChatConfig) *settings {
	s := &settings{
		userName:       strings.TrimSpace(chat.UserName),
		historyLength:  chat.HistoryLength,
		recursionLimit: chat.RecursionLimit,
		retrievalLimit: chat.RetrievalLimit,
		requestTimeout: chat.RequestTimeout,
		clock:          o.pinnedClock,
	}
	if s.userName == "" {
		s.userName = config.DefaultUserName
	}
	if s.historyLength <= 0 {
		s.historyLength = config.DefaultHistoryLength
	}
	if s.recursionLimit <= 0 {
		s.recursionLimit = config.DefaultRecursionLimit
	}
	if s.retrievalLimit <= 0 {
		s.retrievalLimit = config.DefaultRetrievalLimit
	}
	if s.requestTimeout <= 0 {
		s.requestTimeout = config.DefaultRequestTimeout
	}
	phrases := chat.Fillers
	if phrases == nil {
		phrases = config.DefaultFillers
	}
	s.fillers = newFillers(phrases)
	if s.clock == nil {
		s.clock = datetime.NewClock(chat.Timezone)
	}
	return s
}

func (o *Orchestrator) current() *settings {
	return o.settings.Load()
}

// UpdateChatConfig swaps in new chat settings. Turns already running keep
// the settings they started with.
func (o *Orchestrator) UpdateChatConfig(chat config.ChatConfig) {
	s := o.newSettings(chat)
	o.settings.Store(s)
	o.logger.Info("chat settings reloaded",
		"history_length", s.historyLength,
		"recursion_limit", s.recursionLimit,
		"fillers", len(s.fillers.phrases),
	)
}

// CreateSession starts a session with a snapshot of the persona. The
// history opens with the persona's greeting.
func (o *Orchestrator) CreateSession(ctx context.Context, personaID string) (*models.Session, error) {
	persona, err := o.personas.GetPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	session := &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Persona:   persona,
		History:   []models.ChatMessage{},
	}
	if greeting := strings.TrimSpace(persona.Greeting); greeting != "" {
		session.History = append(session.History, models.ChatMessage{
			Origin:    models.OriginPersona,
			Content:   persona.Greeting,
			Timestamp: now,
		})
	}
	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, err
	}
	o.metrics.SessionOpened()
	o.logger.InfoContext(ctx, "session created", "session_id", session.ID, "persona_id", persona.ID)
	return session.Clone(), nil
}

// RemoveSession deletes a session, waiting for a running turn to finish.
func (o *Orchestrator) RemoveSession(ctx context.Context, id string) error {
	release, err := o.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer release()
	if err := o.sessions.Delete(ctx, id); err != nil {
		return err
	}
	o.metrics.SessionClosed()
	o.logger.InfoContext(ctx, "session removed", "session_id", id)
	return nil
}

// GetSession returns a copy of a session.
func (o *Orchestrator) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return o.sessions.Get(ctx, id)
}

// GetHistory returns a session's history, oldest first.
func (o *Orchestrator) GetHistory(ctx context.Context, id string) ([]models.ChatMessage, error) {
	session, err := o.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return session.History, nil
}

// GetSessionInfo returns a session's summary without its history.
func (o *Orchestrator) GetSessionInfo(ctx context.Context, id string) (models.SessionInfo, error) {
	session, err := o.sessions.Get(ctx, id)
	if err != nil {
		return models.SessionInfo{}, err
	}
	return session.Info(), nil
}

// ListPersonaSessions lists the sessions of one persona, oldest first.
func (o *Orchestrator) ListPersonaSessions(ctx context.Context, personaID string) ([]models.SessionInfo, error) {
	list, err := o.sessions.List(ctx, personaID)
	if err != nil {
		return nil, err
	}
	return infos(list), nil
}

// ListAllSessions lists every session, oldest first.
func (o *Orchestrator) ListAllSessions(ctx context.Context) ([]models.SessionInfo, error) {
	return o.ListPersonaSessions(ctx, "")
}

// GetSessionReference returns the documents and tools a session keeps
// live.
func (o *Orchestrator) GetSessionReference(ctx context.Context, id string) (models.SessionReference, error) {
	session, err := o.sessions.Get(ctx, id)
	if err != nil {
		return models.SessionReference{}, err
	}
	ref := models.SessionReference{Documents: session.Documents, Tools: session.Tools}
	if ref.Documents == nil {
		ref.Documents = []models.Document{}
	}
	if ref.Tools == nil {
		ref.Tools = []models.ToolDefinition{}
	}
	return ref, nil
}

func infos(list []*models.Session) []models.SessionInfo {
	out := make([]models.SessionInfo, 0, len(list))
	for _, s := range list {
		out = append(out, s.Info())
	}
	return out
}
