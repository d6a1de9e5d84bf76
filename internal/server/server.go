// Package server exposes the orchestrator and the stores over HTTP JSON
// and a WebSocket chat endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/charlotte/internal/config"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// Chat is the conversation surface. *agent.Orchestrator implements it.
type Chat interface {
	CreateSession(ctx context.Context, personaID string) (*models.Session, error)
	RemoveSession(ctx context.Context, id string) error
	Chat(ctx context.Context, sessionID string, input models.ChatMessage) ([]models.ChatMessage, error)
	GetHistory(ctx context.Context, id string) ([]models.ChatMessage, error)
	GetSessionInfo(ctx context.Context, id string) (models.SessionInfo, error)
	ListPersonaSessions(ctx context.Context, personaID string) ([]models.SessionInfo, error)
	ListAllSessions(ctx context.Context) ([]models.SessionInfo, error)
	GetSessionReference(ctx context.Context, id string) (models.SessionReference, error)
}

// Documents is the knowledge base surface. *knowledge.Store implements it.
type Documents interface {
	AddDocuments(ctx context.Context, docs ...models.Document) ([]models.Document, error)
	AddRawDocuments(ctx context.Context, raws ...models.RawDocument) ([]models.Document, error)
	GetDocument(ctx context.Context, id string) (models.Document, error)
	DeleteDocuments(ctx context.Context, ids ...string) error
	ListDocuments(ctx context.Context, page, limit int) (models.SearchResult[models.Document], error)
	SearchDocuments(ctx context.Context, query string, page, limit int) (models.SearchResult[models.Document], error)
}

// Personas is the persona surface. *persona.Store implements it.
type Personas interface {
	CreatePersona(ctx context.Context, p models.Persona) (models.Persona, error)
	GetPersona(ctx context.Context, id string) (models.Persona, error)
	UpdatePersona(ctx context.Context, p models.Persona) (models.Persona, error)
	DeletePersona(ctx context.Context, id string) error
	ListPersonas(ctx context.Context, page, limit int) (models.SearchResult[models.Persona], error)
	SearchPersonas(ctx context.Context, query string, page, limit int) (models.SearchResult[models.Persona], error)
	AddPersonaInfo(ctx context.Context, personaID string, contents ...string) ([]models.PersonaInfo, error)
	ListPersonaInfo(ctx context.Context, personaID string, page, limit int) (models.SearchResult[models.PersonaInfo], error)
	DeletePersonaInfo(ctx context.Context, ids ...string) error
}

// Tools is the tool registry surface. *registry.Registry implements it.
type Tools interface {
	Register(ctx context.Context, def models.ToolDefinition) (models.ToolDefinition, error)
	Get(ctx context.Context, name string) (models.ToolDefinition, error)
	Search(ctx context.Context, text string, page, limit int) (models.SearchResult[models.ToolDefinition], error)
	List(ctx context.Context, page, limit int) (models.SearchResult[models.ToolDefinition], error)
	Unregister(ctx context.Context, names ...string) error
	Execute(ctx context.Context, name, arguments string) (string, error)
}

// Config wires a Server.
type Config struct {
	Chat      Chat
	Documents Documents
	Personas  Personas
	Tools     Tools

	HTTP config.ServerConfig

	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer

	Logger *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	chat      Chat
	documents Documents
	personas  Personas
	tools     Tools

	http     config.ServerConfig
	gatherer prometheus.Gatherer
	logger   *slog.Logger

	startTime time.Time
}

// New creates a server.
func New(cfg Config) (*Server, error) {
	if cfg.Chat == nil || cfg.Documents == nil || cfg.Personas == nil || cfg.Tools == nil {
		return nil, errors.New("server: Chat, Documents, Personas and Tools are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		chat:      cfg.Chat,
		documents: cfg.Documents,
		personas:  cfg.Personas,
		tools:     cfg.Tools,
		http:      cfg.HTTP,
		gatherer:  gatherer,
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
	}, nil
}

// Handler returns the routed API with logging and recovery applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/sessions", s.createSession)
	mux.HandleFunc("GET /v1/sessions", s.listSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.getSessionInfo)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.removeSession)
	mux.HandleFunc("POST /v1/sessions/{id}/chat", s.chatTurn)
	mux.HandleFunc("GET /v1/sessions/{id}/history", s.getHistory)
	mux.HandleFunc("GET /v1/sessions/{id}/references", s.getReferences)
	mux.HandleFunc("GET /v1/ws/sessions/{id}", s.chatSocket)

	mux.HandleFunc("POST /v1/documents", s.addDocuments)
	mux.HandleFunc("POST /v1/documents/raw", s.addRawDocuments)
	mux.HandleFunc("GET /v1/documents", s.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}", s.getDocument)
	mux.HandleFunc("DELETE /v1/documents/{id}", s.deleteDocument)

	mux.HandleFunc("POST /v1/personas", s.createPersona)
	mux.HandleFunc("GET /v1/personas", s.listPersonas)
	mux.HandleFunc("GET /v1/personas/{id}", s.getPersona)
	mux.HandleFunc("PUT /v1/personas/{id}", s.updatePersona)
	mux.HandleFunc("DELETE /v1/personas/{id}", s.deletePersona)
	mux.HandleFunc("POST /v1/personas/{id}/info", s.addPersonaInfo)
	mux.HandleFunc("GET /v1/personas/{id}/info", s.listPersonaInfo)
	mux.HandleFunc("DELETE /v1/personas/{id}/info/{infoID}", s.deletePersonaInfo)

	mux.HandleFunc("POST /v1/tools", s.registerTool)
	mux.HandleFunc("GET /v1/tools", s.listTools)
	mux.HandleFunc("GET /v1/tools/{name}", s.getTool)
	mux.HandleFunc("DELETE /v1/tools/{name}", s.unregisterTool)
	mux.HandleFunc("POST /v1/tools/{name}/execute", s.executeTool)

	return requestIDMiddleware(loggingMiddleware(s.logger)(recoverMiddleware(s.logger)(mux)))
}

// Serve listens on the configured address until ctx is canceled, then
// shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.http.Host, s.http.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.serve(ctx, listener)
}

func (s *Server) serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.http.ReadTimeout,
		WriteTimeout:      s.http.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()
	s.logger.Info("starting http server", "addr", listener.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	<-errCh
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	})
}
