// Package host defines the capability surface visible to tool bodies.
//
// A tool body imports it as "charlotte/host" and receives a
// *Capabilities on every call. Nothing else from the host process is
// reachable from inside the sandbox.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/charlotte/internal/datetime"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// ImportPath is the path tool bodies import.
const ImportPath = "charlotte/host"

// maxSearchLimit caps SearchDocuments.
const maxSearchLimit = 50

// DocumentReader is the read-only knowledge lookup offered to tools.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (models.Document, error)
	SearchDocuments(ctx context.Context, query string, page, limit int) (models.SearchResult[models.Document], error)
}

// PersonaReader is the read-only persona lookup offered to tools.
type PersonaReader interface {
	GetPersona(ctx context.Context, id string) (models.Persona, error)
}

// Dependencies are the host services behind the capabilities. Any of them
// may be nil; the matching capability then reports ErrUnavailable.
type Dependencies struct {
	Clock     *datetime.Clock
	Documents DocumentReader
	Personas  PersonaReader
	Logger    *slog.Logger
}

// ErrUnavailable is returned by a capability whose service is not wired.
var ErrUnavailable = errors.New("capability not available")

// Document is the tool-facing view of a knowledge document.
type Document struct {
	ID        string
	Title     string
	Summary   string
	KeyPoints string
	Content   string
	CreatedAt time.Time
	Source    string
	Timezone  string
}

// Persona is the tool-facing view of a persona.
type Persona struct {
	ID       string
	Name     string
	Greeting string
	KeyInfo  string
}

// Capabilities is passed to a tool body's Execute function.
type Capabilities struct {
	ctx    context.Context
	tool   string
	deps   Dependencies
	logger *slog.Logger
}

// New binds deps to one invocation of tool. ctx bounds every lookup the
// tool makes.
func New(ctx context.Context, tool string, deps Dependencies) *Capabilities {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = datetime.NewClock("")
	}
	return &Capabilities{
		ctx:    ctx,
		tool:   tool,
		deps:   deps,
		logger: logger.With("component", "sandbox", "tool", tool),
	}
}

// Now returns the current time in the configured zone.
func (c *Capabilities) Now() time.Time {
	return c.deps.Clock.Now()
}

// Zone returns the configured IANA zone name.
func (c *Capabilities) Zone() string {
	return c.deps.Clock.Zone()
}

// In converts t to the named zone. Unknown zones fall back to the
// configured one.
func (c *Capabilities) In(t time.Time, zone string) time.Time {
	return c.deps.Clock.In(t, zone)
}

// Format renders t like "Friday, January 24th, 2025 - 14:30".
func (c *Capabilities) Format(t time.Time) string {
	return datetime.FormatLong(c.deps.Clock.In(t, ""))
}

// Relative renders t relative to now, e.g. "in 3 days" or "yesterday".
func (c *Capabilities) Relative(t time.Time) string {
	return c.deps.Clock.Relative(t)
}

// Document loads a knowledge document by id.
func (c *Capabilities) Document(id string) (Document, error) {
	if c.deps.Documents == nil {
		return Document{}, fmt.Errorf("documents: %w", ErrUnavailable)
	}
	doc, err := c.deps.Documents.GetDocument(c.ctx, id)
	if err != nil {
		return Document{}, err
	}
	return documentView(doc), nil
}

// SearchDocuments runs a full-text search over knowledge documents.
func (c *Capabilities) SearchDocuments(query string, limit int) ([]Document, error) {
	if c.deps.Documents == nil {
		return nil, fmt.Errorf("documents: %w", ErrUnavailable)
	}
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	res, err := c.deps.Documents.SearchDocuments(c.ctx, query, 1, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Document, 0, len(res.Hits))
	for _, doc := range res.Hits {
		out = append(out, documentView(doc))
	}
	return out, nil
}

// Persona loads a persona by id.
func (c *Capabilities) Persona(id string) (Persona, error) {
	if c.deps.Personas == nil {
		return Persona{}, fmt.Errorf("personas: %w", ErrUnavailable)
	}
	p, err := c.deps.Personas.GetPersona(c.ctx, id)
	if err != nil {
		return Persona{}, err
	}
	return Persona{ID: p.ID, Name: p.Name, Greeting: p.Greeting, KeyInfo: p.KeyInfo}, nil
}

// Log writes a message to the host log, tagged with the tool name.
func (c *Capabilities) Log(msg string, keyvals ...any) {
	c.logger.InfoContext(c.ctx, msg, keyvals...)
}

func documentView(doc models.Document) Document {
	return Document{
		ID:        doc.ID,
		Title:     doc.Title,
		Summary:   doc.Summary,
		KeyPoints: doc.KeyPoints,
		Content:   doc.Content,
		CreatedAt: doc.CreatedAt,
		Source:    doc.Source.URI,
		Timezone:  doc.Timezone,
	}
}
