// Package knowledge stores the documents the assistant answers from.
//
// A document is indexed three times under the same id: its full text in
// the "documents" text index, and its summary and key points in two
// vector collections. Retrieval fuses all three.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/knowledge/parser"
	"github.com/haasonsaas/charlotte/internal/knowledge/parser/markdown"
	"github.com/haasonsaas/charlotte/internal/knowledge/parser/text"
	"github.com/haasonsaas/charlotte/internal/knowledge/source"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/observability"
	"github.com/haasonsaas/charlotte/internal/rag"
	"github.com/haasonsaas/charlotte/internal/storage/textindex"
	"github.com/haasonsaas/charlotte/internal/storage/vectorstore"
	"github.com/haasonsaas/charlotte/pkg/models"
)

const (
	IndexName          = "documents"
	SummaryCollection  = "document_summaries"
	KeyPointCollection = "document_keypoints"
)

// Config wires a Store to its backends.
type Config struct {
	DB        *sql.DB
	Vectors   vectorstore.Store
	LLM       llm.Client
	Dimension int

	// Parsers defaults to Markdown and plain text.
	Parsers *parser.Registry

	// Loader enables IngestURIs.
	Loader *source.Loader

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Store is the knowledge base. Reads are concurrent; writes are
// serialized so the text index and both collections change together.
type Store struct {
	mu sync.Mutex

	index   *textindex.Index[models.Document]
	vectors vectorstore.Store
	llm     llm.Client
	engine  *rag.Engine[models.Document]
	parsers *parser.Registry
	loader  *source.Loader
	logger  *slog.Logger
}

// DefaultParsers returns a registry with the Markdown and text parsers,
// falling back to text.
func DefaultParsers() *parser.Registry {
	reg := parser.NewRegistry()
	reg.Register(markdown.New())
	reg.Register(text.New())
	reg.SetDefault(text.New())
	return reg
}

// New creates the store and its index and collections if missing.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Vectors == nil || cfg.LLM == nil {
		return nil, errors.New("knowledge: Vectors and LLM are required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("knowledge: invalid dimension %d", cfg.Dimension)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	parsers := cfg.Parsers
	if parsers == nil {
		parsers = DefaultParsers()
	}

	index, err := textindex.New(cfg.DB, textindex.Schema[models.Document]{
		Name: IndexName,
		Key:  func(d models.Document) string { return d.ID },
		Text: func(d models.Document) []string {
			return []string{d.Title, d.Summary, d.KeyPoints, d.Content}
		},
		Fields: []textindex.Field[models.Document]{
			{Name: "source_type", Value: func(d models.Document) string { return d.Source.Type }},
		},
	})
	if err != nil {
		return nil, err
	}
	if err := index.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure document index: %w", err)
	}
	for _, c := range []string{SummaryCollection, KeyPointCollection} {
		if err := errdefs.IgnoreExists(cfg.Vectors.EnsureCollection(ctx, c, cfg.Dimension)); err != nil {
			return nil, fmt.Errorf("ensure collection %s: %w", c, err)
		}
	}

	engine, err := rag.NewEngine(rag.Source[models.Document]{
		Name: "documents",
		Search: func(ctx context.Context, query string, limit int) ([]models.Document, error) {
			res, err := index.Search(ctx, query, nil, 1, limit)
			return res.Hits, err
		},
		Key: func(d models.Document) string { return d.ID },
		Get: index.Get,
		// Key points first: on equal scores they outrank summaries.
		Collections: []string{KeyPointCollection, SummaryCollection},
	}, cfg.Vectors, cfg.LLM,
		rag.WithLogger(logger), rag.WithMetrics(cfg.Metrics), rag.WithTracer(cfg.Tracer))
	if err != nil {
		return nil, err
	}

	return &Store{
		index:   index,
		vectors: cfg.Vectors,
		llm:     cfg.LLM,
		engine:  engine,
		parsers: parsers,
		loader:  cfg.Loader,
		logger:  logger.With("component", "knowledge"),
	}, nil
}

// AddDocuments stores documents, assigning ids and creation times where
// missing. Existing ids are replaced.
func (s *Store) AddDocuments(ctx context.Context, docs ...models.Document) ([]models.Document, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	out := make([]models.Document, len(docs))
	for i, doc := range docs {
		if strings.TrimSpace(doc.Content) == "" && strings.TrimSpace(doc.Summary) == "" {
			return nil, errdefs.Invalid("document %d has no content", i)
		}
		if doc.ID == "" {
			doc.ID = uuid.NewString()
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		out[i] = doc
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Embed before touching the index so a failing backend changes nothing.
	texts := make([]string, 0, 2*len(out))
	for _, doc := range out {
		texts = append(texts, summaryText(doc), keyPointText(doc))
	}
	vecs, err := s.llm.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, errdefs.Backend("knowledge.embed", "", fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts)))
	}
	summaries := make([]vectorstore.Point, len(out))
	keyPoints := make([]vectorstore.Point, len(out))
	ids := make([]string, len(out))
	for i, doc := range out {
		ids[i] = doc.ID
		summaries[i] = vectorstore.Point{ID: doc.ID, Vector: vecs[2*i]}
		keyPoints[i] = vectorstore.Point{ID: doc.ID, Vector: vecs[2*i+1]}
	}

	if err := s.index.Put(ctx, out...); err != nil {
		return nil, fmt.Errorf("index documents: %w", err)
	}
	if err := s.upsertVectors(ctx, summaries, keyPoints); err != nil {
		s.rollback(ctx, ids)
		return nil, fmt.Errorf("index documents: %w", err)
	}
	s.logger.Info("documents added", "count", len(out))
	return out, nil
}

func (s *Store) upsertVectors(ctx context.Context, summaries, keyPoints []vectorstore.Point) error {
	if err := s.vectors.Upsert(ctx, SummaryCollection, summaries...); err != nil {
		return err
	}
	return s.vectors.Upsert(ctx, KeyPointCollection, keyPoints...)
}

func (s *Store) rollback(ctx context.Context, ids []string) {
	for _, c := range []string{SummaryCollection, KeyPointCollection} {
		if err := s.vectors.Delete(ctx, c, ids...); err != nil {
			s.logger.Error("failed to roll back document vectors", "collection", c, "error", err)
		}
	}
	if err := s.index.Delete(ctx, ids...); err != nil {
		s.logger.Error("failed to roll back document text", "error", err)
	}
}

// summaryText is what the summary vector encodes.
func summaryText(d models.Document) string {
	return firstNonEmpty(d.Summary, d.Title, truncateRunes(d.Content, 2000))
}

func keyPointText(d models.Document) string {
	return firstNonEmpty(d.KeyPoints, summaryText(d))
}

// GetDocument returns a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (models.Document, error) {
	return s.index.Get(ctx, id)
}

// DeleteDocuments removes documents from both collections, then from the
// text index. Unknown ids are ignored.
func (s *Store) DeleteDocuments(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range []string{SummaryCollection, KeyPointCollection} {
		if err := s.vectors.Delete(ctx, c, ids...); err != nil {
			return fmt.Errorf("delete document vectors: %w", err)
		}
	}
	if err := s.index.Delete(ctx, ids...); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	s.logger.Info("documents deleted", "count", len(ids))
	return nil
}

// ListDocuments pages through documents in insertion order.
func (s *Store) ListDocuments(ctx context.Context, page, limit int) (models.SearchResult[models.Document], error) {
	return s.index.List(ctx, nil, page, limit)
}

// SearchDocuments runs a paginated full-text search.
func (s *Store) SearchDocuments(ctx context.Context, query string, page, limit int) (models.SearchResult[models.Document], error) {
	return s.index.Search(ctx, query, nil, page, limit)
}

// QueryDocuments returns up to k documents relevant to query by hybrid
// retrieval. embedding may be nil.
func (s *Store) QueryDocuments(ctx context.Context, query string, k int, embedding []float32) ([]models.Document, error) {
	return s.engine.Query(ctx, query, embedding, k)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
