// Package rag fuses full-text and vector-similarity results into one
// ranked, deduplicated sequence of entities.
//
// Text hits always precede vector-only hits. Vector hits from several
// collections of the same kind (document summaries and key points, say)
// are merged by descending score before deduplication, so each entity
// keeps its best-ranked occurrence.
package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/observability"
	"github.com/haasonsaas/charlotte/internal/storage/vectorstore"
)

// Source describes one entity kind to the engine.
type Source[T any] struct {
	// Name labels the kind in logs, metrics and traces.
	Name string

	// Search runs the full-text query and returns up to limit entities.
	Search func(ctx context.Context, query string, limit int) ([]T, error)

	// Key returns an entity's id.
	Key func(T) string

	// Get loads an entity by id. Used for vector-only hits.
	Get func(ctx context.Context, id string) (T, error)

	// Collections are the vector collections holding this kind.
	Collections []string

	// PointKey maps a vector point id to an entity id. Nil means the point
	// id is the entity id.
	PointKey func(ctx context.Context, pointID string) (string, error)
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	metrics *observability.Metrics
	tracer  *observability.Tracer
	logger  *slog.Logger
}

// WithMetrics records retrieval latency.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithTracer traces each fusion.
func WithTracer(t *observability.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Engine runs hybrid retrieval over one entity kind.
type Engine[T any] struct {
	src      Source[T]
	vectors  vectorstore.Store
	embedder llm.Embedder
	opts     options
}

// NewEngine creates an engine for src.
func NewEngine[T any](src Source[T], vectors vectorstore.Store, embedder llm.Embedder, opts ...Option) (*Engine[T], error) {
	if src.Search == nil || src.Key == nil || src.Get == nil {
		return nil, fmt.Errorf("rag: source %q needs Search, Key and Get", src.Name)
	}
	if len(src.Collections) > 0 && vectors == nil {
		return nil, fmt.Errorf("rag: source %q has collections but no vector store", src.Name)
	}
	if embedder == nil {
		return nil, errors.New("rag: embedder is required")
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "rag", "kind", src.Name)
	return &Engine[T]{src: src, vectors: vectors, embedder: embedder, opts: o}, nil
}

// Fuse returns up to k entity ids ranked text hits first, then vector
// hits. embedding may be nil, in which case the query is embedded.
func (e *Engine[T]) Fuse(ctx context.Context, query string, embedding []float32, k int) ([]string, error) {
	ids, _, err := e.fuse(ctx, query, embedding, k)
	return ids, err
}

// Query is Fuse resolved to entities. Vector hits whose entity no longer
// exists are skipped.
func (e *Engine[T]) Query(ctx context.Context, query string, embedding []float32, k int) ([]T, error) {
	ids, loaded, err := e.fuse(ctx, query, embedding, k)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if item, ok := loaded[id]; ok {
			out = append(out, item)
			continue
		}
		item, err := e.src.Get(ctx, id)
		if errors.Is(err, errdefs.ErrNotFound) {
			e.opts.logger.Warn("vector hit without entity", "id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (e *Engine[T]) fuse(ctx context.Context, query string, embedding []float32, k int) ([]string, map[string]T, error) {
	if query == "" || k <= 0 {
		return []string{}, nil, nil
	}

	ctx, span := e.opts.tracer.TraceRetrieval(ctx, e.src.Name, k)
	defer span.End()
	start := time.Now()
	defer func() { e.opts.metrics.Retrieval(e.src.Name, time.Since(start)) }()

	if len(embedding) == 0 && len(e.src.Collections) > 0 {
		var err error
		embedding, err = llm.EmbedOne(ctx, e.embedder, query)
		if err != nil {
			observability.RecordError(span, err)
			return nil, nil, err
		}
	}

	var (
		textHits   []T
		collection = make([][]vectorstore.Match, len(e.src.Collections))
	)
	g, gctx := errgroup.WithContext(ctx)
	if textLimit := k / 2; textLimit > 0 {
		g.Go(func() error {
			hits, err := e.src.Search(gctx, query, textLimit)
			if err != nil {
				return err
			}
			textHits = hits
			return nil
		})
	}
	for i, name := range e.src.Collections {
		g.Go(func() error {
			matches, err := e.vectors.Search(gctx, name, embedding, k)
			if err != nil {
				return err
			}
			collection[i] = matches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observability.RecordError(span, err)
		return nil, nil, err
	}

	vectorIDs, err := e.vectorRanking(ctx, collection)
	if err != nil {
		observability.RecordError(span, err)
		return nil, nil, err
	}

	loaded := make(map[string]T, len(textHits))
	textIDs := make([]string, 0, len(textHits))
	for _, hit := range textHits {
		id := e.src.Key(hit)
		textIDs = append(textIDs, id)
		loaded[id] = hit
	}

	ids := Merge(textIDs, vectorIDs, k)
	observability.SetAttributes(span, "rag.text_hits", len(textIDs), "rag.vector_hits", len(vectorIDs), "rag.results", len(ids))
	return ids, loaded, nil
}

// vectorRanking concatenates the per-collection matches, sorts them by
// descending score and maps point ids to entity ids, dropping duplicates.
func (e *Engine[T]) vectorRanking(ctx context.Context, collections [][]vectorstore.Match) ([]string, error) {
	var all []vectorstore.Match
	for _, matches := range collections {
		all = append(all, matches...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Score > all[j].Score })

	ids := make([]string, 0, len(all))
	for _, m := range all {
		id := m.ID
		if e.src.PointKey != nil {
			var err error
			id, err = e.src.PointKey(ctx, m.ID)
			if errors.Is(err, errdefs.ErrNotFound) {
				e.opts.logger.Warn("orphaned vector point", "point_id", m.ID)
				continue
			}
			if err != nil {
				return nil, err
			}
		}
		ids = append(ids, id)
	}
	return Dedup(ids), nil
}

// Merge appends vector ids after text ids, drops repeats (first
// occurrence wins) and truncates to k.
func Merge(textIDs, vectorIDs []string, k int) []string {
	merged := make([]string, 0, len(textIDs)+len(vectorIDs))
	merged = append(merged, textIDs...)
	merged = append(merged, vectorIDs...)
	merged = Dedup(merged)
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// Dedup removes repeated ids, keeping the first occurrence.
func Dedup(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
