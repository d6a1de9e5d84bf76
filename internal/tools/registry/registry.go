// Package registry stores callable tools and runs them in the sandbox.
//
// Every tool lives in two places: the full-text index, keyed by name, and
// the "tools" vector collection, keyed by the tool's VecID. Writes keep the
// two paired; a registration whose vector write fails leaves nothing behind.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/observability"
	"github.com/haasonsaas/charlotte/internal/rag"
	"github.com/haasonsaas/charlotte/internal/storage/textindex"
	"github.com/haasonsaas/charlotte/internal/storage/vectorstore"
	"github.com/haasonsaas/charlotte/pkg/models"
)

const (
	// IndexName is the text index holding tool definitions.
	IndexName = "tools"

	// Collection is the vector collection holding tool descriptions.
	Collection = "tools"

	vecIDField = "vec_id"
)

// MaxArgumentsSize bounds the JSON arguments of one call.
const MaxArgumentsSize = 1 << 20

// Tool names follow the function-name rules of the chat backends.
var nameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const emptyParameters = `{"type":"object","properties":{}}`

// Runner compiles and runs tool bodies. *sandbox.Executor implements it.
type Runner interface {
	Check(body string) error
	Run(ctx context.Context, tool, body string, args map[string]any) (any, error)
}

// Config wires a Registry to its backends.
type Config struct {
	DB        *sql.DB
	Vectors   vectorstore.Store
	Embedder  llm.Embedder
	Runner    Runner
	Dimension int

	Logger  *slog.Logger
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
}

// Registry is the tool store. It is safe for concurrent use; writes are
// serialized.
type Registry struct {
	mu sync.Mutex

	index    *textindex.Index[models.ToolDefinition]
	vectors  vectorstore.Store
	embedder llm.Embedder
	runner   Runner
	engine   *rag.Engine[models.ToolDefinition]
	schemas  sync.Map

	logger  *slog.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

// New creates the registry and its index and collection if missing.
func New(ctx context.Context, cfg Config) (*Registry, error) {
	if cfg.Vectors == nil || cfg.Embedder == nil || cfg.Runner == nil {
		return nil, errors.New("registry: Vectors, Embedder and Runner are required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("registry: invalid dimension %d", cfg.Dimension)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	index, err := textindex.New(cfg.DB, textindex.Schema[models.ToolDefinition]{
		Name: IndexName,
		Key:  func(t models.ToolDefinition) string { return t.Name },
		Text: func(t models.ToolDefinition) []string { return []string{t.Name, t.Description} },
		Fields: []textindex.Field[models.ToolDefinition]{
			{Name: vecIDField, Value: func(t models.ToolDefinition) string { return t.VecID }},
		},
	})
	if err != nil {
		return nil, err
	}
	if err := index.EnsureIndex(ctx); err != nil {
		return nil, fmt.Errorf("ensure tool index: %w", err)
	}
	if err := errdefs.IgnoreExists(cfg.Vectors.EnsureCollection(ctx, Collection, cfg.Dimension)); err != nil {
		return nil, fmt.Errorf("ensure tool collection: %w", err)
	}

	r := &Registry{
		index:    index,
		vectors:  cfg.Vectors,
		embedder: cfg.Embedder,
		runner:   cfg.Runner,
		logger:   logger.With("component", "tools"),
		metrics:  cfg.Metrics,
		tracer:   cfg.Tracer,
	}
	r.engine, err = rag.NewEngine(rag.Source[models.ToolDefinition]{
		Name: "tools",
		Search: func(ctx context.Context, query string, limit int) ([]models.ToolDefinition, error) {
			res, err := index.Search(ctx, query, nil, 1, limit)
			return res.Hits, err
		},
		Key:         func(t models.ToolDefinition) string { return t.Name },
		Get:         index.Get,
		Collections: []string{Collection},
		PointKey:    r.nameForVector,
	}, cfg.Vectors, cfg.Embedder,
		rag.WithLogger(logger), rag.WithMetrics(cfg.Metrics), rag.WithTracer(cfg.Tracer))
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) nameForVector(ctx context.Context, vecID string) (string, error) {
	def, err := r.index.Find(ctx, vecIDField, vecID)
	if err != nil {
		return "", err
	}
	return def.Name, nil
}

// Register validates and stores def under a fresh vector id. It fails with
// errdefs.ErrDuplicateName when the name is taken. The stored definition is
// returned.
func (r *Registry) Register(ctx context.Context, def models.ToolDefinition) (models.ToolDefinition, error) {
	def = def.Clone()
	if !nameRe.MatchString(def.Name) {
		return def, errdefs.Invalid("tool name %q must match %s", def.Name, nameRe)
	}
	if strings.TrimSpace(def.Description) == "" {
		return def, errdefs.Invalid("tool %s: description is required", def.Name)
	}
	if len(def.Parameters) == 0 {
		def.Parameters = json.RawMessage(emptyParameters)
	}
	if _, err := r.schema(def.Parameters); err != nil {
		return def, errdefs.Invalid("tool %s: parameter schema: %v", def.Name, err)
	}
	if err := r.runner.Check(def.Body); err != nil {
		return def, fmt.Errorf("tool %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := r.index.Has(ctx, def.Name)
	if err != nil {
		return def, err
	}
	if exists {
		return def, errdefs.Duplicate("tool", def.Name)
	}
	// Vector ids are always minted here; a caller-supplied one is ignored.
	def.VecID = uuid.NewString()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = time.Now().UTC()
	}

	if err := r.index.Put(ctx, def); err != nil {
		return def, fmt.Errorf("index tool %s: %w", def.Name, err)
	}
	if err := r.writeVector(ctx, def); err != nil {
		if rbErr := r.index.Delete(ctx, def.Name); rbErr != nil {
			r.logger.Error("failed to roll back tool text", "tool", def.Name, "error", rbErr)
		}
		return def, fmt.Errorf("index tool %s: %w", def.Name, err)
	}
	r.logger.Info("tool registered", "tool", def.Name, "vec_id", def.VecID)
	return def, nil
}

func (r *Registry) writeVector(ctx context.Context, def models.ToolDefinition) error {
	vec, err := llm.EmbedOne(ctx, r.embedder, def.Description)
	if err != nil {
		return err
	}
	return r.vectors.Upsert(ctx, Collection, vectorstore.Point{ID: def.VecID, Vector: vec})
}

// Get returns the named tool.
func (r *Registry) Get(ctx context.Context, name string) (models.ToolDefinition, error) {
	return r.index.Get(ctx, name)
}

// Search runs a paginated full-text search over names and descriptions.
func (r *Registry) Search(ctx context.Context, text string, page, limit int) (models.SearchResult[models.ToolDefinition], error) {
	return r.index.Search(ctx, text, nil, page, limit)
}

// List returns tools in registration order.
func (r *Registry) List(ctx context.Context, page, limit int) (models.SearchResult[models.ToolDefinition], error) {
	return r.index.List(ctx, nil, page, limit)
}

// Query returns up to k tools relevant to text by hybrid retrieval.
// embedding may be nil.
func (r *Registry) Query(ctx context.Context, text string, k int, embedding []float32) ([]models.ToolDefinition, error) {
	return r.engine.Query(ctx, text, embedding, k)
}

// Unregister removes tools by name. Unknown names are skipped. Vector
// points go first so a failure never leaves a vector without its tool.
func (r *Registry) Unregister(ctx context.Context, names ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var found, vecIDs []string
	for _, name := range names {
		def, err := r.index.Get(ctx, name)
		if errors.Is(err, errdefs.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		found = append(found, def.Name)
		vecIDs = append(vecIDs, def.VecID)
	}
	if len(found) == 0 {
		return nil
	}
	if err := r.vectors.Delete(ctx, Collection, vecIDs...); err != nil {
		return fmt.Errorf("delete tool vectors: %w", err)
	}
	if err := r.index.Delete(ctx, found...); err != nil {
		return fmt.Errorf("delete tools: %w", err)
	}
	r.logger.Info("tools unregistered", "tools", found)
	return nil
}

// Execute runs the named tool with JSON-encoded arguments. String results
// are returned as is; anything else is JSON encoded. Invalid arguments
// fail with errdefs.ErrInvalid and body failures with
// errdefs.ErrSandboxFault.
func (r *Registry) Execute(ctx context.Context, name, arguments string) (result string, err error) {
	ctx, span := r.tracer.TraceToolExecution(ctx, name)
	defer span.End()
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = string(errdefs.KindOf(err))
			observability.RecordError(span, err)
		}
		r.metrics.ToolExecution(name, status, time.Since(start))
	}()

	def, err := r.index.Get(ctx, name)
	if err != nil {
		return "", err
	}
	args, err := r.decodeArguments(def, arguments)
	if err != nil {
		return "", err
	}

	value, err := r.runner.Run(ctx, def.Name, def.Body, args)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return "", err
	}
	return encodeResult(def.Name, value)
}

func (r *Registry) decodeArguments(def models.ToolDefinition, arguments string) (map[string]any, error) {
	if len(arguments) > MaxArgumentsSize {
		return nil, errdefs.Invalid("arguments for %s exceed %d bytes", def.Name, MaxArgumentsSize)
	}
	if strings.TrimSpace(arguments) == "" {
		arguments = "{}"
	}
	var decoded any
	if err := json.Unmarshal([]byte(arguments), &decoded); err != nil {
		return nil, errdefs.Invalid("arguments for %s are not valid JSON: %v", def.Name, err)
	}
	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, errdefs.Invalid("arguments for %s must be a JSON object", def.Name)
	}

	schema, err := r.schema(def.Parameters)
	if err != nil {
		return nil, errdefs.Invalid("tool %s: parameter schema: %v", def.Name, err)
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, errdefs.Invalid("arguments for %s: %v", def.Name, err)
	}
	return args, nil
}

func encodeResult(name string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "null", nil
	}
	out, err := json.Marshal(value)
	if err != nil {
		return "", errdefs.Sandbox(name, fmt.Errorf("encode result: %w", err))
	}
	return string(out), nil
}

func (r *Registry) schema(params json.RawMessage) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		params = json.RawMessage(emptyParameters)
	}
	key := string(params)
	if cached, ok := r.schemas.Load(key); ok {
		return cached.(*jsonschema.Schema), nil
	}
	compiled, err := jsonschema.CompileString("tool.schema.json", key)
	if err != nil {
		return nil, err
	}
	r.schemas.Store(key, compiled)
	return compiled, nil
}
