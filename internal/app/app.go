// Package app assembles a running Charlotte instance from configuration:
// language-model providers, storage, the knowledge, persona and tool
// stores, the sandbox, the orchestrator and session persistence.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/haasonsaas/charlotte/internal/agent"
	"github.com/haasonsaas/charlotte/internal/config"
	"github.com/haasonsaas/charlotte/internal/datetime"
	"github.com/haasonsaas/charlotte/internal/knowledge"
	"github.com/haasonsaas/charlotte/internal/knowledge/source"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/observability"
	"github.com/haasonsaas/charlotte/internal/persona"
	"github.com/haasonsaas/charlotte/internal/server"
	"github.com/haasonsaas/charlotte/internal/sessions"
	"github.com/haasonsaas/charlotte/internal/storage"
	"github.com/haasonsaas/charlotte/internal/storage/vectorstore"
	"github.com/haasonsaas/charlotte/internal/tools/registry"
	"github.com/haasonsaas/charlotte/internal/tools/sandbox"
	"github.com/haasonsaas/charlotte/internal/tools/sandbox/host"
)

// Options override parts of the assembly.
type Options struct {
	// LLM replaces the configured providers.
	LLM llm.Client

	// Registerer receives the metrics; nil uses the default registry.
	Registerer prometheus.Registerer

	Version string
	Logger  *slog.Logger
}

// App is an assembled instance.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	LLM       llm.Client
	Knowledge *knowledge.Store
	Personas  *persona.Store
	Tools     *registry.Registry
	Agent     *agent.Orchestrator
	Sessions  *sessions.Cache

	Metrics *observability.Metrics
	Tracer  *observability.Tracer

	db       *sql.DB
	vectorDB *sql.DB
	vectors  vectorstore.Store
	flusher  *sessions.Flusher
	shutdown func(context.Context) error
	gatherer prometheus.Gatherer
}

// New assembles an instance. Close releases it.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, shutdown: func(context.Context) error { return nil }}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if g, ok := reg.(prometheus.Gatherer); ok {
		a.gatherer = g
	}
	if cfg.Observability.Metrics {
		a.Metrics = observability.NewMetrics(reg)
	}
	tracer, shutdown, err := observability.NewTracer(ctx, observability.TraceConfig{
		ServiceName:    config.DefaultServiceName,
		ServiceVersion: opts.Version,
		Environment:    cfg.Observability.Tracing.Environment,
		Endpoint:       cfg.Observability.Tracing.Endpoint,
		SamplingRate:   cfg.Observability.Tracing.SamplingRate,
		Insecure:       cfg.Observability.Tracing.Insecure,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}
	a.Tracer = tracer
	a.shutdown = shutdown

	client := opts.LLM
	if client == nil {
		client, err = NewLLM(ctx, cfg.LLM)
		if err != nil {
			return nil, err
		}
		client = llm.Instrument(client, cfg.LLM.Provider, chatModel(cfg.LLM), a.Metrics, a.Tracer, logger)
	}
	a.LLM = client

	a.db, err = storage.OpenSQLite(ctx, cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	if err := a.openVectors(ctx); err != nil {
		return nil, err
	}

	dimension := cfg.LLM.Embedding.Dimension
	loader, err := source.NewLoader(ctx, source.Config{
		HTTPClient: &http.Client{Timeout: cfg.Sources.HTTPTimeout},
		S3:         s3Config(cfg.Sources.S3),
	})
	if err != nil {
		return nil, fmt.Errorf("init document loader: %w", err)
	}
	a.Knowledge, err = knowledge.New(ctx, knowledge.Config{
		DB:        a.db,
		Vectors:   a.vectors,
		LLM:       client,
		Dimension: dimension,
		Loader:    loader,
		Logger:    logger,
		Metrics:   a.Metrics,
		Tracer:    a.Tracer,
	})
	if err != nil {
		return nil, err
	}
	a.Personas, err = persona.New(ctx, persona.Config{DB: a.db, Logger: logger})
	if err != nil {
		return nil, err
	}

	clock := datetime.NewClock(cfg.Chat.Timezone)
	exec, err := sandbox.NewExecutor(host.Dependencies{
		Clock:     clock,
		Documents: a.Knowledge,
		Personas:  a.Personas,
		Logger:    logger,
	},
		sandbox.WithTimeout(cfg.Sandbox.Timeout),
		sandbox.WithPackages(append(append([]string(nil), sandbox.DefaultPackages...), cfg.Sandbox.Packages...)),
	)
	if err != nil {
		return nil, fmt.Errorf("init sandbox: %w", err)
	}
	a.Tools, err = registry.New(ctx, registry.Config{
		DB:        a.db,
		Vectors:   a.vectors,
		Embedder:  client,
		Runner:    exec,
		Dimension: dimension,
		Logger:    logger,
		Metrics:   a.Metrics,
		Tracer:    a.Tracer,
	})
	if err != nil {
		return nil, err
	}

	var durable sessions.Store
	if cfg.Sessions.Persist {
		store, err := sessions.NewSQLiteStore(ctx, a.db)
		if err != nil {
			return nil, err
		}
		durable = store
	}
	a.Sessions, err = sessions.NewCache(ctx, durable, logger)
	if err != nil {
		return nil, err
	}
	if durable != nil {
		a.flusher, err = sessions.NewFlusher(a.Sessions, cfg.Sessions.FlushSchedule, logger)
		if err != nil {
			return nil, err
		}
		a.flusher.Start()
	}

	a.Agent, err = agent.New(agent.Config{
		LLM:       client,
		Knowledge: a.Knowledge,
		Tools:     a.Tools,
		Personas:  a.Personas,
		Sessions:  a.Sessions,
		Chat:      cfg.Chat,
		Logger:    logger,
		Metrics:   a.Metrics,
		Tracer:    a.Tracer,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("charlotte assembled",
		"llm_provider", cfg.LLM.Provider,
		"embedding_provider", cfg.LLM.Embedding.Provider,
		"vector_backend", cfg.Storage.Vector.Backend,
		"sessions_persisted", cfg.Sessions.Persist,
	)
	return a, nil
}

func (a *App) openVectors(ctx context.Context) error {
	vc := a.Config.Storage.Vector
	if vc.Backend == "pgvector" {
		db, err := storage.OpenPostgres(ctx, vc.DSN, nil)
		if err != nil {
			return err
		}
		a.vectorDB = db
		store, err := vectorstore.NewPGVector(ctx, vectorstore.PGVectorConfig{DB: db})
		if err != nil {
			return err
		}
		a.vectors = store
		return nil
	}
	store, err := vectorstore.NewSQLite(ctx, vectorstore.SQLiteConfig{DB: a.db, Quantize: vc.Quantize})
	if err != nil {
		return err
	}
	a.vectors = store
	return nil
}

// Server builds the HTTP API over the assembled components.
func (a *App) Server() (*server.Server, error) {
	return server.New(server.Config{
		Chat:      a.Agent,
		Documents: a.Knowledge,
		Personas:  a.Personas,
		Tools:     a.Tools,
		HTTP:      a.Config.Server,
		Gatherer:  a.gatherer,
		Logger:    a.Logger,
	})
}

// Reload applies the reloadable parts of cfg.
func (a *App) Reload(cfg *config.Config) {
	a.Agent.UpdateChatConfig(cfg.Chat)
}

// Close stops the flusher (writing pending sessions), shuts down tracing
// and closes the databases.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.flusher != nil {
		errs = append(errs, a.flusher.Stop(ctx))
		a.flusher = nil
	} else if a.Sessions != nil {
		errs = append(errs, a.Sessions.Flush(ctx))
	}
	if a.vectors != nil {
		errs = append(errs, a.vectors.Close())
	}
	if a.vectorDB != nil {
		errs = append(errs, a.vectorDB.Close())
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
		a.shutdown = nil
	}
	return errors.Join(errs...)
}

func s3Config(c config.S3Config) *source.S3Config {
	if c.Region == "" && c.Endpoint == "" {
		return nil
	}
	return &source.S3Config{
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		UsePathStyle:    c.UsePathStyle,
	}
}
