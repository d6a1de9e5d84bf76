package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/haasonsaas/charlotte/internal/observability"
)

// Instrumented wraps a Client with metrics, tracing and debug logging.
type Instrumented struct {
	next     Client
	provider string
	model    string
	metrics  *observability.Metrics
	tracer   *observability.Tracer
	logger   *slog.Logger
}

// Instrument wraps c. Any of metrics, tracer and logger may be nil.
func Instrument(c Client, provider, model string, metrics *observability.Metrics, tracer *observability.Tracer, logger *slog.Logger) *Instrumented {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instrumented{
		next:     c,
		provider: provider,
		model:    model,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger.With("component", "llm", "provider", provider),
	}
}

func (i *Instrumented) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	ctx, span := i.tracer.TraceLLMRequest(ctx, i.provider, "chat", i.model)
	defer span.End()
	start := time.Now()
	resp, err := i.next.Chat(ctx, req)
	i.metrics.LLMRequest("chat", time.Since(start))
	observability.RecordError(span, err)
	if err != nil {
		i.logger.WarnContext(ctx, "chat request failed", "error", err, "duration", time.Since(start))
		return nil, err
	}
	i.logger.DebugContext(ctx, "chat request completed",
		"tool_mode", req.ToolMode,
		"tools", len(req.Tools),
		"history", len(req.History),
		"tool_call", resp.ToolCall != nil,
		"duration", time.Since(start),
	)
	return resp, nil
}

func (i *Instrumented) Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error) {
	ctx, span := i.tracer.TraceLLMRequest(ctx, i.provider, "complete", i.model)
	defer span.End()
	start := time.Now()
	out, err := i.next.Complete(ctx, prompt, opts)
	i.metrics.LLMRequest("complete", time.Since(start))
	observability.RecordError(span, err)
	if err != nil {
		i.logger.WarnContext(ctx, "completion failed", "error", err)
	}
	return out, err
}

func (i *Instrumented) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := i.tracer.TraceLLMRequest(ctx, i.provider, "embed", i.model)
	defer span.End()
	observability.SetAttributes(span, "llm.inputs", len(texts))
	start := time.Now()
	out, err := i.next.Embed(ctx, texts)
	i.metrics.LLMRequest("embed", time.Since(start))
	observability.RecordError(span, err)
	if err != nil {
		i.logger.WarnContext(ctx, "embedding failed", "error", err, "inputs", len(texts))
	}
	return out, err
}
