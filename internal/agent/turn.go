package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/observability"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// Round trip outcomes, used as metric labels.
const (
	outcomeToolCall = "tool_call"
	outcomeFiller   = "filler"
	outcomeFinal    = "final"
	outcomeError    = "error"
	outcomeProtocol = "protocol_violation"
)

// turn is the state of one Chat call.
type turn struct {
	o       *Orchestrator
	cfg     *settings
	session *models.Session
	ws      *workingSet
	system  string
	out     []models.ChatMessage
	round   int
}

// Chat runs one chat turn and returns the messages it produced: filler
// replies, tool results and the final persona reply. The input message is
// appended to the history but not returned.
func (o *Orchestrator) Chat(ctx context.Context, sessionID string, input models.ChatMessage) (out []models.ChatMessage, err error) {
	cfg := o.current()
	ctx = observability.WithSessionID(ctx, sessionID)
	ctx, span := o.tracer.TraceTurn(ctx, sessionID)
	defer span.End()

	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil {
			status = string(errdefs.KindOf(err))
			if status == "" {
				status = "error"
			}
			observability.RecordError(span, err)
			o.logger.ErrorContext(ctx, "chat turn failed", "session_id", sessionID, "error", err)
		} else {
			o.logger.DebugContext(ctx, "chat turn complete",
				"session_id", sessionID,
				"messages", len(out),
				"duration", time.Since(start),
			)
		}
		o.metrics.ChatTurn(status)
	}()

	if strings.TrimSpace(input.Content) == "" {
		return nil, errdefs.Invalid("chat input must have content")
	}

	release, err := o.locks.Lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := o.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	input.Documents = nil
	input.Tools = nil
	input.ToolCall = nil
	if input.Origin == "" {
		input.Origin = models.OriginUser
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now().UTC()
	}

	t := &turn{o: o, cfg: cfg, session: session, ws: loadWorkingSet(session)}
	session.History = append(session.History, input)

	info, err := t.retrieve(ctx, input.Content)
	if err != nil {
		return nil, t.fail(PhaseRetrieving, err)
	}

	t.system = buildSystemPrompt(promptInput{
		clock:     cfg.clock,
		persona:   session.Persona,
		userName:  cfg.userName,
		documents: t.ws.docs.values(),
		info:      info,
	})
	observability.SetAttributes(span,
		"turn.documents", len(t.ws.docs.order),
		"turn.tools", len(t.ws.tools.order),
	)

	final, err := t.loop(ctx)
	if err != nil {
		return nil, err
	}

	t.ws.tag(&final)
	session.History = append(session.History, final)
	t.out = append(t.out, final)

	if n := t.ws.evict(session, cfg.historyLength); n > 0 {
		o.metrics.Evicted(n)
		o.logger.DebugContext(ctx, "history evicted", "session_id", sessionID, "messages", n)
	}
	t.ws.store(session)

	if err := o.sessions.Save(ctx, session); err != nil {
		return nil, t.fail(PhaseFinal, err)
	}
	observability.SetAttributes(span, "turn.round_trips", t.round+1)
	return t.out, nil
}

func (t *turn) fail(phase Phase, err error) error {
	return &TurnError{SessionID: t.session.ID, Phase: phase, Round: t.round, Cause: err}
}

// retrieve embeds the input once and runs the persona info, tool and
// document lookups concurrently. Tools and documents join the working set;
// persona info is only used for this turn's prompt.
func (t *turn) retrieve(ctx context.Context, content string) ([]models.PersonaInfo, error) {
	embedding, err := llm.EmbedOne(ctx, t.o.llm, content)
	if err != nil {
		return nil, err
	}

	limit := t.cfg.retrievalLimit
	var (
		info  []models.PersonaInfo
		tools []models.ToolDefinition
		docs  []models.Document
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		info, err = t.o.personas.SearchPersonaInfo(gctx, t.session.Persona.ID, content, limit)
		if err != nil {
			return fmt.Errorf("persona info: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tools, err = t.o.tools.Query(gctx, content, limit, embedding)
		if err != nil {
			return fmt.Errorf("tools: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		docs, err = t.o.knowledge.QueryDocuments(gctx, content, limit, embedding)
		if err != nil {
			return fmt.Errorf("documents: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, tool := range tools {
		t.ws.tools.put(tool.Name, tool)
	}
	for _, doc := range docs {
		t.ws.docs.put(doc.ID, doc)
	}
	return info, nil
}

// loop runs model round trips until the model gives a final reply. At
// most recursionLimit+1 round trips are made; the last one has tools
// disabled.
func (t *turn) loop(ctx context.Context) (models.ChatMessage, error) {
	for {
		mode := llm.ToolModeAuto
		if t.round >= t.cfg.recursionLimit {
			mode = llm.ToolModeNone
		}

		resp, err := t.roundTrip(ctx, mode)
		if err != nil {
			t.o.metrics.ModelRoundTrip(outcomeError)
			return models.ChatMessage{}, t.fail(PhaseModelRoundTrip, err)
		}

		switch {
		case mode == llm.ToolModeAuto && resp.ToolCall != nil:
			t.o.metrics.ModelRoundTrip(outcomeToolCall)
			msg, err := t.invoke(ctx, resp.ToolCall)
			if err != nil {
				return models.ChatMessage{}, t.fail(PhaseToolInvocation, err)
			}
			t.emit(msg)

		case strings.TrimSpace(resp.Content) == "":
			t.o.metrics.ModelRoundTrip(outcomeProtocol)
			return models.ChatMessage{}, t.fail(PhaseModelRoundTrip,
				errdefs.Protocol("model returned neither content nor a tool call"))

		case mode == llm.ToolModeAuto && t.cfg.fillers.match(resp.Content):
			t.o.metrics.ModelRoundTrip(outcomeFiller)
			t.emit(models.NewPersonaMessage(resp.Content))

		default:
			t.o.metrics.ModelRoundTrip(outcomeFinal)
			return models.NewPersonaMessage(resp.Content), nil
		}
		t.round++
	}
}

// emit records a message produced mid-turn. Only the final reply is
// tagged with the working set.
func (t *turn) emit(msg models.ChatMessage) {
	t.session.History = append(t.session.History, msg)
	t.out = append(t.out, msg)
}

func (t *turn) roundTrip(ctx context.Context, mode llm.ToolMode) (*llm.ChatResponse, error) {
	rctx, cancel := context.WithTimeout(ctx, t.cfg.requestTimeout)
	defer cancel()

	req := llm.ChatRequest{
		System:   t.system,
		History:  t.session.History,
		ToolMode: mode,
	}
	if mode == llm.ToolModeAuto {
		req.Tools = t.ws.tools.values()
	}
	resp, err := t.o.llm.Chat(rctx, req)
	if err == nil && resp == nil {
		err = errdefs.Protocol("model returned an empty response")
	}
	if err != nil {
		if errors.Is(rctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, errdefs.Backend("llm.chat", "",
				fmt.Errorf("round trip exceeded %s: %w", t.cfg.requestTimeout, context.DeadlineExceeded))
		}
		return nil, err
	}
	return resp, nil
}

// invoke runs a tool call. Argument and sandbox faults become the tool's
// output so the model can react to them; other failures abort the turn.
func (t *turn) invoke(ctx context.Context, call *llm.ToolCall) (models.ChatMessage, error) {
	args := call.Arguments
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}
	output, err := t.o.tools.Execute(ctx, call.Name, args)
	if err != nil {
		switch {
		case errors.Is(err, errdefs.ErrSandboxFault), errors.Is(err, errdefs.ErrInvalid):
			t.o.logger.WarnContext(ctx, "tool fault returned to model",
				"session_id", t.session.ID,
				"tool", call.Name,
				"error", err,
			)
			output = err.Error()
		default:
			return models.ChatMessage{}, err
		}
	}
	return models.NewToolMessage(call.Name, args, output), nil
}
