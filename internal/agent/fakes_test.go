package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/charlotte/internal/config"
	"github.com/haasonsaas/charlotte/internal/datetime"
	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/llm/llmtest"
	"github.com/haasonsaas/charlotte/internal/sessions"
	"github.com/haasonsaas/charlotte/pkg/models"
)

type fakeKnowledge struct {
	mu    sync.Mutex
	docs  []models.Document
	err   error
	calls []int
}

func (k *fakeKnowledge) QueryDocuments(ctx context.Context, query string, limit int, embedding []float32) ([]models.Document, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, limit)
	if k.err != nil {
		return nil, k.err
	}
	return append([]models.Document(nil), k.docs...), nil
}

func (k *fakeKnowledge) set(docs ...models.Document) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.docs = docs
}

type toolRun struct {
	Name      string
	Arguments string
}

type fakeTools struct {
	mu      sync.Mutex
	defs    []models.ToolDefinition
	results map[string]string
	errs    map[string]error
	runs    []toolRun
}

func (f *fakeTools) Query(ctx context.Context, text string, k int, embedding []float32) ([]models.ToolDefinition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ToolDefinition(nil), f.defs...), nil
}

func (f *fakeTools) Execute(ctx context.Context, name, arguments string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, toolRun{Name: name, Arguments: arguments})
	if err, ok := f.errs[name]; ok {
		return "", err
	}
	if out, ok := f.results[name]; ok {
		return out, nil
	}
	return "", errdefs.NotFound("tool", name)
}

func (f *fakeTools) executed() []toolRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]toolRun(nil), f.runs...)
}

type fakePersonas struct {
	personas map[string]models.Persona
	info     []models.PersonaInfo
}

func (p *fakePersonas) GetPersona(ctx context.Context, id string) (models.Persona, error) {
	persona, ok := p.personas[id]
	if !ok {
		return models.Persona{}, errdefs.NotFound("persona", id)
	}
	return persona, nil
}

func (p *fakePersonas) SearchPersonaInfo(ctx context.Context, personaID, query string, limit int) ([]models.PersonaInfo, error) {
	var out []models.PersonaInfo
	for _, info := range p.info {
		if info.PersonaID == personaID && len(out) < limit {
			out = append(out, info)
		}
	}
	return out, nil
}

// toolLoopModel asks for a tool on every round trip that allows one and
// answers with text otherwise.
type toolLoopModel struct {
	*llmtest.Fake
}

func (m toolLoopModel) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if _, err := m.Fake.Chat(ctx, req); err != nil {
		return nil, err
	}
	if req.ToolMode == llm.ToolModeAuto {
		return &llm.ChatResponse{ToolCall: &llm.ToolCall{Name: "lookup", Arguments: `{"q":"again"}`}}, nil
	}
	return &llm.ChatResponse{Content: "Here is what I found."}, nil
}

// blockingModel never answers before the context ends.
type blockingModel struct {
	*llmtest.Fake
}

func (m blockingModel) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

var testPersona = models.Persona{
	ID:              "persona-1",
	Name:            "Charlotte",
	Greeting:        "Hello!",
	KeyInfo:         "Charlotte keeps the team calendar.",
	DialogueExample: "<user>: Are you busy?\n<char>: Never too busy for you, <user>.",
}

type harness struct {
	orch      *Orchestrator
	llm       *llmtest.Fake
	knowledge *fakeKnowledge
	tools     *fakeTools
	personas  *fakePersonas
	store     *sessions.MemoryStore
	clock     *datetime.Clock
}

func newHarness(t *testing.T, client llm.Client, chat config.ChatConfig) *harness {
	t.Helper()
	h := &harness{
		knowledge: &fakeKnowledge{},
		tools:     &fakeTools{results: map[string]string{}, errs: map[string]error{}},
		personas: &fakePersonas{
			personas: map[string]models.Persona{testPersona.ID: testPersona},
		},
		store: sessions.NewMemoryStore(),
		clock: datetime.NewFixedClock(time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC), "UTC"),
	}
	if client == nil {
		h.llm = &llmtest.Fake{}
		client = h.llm
	}
	orch, err := New(Config{
		LLM:       client,
		Knowledge: h.knowledge,
		Tools:     h.tools,
		Personas:  h.personas,
		Sessions:  h.store,
		Chat:      chat,
		Clock:     h.clock,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = orch
	return h
}

func (h *harness) session(t *testing.T) *models.Session {
	t.Helper()
	s, err := h.orch.CreateSession(context.Background(), testPersona.ID)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return s
}
