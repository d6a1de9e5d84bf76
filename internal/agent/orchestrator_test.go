package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/haasonsaas/charlotte/internal/config"
	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/llm/llmtest"
	"github.com/haasonsaas/charlotte/pkg/models"
)

func TestChatMeetingRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &llmtest.Fake{Responses: []llm.ChatResponse{
		llmtest.ToolCall("queryCalendar", `{"date":"Friday"}`),
		llmtest.Text("It's at 3pm on Friday."),
	}}
	h := newHarness(t, fake, config.ChatConfig{})
	h.knowledge.set(models.Document{
		ID:        "doc-meeting",
		Title:     "Team sync",
		Summary:   "The weekly team sync.",
		KeyPoints: "- The meeting is on Friday 3pm",
	})
	h.tools.defs = []models.ToolDefinition{{Name: "queryCalendar", Description: "Look up calendar events by date"}}
	h.tools.results["queryCalendar"] = `{"time":"15:00"}`

	session := h.session(t)
	if got := session.History; len(got) != 1 || got[0].Content != "Hello!" || got[0].Origin != models.OriginPersona {
		t.Fatalf("initial history = %+v, want the greeting", got)
	}

	out, err := h.orch.Chat(ctx, session.ID, models.NewUserMessage("What time is the meeting on Friday?"))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("Chat() returned %d messages, want 2: %+v", len(out), out)
	}

	wantCall := &models.ToolCallRecord{Name: "queryCalendar", Input: `{"date":"Friday"}`, Output: `{"time":"15:00"}`}
	if out[0].Origin != models.OriginTool {
		t.Errorf("out[0].Origin = %q, want tool", out[0].Origin)
	}
	if diff := cmp.Diff(wantCall, out[0].ToolCall); diff != "" {
		t.Errorf("tool call record mismatch (-want +got):\n%s", diff)
	}
	if out[1].Origin != models.OriginPersona || out[1].Content != "It's at 3pm on Friday." {
		t.Errorf("final = %+v", out[1])
	}
	if diff := cmp.Diff([]string{"doc-meeting"}, out[1].Documents); diff != "" {
		t.Errorf("final documents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"queryCalendar"}, out[1].Tools); diff != "" {
		t.Errorf("final tools mismatch (-want +got):\n%s", diff)
	}

	if n := fake.EmbedCalls(); n != 1 {
		t.Errorf("Embed called %d times, want 1", n)
	}
	reqs := fake.Requests()
	if len(reqs) != 2 {
		t.Fatalf("round trips = %d, want 2", len(reqs))
	}
	if !strings.Contains(reqs[0].System, "ID: doc-meeting") || !strings.Contains(reqs[0].System, "Friday 3pm") {
		t.Errorf("system prompt does not carry the document:\n%s", reqs[0].System)
	}
	if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Name != "queryCalendar" {
		t.Errorf("offered tools = %+v", reqs[0].Tools)
	}
	// The second round trip sees the tool result.
	last := reqs[1].History[len(reqs[1].History)-1]
	if last.ToolCall == nil || last.ToolCall.Output != `{"time":"15:00"}` {
		t.Errorf("second round trip history ends with %+v", last)
	}

	history, err := h.orch.GetHistory(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetHistory() error = %v", err)
	}
	origins := make([]models.Origin, 0, len(history))
	for _, msg := range history {
		origins = append(origins, msg.Origin)
	}
	wantOrigins := []models.Origin{models.OriginPersona, models.OriginUser, models.OriginTool, models.OriginPersona}
	if diff := cmp.Diff(wantOrigins, origins); diff != "" {
		t.Errorf("history origins mismatch (-want +got):\n%s", diff)
	}

	ref, err := h.orch.GetSessionReference(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSessionReference() error = %v", err)
	}
	if len(ref.Documents) != 1 || ref.Documents[0].ID != "doc-meeting" {
		t.Errorf("reference documents = %+v", ref.Documents)
	}
	if len(ref.Tools) != 1 || ref.Tools[0].Name != "queryCalendar" {
		t.Errorf("reference tools = %+v", ref.Tools)
	}
}

func TestChatRecursionBound(t *testing.T) {
	for _, limit := range []int{1, 3, 5} {
		t.Run(fmt.Sprintf("limit_%d", limit), func(t *testing.T) {
			fake := &llmtest.Fake{}
			h := newHarness(t, toolLoopModel{fake}, config.ChatConfig{RecursionLimit: limit})
			h.tools.defs = []models.ToolDefinition{{Name: "lookup", Description: "Look things up"}}
			h.tools.results["lookup"] = "nothing"
			session := h.session(t)

			out, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("find it"))
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}

			reqs := fake.Requests()
			if len(reqs) != limit+1 {
				t.Fatalf("round trips = %d, want %d", len(reqs), limit+1)
			}
			for i, req := range reqs[:limit] {
				if req.ToolMode != llm.ToolModeAuto {
					t.Errorf("round trip %d mode = %q, want auto", i, req.ToolMode)
				}
			}
			final := reqs[limit]
			if final.ToolMode != llm.ToolModeNone {
				t.Errorf("final round trip mode = %q, want none", final.ToolMode)
			}
			if len(final.Tools) != 0 {
				t.Errorf("final round trip offered %d tools", len(final.Tools))
			}
			if len(out) != limit+1 {
				t.Errorf("output has %d messages, want %d", len(out), limit+1)
			}
			if got := len(h.tools.executed()); got != limit {
				t.Errorf("tool executions = %d, want %d", got, limit)
			}
		})
	}
}

func TestChatFillerAbsorption(t *testing.T) {
	tests := []struct {
		name    string
		fillers []string
		first   string
		wantOut int
	}{
		{name: "exact phrase", first: "let me check", wantOut: 2},
		{name: "case and substring", first: "Hmm, LET ME CHECK that for you", wantOut: 2},
		{name: "not a filler", first: "It is sunny.", wantOut: 1},
		{name: "configured phrase", fillers: []string{"hold on"}, first: "Hold on a second", wantOut: 2},
		{name: "default phrase replaced", fillers: []string{"hold on"}, first: "let me check", wantOut: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &llmtest.Fake{Responses: []llm.ChatResponse{
				llmtest.Text(tt.first),
				llmtest.Text("It is sunny."),
			}}
			h := newHarness(t, fake, config.ChatConfig{Fillers: tt.fillers})
			session := h.session(t)

			out, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("How is the weather?"))
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if len(out) != tt.wantOut {
				t.Fatalf("output = %+v, want %d messages", out, tt.wantOut)
			}
			if out[0].Content != tt.first {
				t.Errorf("out[0].Content = %q, want %q", out[0].Content, tt.first)
			}
			if tt.wantOut == 2 {
				if out[0].Origin != models.OriginPersona {
					t.Errorf("filler origin = %q, want persona", out[0].Origin)
				}
				if len(fake.Requests()) != 2 {
					t.Errorf("round trips = %d, want 2", len(fake.Requests()))
				}
			}
		})
	}
}

func TestChatFillerAtLimitIsFinal(t *testing.T) {
	fake := &llmtest.Fake{Responses: []llm.ChatResponse{
		llmtest.Text("just a moment"),
		llmtest.Text("just a moment"),
	}}
	h := newHarness(t, fake, config.ChatConfig{RecursionLimit: 1})
	session := h.session(t)

	out, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("anything new?"))
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if len(out) != 2 || len(fake.Requests()) != 2 {
		t.Fatalf("out = %+v after %d round trips", out, len(fake.Requests()))
	}
}

func TestChatProtocolViolation(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		resp  llm.ChatResponse
	}{
		{name: "empty response", resp: llm.ChatResponse{}},
		{name: "whitespace content", resp: llmtest.Text("   ")},
		{name: "tool call with tools disabled", limit: 1, resp: llmtest.ToolCall("lookup", "{}")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := []llm.ChatResponse{tt.resp}
			if tt.limit > 0 {
				responses = []llm.ChatResponse{llmtest.ToolCall("lookup", "{}"), tt.resp}
			}
			fake := &llmtest.Fake{Responses: responses}
			h := newHarness(t, fake, config.ChatConfig{RecursionLimit: tt.limit})
			h.tools.results["lookup"] = "ok"
			session := h.session(t)

			_, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("hi"))
			if !errors.Is(err, errdefs.ErrProtocolViolation) {
				t.Fatalf("Chat() error = %v, want ErrProtocolViolation", err)
			}
			var turnErr *TurnError
			if !errors.As(err, &turnErr) || turnErr.Phase != PhaseModelRoundTrip {
				t.Errorf("error = %#v, want a TurnError at %s", err, PhaseModelRoundTrip)
			}

			history, err := h.orch.GetHistory(context.Background(), session.ID)
			if err != nil {
				t.Fatal(err)
			}
			if len(history) != 1 {
				t.Errorf("failed turn left %d messages in history, want 1", len(history))
			}
		})
	}
}

func TestChatRoundTripTimeout(t *testing.T) {
	fake := &llmtest.Fake{}
	h := newHarness(t, blockingModel{fake}, config.ChatConfig{RequestTimeout: 20 * time.Millisecond})
	session := h.session(t)

	_, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("hello?"))
	if !errors.Is(err, errdefs.ErrBackendUnavailable) {
		t.Errorf("Chat() error = %v, want ErrBackendUnavailable", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Chat() error = %v, want it to wrap context.DeadlineExceeded", err)
	}
}

func TestChatToolFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantOutput string
		wantErr    error
	}{
		{name: "sandbox fault is returned in band", err: errdefs.Sandbox("lookup", errors.New("boom")), wantOutput: "boom"},
		{name: "invalid arguments are returned in band", err: errdefs.Invalid("argument %q is required", "q"), wantOutput: `argument "q" is required`},
		{name: "unknown tool aborts", err: errdefs.NotFound("tool", "lookup"), wantErr: errdefs.ErrNotFound},
		{name: "backend failure aborts", err: errdefs.Backend("textindex.get", "", errors.New("disk")), wantErr: errdefs.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &llmtest.Fake{Responses: []llm.ChatResponse{
				llmtest.ToolCall("lookup", `{"q":"x"}`),
				llmtest.Text("Sorry, that did not work."),
			}}
			h := newHarness(t, fake, config.ChatConfig{})
			h.tools.errs["lookup"] = tt.err
			session := h.session(t)

			out, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("look it up"))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Chat() error = %v, want %v", err, tt.wantErr)
				}
				var turnErr *TurnError
				if !errors.As(err, &turnErr) || turnErr.Phase != PhaseToolInvocation {
					t.Errorf("error = %#v, want a TurnError at %s", err, PhaseToolInvocation)
				}
				return
			}
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if len(out) != 2 || out[0].ToolCall == nil {
				t.Fatalf("out = %+v", out)
			}
			if !strings.Contains(out[0].ToolCall.Output, tt.wantOutput) {
				t.Errorf("tool output = %q, want it to contain %q", out[0].ToolCall.Output, tt.wantOutput)
			}
		})
	}
}

func TestChatEmptyArgumentsDefaultToObject(t *testing.T) {
	fake := &llmtest.Fake{Responses: []llm.ChatResponse{
		llmtest.ToolCall("now", ""),
		llmtest.Text("done"),
	}}
	h := newHarness(t, fake, config.ChatConfig{})
	h.tools.results["now"] = "09:30"
	session := h.session(t)

	if _, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("what time is it")); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	runs := h.tools.executed()
	if len(runs) != 1 || runs[0].Arguments != "{}" {
		t.Errorf("runs = %+v, want one run with {}", runs)
	}
}

func TestChatInput(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, config.ChatConfig{})
	session := h.session(t)

	if _, err := h.orch.Chat(ctx, session.ID, models.ChatMessage{Content: "  "}); !errors.Is(err, errdefs.ErrInvalid) {
		t.Errorf("blank input error = %v, want ErrInvalid", err)
	}
	if _, err := h.orch.Chat(ctx, "missing", models.NewUserMessage("hi")); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("unknown session error = %v, want ErrNotFound", err)
	}

	// References supplied by the caller are not trusted.
	input := models.ChatMessage{Content: "hi", Documents: []string{"forged"}, Tools: []string{"forged"}}
	if _, err := h.orch.Chat(ctx, session.ID, input); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	history, _ := h.orch.GetHistory(ctx, session.ID)
	got := history[1]
	if got.Origin != models.OriginUser || got.Timestamp.IsZero() || got.Documents != nil || got.Tools != nil {
		t.Errorf("stored input = %+v", got)
	}
}

func TestChatRetrievalUsesLimit(t *testing.T) {
	h := newHarness(t, nil, config.ChatConfig{RetrievalLimit: 4})
	h.personas.info = []models.PersonaInfo{
		{ID: "i1", PersonaID: testPersona.ID, Content: "Charlotte likes tea."},
		{ID: "i2", PersonaID: "someone-else", Content: "Bob likes coffee."},
	}
	session := h.session(t)

	if _, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("what do you drink?")); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if diff := cmp.Diff([]int{4}, h.knowledge.calls); diff != "" {
		t.Errorf("document retrieval limits mismatch (-want +got):\n%s", diff)
	}
	system := h.llm.Requests()[0].System
	if !strings.Contains(system, "Charlotte likes tea.") {
		t.Errorf("system prompt is missing persona info:\n%s", system)
	}
	if strings.Contains(system, "Bob likes coffee.") {
		t.Errorf("system prompt carries another persona's info:\n%s", system)
	}
}

func TestChatRetrievalFailure(t *testing.T) {
	h := newHarness(t, nil, config.ChatConfig{})
	h.knowledge.err = errdefs.Backend("vectorstore.search", "down", errors.New("connection refused"))
	session := h.session(t)

	_, err := h.orch.Chat(context.Background(), session.ID, models.NewUserMessage("hi"))
	if !errors.Is(err, errdefs.ErrBackendUnavailable) {
		t.Fatalf("Chat() error = %v, want ErrBackendUnavailable", err)
	}
	var turnErr *TurnError
	if !errors.As(err, &turnErr) || turnErr.Phase != PhaseRetrieving {
		t.Errorf("error = %#v, want a TurnError at %s", err, PhaseRetrieving)
	}
	if len(h.llm.Requests()) != 0 {
		t.Errorf("model was called after a failed retrieval")
	}
}

func TestChatEvictsHistory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, config.ChatConfig{HistoryLength: 4})
	session := h.session(t)

	h.knowledge.set(models.Document{ID: "doc-a", Title: "A"})
	for i := 0; i < 3; i++ {
		if _, err := h.orch.Chat(ctx, session.ID, models.NewUserMessage(fmt.Sprintf("turn %d", i))); err != nil {
			t.Fatalf("Chat(%d) error = %v", i, err)
		}
		h.knowledge.set()
	}

	history, err := h.orch.GetHistory(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 4 {
		t.Fatalf("history has %d messages, want 4", len(history))
	}
	if history[0].Content != "turn 1" {
		t.Errorf("oldest surviving message = %q, want %q", history[0].Content, "turn 1")
	}
	ref, err := h.orch.GetSessionReference(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(ref.Documents) != 1 || ref.Documents[0].ID != "doc-a" {
		t.Errorf("live documents = %+v, want doc-a kept by surviving replies", ref.Documents)
	}
}

func TestChatSerializesOneSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, config.ChatConfig{HistoryLength: 100})
	session := h.session(t)

	const turns = 8
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := h.orch.Chat(ctx, session.ID, models.NewUserMessage(fmt.Sprintf("message %d", i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("Chat() error = %v", err)
	}

	history, err := h.orch.GetHistory(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1+2*turns {
		t.Fatalf("history has %d messages, want %d", len(history), 1+2*turns)
	}
	for i := 1; i < len(history); i += 2 {
		if history[i].Origin != models.OriginUser || history[i+1].Origin != models.OriginPersona {
			t.Errorf("messages %d and %d are %s, %s; turns interleaved", i, i+1, history[i].Origin, history[i+1].Origin)
		}
	}
}

func TestSessionOperations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil, config.ChatConfig{})
	h.personas.personas["persona-2"] = models.Persona{ID: "persona-2", Name: "Quiet"}

	if _, err := h.orch.CreateSession(ctx, "nobody"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("CreateSession(unknown) error = %v, want ErrNotFound", err)
	}

	first := h.session(t)
	second := h.session(t)
	quiet, err := h.orch.CreateSession(ctx, "persona-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(quiet.History) != 0 {
		t.Errorf("persona without greeting starts with %d messages", len(quiet.History))
	}

	list, err := h.orch.ListPersonaSessions(ctx, testPersona.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got := sessionIDs(list); !cmp.Equal(got, []string{first.ID, second.ID}) && !cmp.Equal(got, []string{second.ID, first.ID}) {
		t.Errorf("ListPersonaSessions() = %v", got)
	}
	all, err := h.orch.ListAllSessions(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("ListAllSessions() returned %d sessions, want 3", len(all))
	}

	info, err := h.orch.GetSessionInfo(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.PersonaName != "Charlotte" || info.MessageCount != 1 || info.LastMessage == nil || info.LastMessage.Content != "Hello!" {
		t.Errorf("GetSessionInfo() = %+v", info)
	}

	ref, err := h.orch.GetSessionReference(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Documents == nil || ref.Tools == nil || len(ref.Documents)+len(ref.Tools) != 0 {
		t.Errorf("fresh session reference = %+v, want empty non-nil lists", ref)
	}

	if err := h.orch.RemoveSession(ctx, first.ID); err != nil {
		t.Fatalf("RemoveSession() error = %v", err)
	}
	if _, err := h.orch.GetSession(ctx, first.ID); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("GetSession(removed) error = %v, want ErrNotFound", err)
	}
	if err := h.orch.RemoveSession(ctx, first.ID); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("second RemoveSession() error = %v, want ErrNotFound", err)
	}
}

func TestUpdateChatConfig(t *testing.T) {
	ctx := context.Background()
	fake := &llmtest.Fake{}
	h := newHarness(t, toolLoopModel{fake}, config.ChatConfig{RecursionLimit: 3})
	h.tools.results["lookup"] = "nothing"
	session := h.session(t)

	h.orch.UpdateChatConfig(config.ChatConfig{RecursionLimit: 1, UserName: "Sam"})

	if _, err := h.orch.Chat(ctx, session.ID, models.NewUserMessage("find it")); err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	reqs := fake.Requests()
	if len(reqs) != 2 {
		t.Errorf("round trips after reload = %d, want 2", len(reqs))
	}
	if !strings.Contains(reqs[0].System, "Never too busy for you, Sam.") {
		t.Errorf("system prompt does not use the reloaded user name:\n%s", reqs[0].System)
	}
	if !strings.HasPrefix(reqs[0].System, h.clock.Header()) {
		t.Errorf("reload replaced the configured clock")
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New(Config{}) succeeded, want an error")
	}
}

func sessionIDs(list []models.SessionInfo) []string {
	out := make([]string, 0, len(list))
	for _, info := range list {
		out = append(out, info.ID)
	}
	return out
}
