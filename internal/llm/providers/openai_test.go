package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/pkg/models"
)

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewOpenAI(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewOpenAI() error = %v", err)
	}
	return p
}

func TestOpenAIChat(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		wantText string
		wantCall *llm.ToolCall
	}{
		{
			name:     "text reply",
			reply:    `{"choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}]}`,
			wantText: "hello",
		},
		{
			name:     "tool call",
			reply:    `{"choices":[{"index":0,"message":{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"get_time","arguments":"{\"zone\":\"UTC\"}"}}]}}]}`,
			wantCall: &llm.ToolCall{Name: "get_time", Arguments: `{"zone":"UTC"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
				if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewDecoder(r.Body).Decode(&got)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.reply))
			})

			resp, err := p.Chat(context.Background(), llm.ChatRequest{
				System:   "be kind",
				History:  []models.ChatMessage{models.NewUserMessage("hi")},
				Tools:    []models.ToolDefinition{{Name: "get_time", Description: "current time"}},
				ToolMode: llm.ToolModeAuto,
			})
			if err != nil {
				t.Fatalf("Chat() error = %v", err)
			}
			if resp.Content != tt.wantText {
				t.Errorf("Content = %q, want %q", resp.Content, tt.wantText)
			}
			if diff := cmp.Diff(tt.wantCall, resp.ToolCall); diff != "" {
				t.Errorf("ToolCall mismatch (-want +got):\n%s", diff)
			}
			if got["tool_choice"] != "auto" {
				t.Errorf("tool_choice = %v, want auto", got["tool_choice"])
			}
			msgs, _ := got["messages"].([]any)
			if len(msgs) != 2 {
				t.Fatalf("sent %d messages, want 2", len(msgs))
			}
		})
	}
}

func TestOpenAIChatErrorBody(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"model overloaded","type":"server_error"}}`))
	})

	_, err := p.Chat(context.Background(), llm.ChatRequest{History: []models.ChatMessage{models.NewUserMessage("hi")}})
	if !errors.Is(err, errdefs.ErrBackendUnavailable) {
		t.Fatalf("error = %v, want backend unavailable", err)
	}
	var e *errdefs.Error
	if !errors.As(err, &e) || !strings.Contains(e.Body, "model overloaded") {
		t.Errorf("error body = %+v, want it to carry the API message", e)
	}
}

func TestOpenAIEmbedOrdersByIndex(t *testing.T) {
	p := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[
			{"object":"embedding","index":1,"embedding":[0,1]},
			{"object":"embedding","index":0,"embedding":[1,0]}
		]}`))
	})

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	want := [][]float32{{1, 0}, {0, 1}}
	if diff := cmp.Diff(want, vecs); diff != "" {
		t.Errorf("Embed() mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenAIConvertToolMessage(t *testing.T) {
	p := &OpenAI{}
	history := []models.ChatMessage{
		models.NewUserMessage("what time is it"),
		models.NewToolMessage("get_time", "", "14:30"),
	}
	msgs := p.convertMessages("", history)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	call := msgs[1]
	if len(call.ToolCalls) != 1 || call.ToolCalls[0].Function.Arguments != "{}" {
		t.Errorf("tool call message = %+v", call)
	}
	if msgs[2].ToolCallID != call.ToolCalls[0].ID || msgs[2].Content != "14:30" {
		t.Errorf("tool result message = %+v", msgs[2])
	}
}

func TestConvertAnthropicMessages(t *testing.T) {
	history := []models.ChatMessage{
		models.NewPersonaMessage("Hi, I'm Ada."),
		models.NewUserMessage("what time is it"),
		models.NewToolMessage("get_time", `{"zone":"UTC"}`, "14:30"),
		models.NewPersonaMessage("It's 14:30."),
		{Origin: models.OriginSystem, Content: "extra"},
	}
	system, msgs, err := convertAnthropicMessages("base", history)
	if err != nil {
		t.Fatalf("convertAnthropicMessages() error = %v", err)
	}
	if system != "base\n\nextra" {
		t.Errorf("system = %q", system)
	}
	// user(start), assistant(greeting), user(question), assistant(tool_use),
	// user(tool_result), assistant(reply)
	wantRoles := []string{"user", "assistant", "user", "assistant", "user", "assistant"}
	if len(msgs) != len(wantRoles) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(wantRoles))
	}
	for i, m := range msgs {
		if string(m.Role) != wantRoles[i] {
			t.Errorf("message %d role = %s, want %s", i, m.Role, wantRoles[i])
		}
	}
}

func TestNewProvidersRequireKeys(t *testing.T) {
	if _, err := NewOpenAI(OpenAIConfig{}); err == nil {
		t.Error("NewOpenAI() without key or endpoint should fail")
	}
	if _, err := NewAnthropic(AnthropicConfig{}); err == nil {
		t.Error("NewAnthropic() without key should fail")
	}
	if _, err := NewGemini(context.Background(), GeminiConfig{}); err == nil {
		t.Error("NewGemini() without key should fail")
	}
}
