package agent

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/haasonsaas/charlotte/pkg/models"
)

func docIDs(docs []models.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func toolNames(tools []models.ToolDefinition) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Name)
	}
	return out
}

func TestEvictPreservesSharedReferences(t *testing.T) {
	session := &models.Session{
		Documents: []models.Document{{ID: "shared"}, {ID: "old-only"}},
		Tools:     []models.ToolDefinition{{Name: "clock"}, {Name: "calendar"}},
		History: []models.ChatMessage{
			{Origin: models.OriginPersona, Content: "older", Documents: []string{"shared", "old-only"}, Tools: []string{"clock"}},
			{Origin: models.OriginUser, Content: "question"},
			{Origin: models.OriginPersona, Content: "newer", Documents: []string{"shared"}, Tools: []string{"calendar"}},
		},
	}
	ws := loadWorkingSet(session)
	if got := ws.docs.count("shared"); got != 2 {
		t.Fatalf("shared has %d references, want 2", got)
	}

	if n := ws.evict(session, 2); n != 1 {
		t.Fatalf("evict() dropped %d messages, want 1", n)
	}
	ws.store(session)

	if diff := cmp.Diff([]string{"shared"}, docIDs(session.Documents)); diff != "" {
		t.Errorf("live documents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"calendar"}, toolNames(session.Tools)); diff != "" {
		t.Errorf("live tools mismatch (-want +got):\n%s", diff)
	}
	if got := ws.docs.count("shared"); got != 1 {
		t.Errorf("shared has %d references after eviction, want 1", got)
	}
	if session.History[0].Content != "question" {
		t.Errorf("oldest message = %q, want %q", session.History[0].Content, "question")
	}
}

func TestEvict(t *testing.T) {
	tests := []struct {
		name    string
		history int
		limit   int
		want    int
	}{
		{name: "under limit", history: 3, limit: 5, want: 0},
		{name: "at limit", history: 5, limit: 5, want: 0},
		{name: "over limit", history: 8, limit: 5, want: 3},
		{name: "no limit", history: 8, limit: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := &models.Session{}
			for i := 0; i < tt.history; i++ {
				session.History = append(session.History, models.NewUserMessage("m"))
			}
			ws := loadWorkingSet(session)
			if got := ws.evict(session, tt.limit); got != tt.want {
				t.Errorf("evict() = %d, want %d", got, tt.want)
			}
			if got := len(session.History); got != tt.history-tt.want {
				t.Errorf("history length = %d, want %d", got, tt.history-tt.want)
			}
		})
	}
}

func TestWorkingSetTagAndRefresh(t *testing.T) {
	session := &models.Session{}
	ws := loadWorkingSet(session)

	ws.docs.put("a", models.Document{ID: "a", Title: "first"})
	ws.docs.put("b", models.Document{ID: "b"})
	ws.docs.put("a", models.Document{ID: "a", Title: "refreshed"})
	ws.tools.put("clock", models.ToolDefinition{Name: "clock"})

	msg := models.NewPersonaMessage("reply")
	ws.tag(&msg)
	if diff := cmp.Diff([]string{"a", "b"}, msg.Documents); diff != "" {
		t.Errorf("tagged documents mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"clock"}, msg.Tools); diff != "" {
		t.Errorf("tagged tools mismatch (-want +got):\n%s", diff)
	}

	ws.store(session)
	if session.Documents[0].Title != "refreshed" {
		t.Errorf("refresh did not replace the snapshot in place: %+v", session.Documents)
	}
	if ws.docs.count("a") != 1 || ws.tools.count("clock") != 1 {
		t.Errorf("tag did not reference the live entries")
	}
}

func TestRefMapReleaseUnknown(t *testing.T) {
	m := newRefMap[int]()
	m.put("x", 1)
	m.ref([]string{"x"})
	if removed := m.release([]string{"missing", "x"}); removed != 1 {
		t.Errorf("release() removed %d, want 1", removed)
	}
	if len(m.ids()) != 0 {
		t.Errorf("ids() = %v, want empty", m.ids())
	}
}
