package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/storage"
	"github.com/haasonsaas/charlotte/pkg/models"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := NewSQLiteStore(ctx, db)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	return s
}

func testSession(id, personaID string, created time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		CreatedAt: created,
		Persona:   models.Persona{ID: personaID, Name: "Charlotte", Greeting: "Hi!"},
		History: []models.ChatMessage{
			{Origin: models.OriginPersona, Content: "Hi!"},
			{Origin: models.OriginUser, Content: "Any meetings?", Documents: []string{"doc-1"}},
			{Origin: models.OriginTool, ToolCall: &models.ToolCallRecord{Name: "queryCalendar", Input: `{}`, Output: "none"}},
		},
		Documents: []models.Document{{ID: "doc-1", Title: "Calendar"}},
		Tools:     []models.ToolDefinition{{Name: "queryCalendar", Parameters: json.RawMessage(`{"type":"object"}`)}},
	}
}

func TestStores(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Store { return newSQLiteStore(t) },
	}
	base := time.Date(2025, 1, 24, 14, 30, 0, 0, time.UTC)

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := newStore(t)

			first := testSession("s-2", "p-1", base)
			second := testSession("s-1", "p-2", base.Add(time.Minute))
			third := testSession("s-3", "p-1", base.Add(2*time.Minute))
			for _, session := range []*models.Session{third, first, second} {
				if err := s.Save(ctx, session); err != nil {
					t.Fatalf("Save() error = %v", err)
				}
			}

			got, err := s.Get(ctx, "s-2")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if diff := cmp.Diff(first, got); diff != "" {
				t.Errorf("Get() mismatch (-want +got):\n%s", diff)
			}

			all, err := s.List(ctx, "")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"s-2", "s-1", "s-3"}, ids(all)); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}
			byPersona, err := s.List(ctx, "p-1")
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff([]string{"s-2", "s-3"}, ids(byPersona)); diff != "" {
				t.Errorf("List(p-1) mismatch (-want +got):\n%s", diff)
			}

			first.History = first.History[:1]
			if err := s.Save(ctx, first); err != nil {
				t.Fatal(err)
			}
			got, _ = s.Get(ctx, "s-2")
			if len(got.History) != 1 {
				t.Errorf("Save() did not replace the snapshot: %d messages", len(got.History))
			}

			if err := s.Delete(ctx, "s-2"); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if _, err := s.Get(ctx, "s-2"); !errors.Is(err, errdefs.ErrNotFound) {
				t.Errorf("Get() after delete error = %v, want not found", err)
			}
			if err := s.Delete(ctx, "s-2"); !errors.Is(err, errdefs.ErrNotFound) {
				t.Errorf("Delete() twice error = %v, want not found", err)
			}
		})
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	session := testSession("s-1", "p-1", time.Now())
	if err := s.Save(ctx, session); err != nil {
		t.Fatal(err)
	}
	session.History[0].Content = "mutated"

	got, _ := s.Get(ctx, "s-1")
	got.History[1].Documents[0] = "mutated"
	again, _ := s.Get(ctx, "s-1")
	if again.History[0].Content != "Hi!" || again.History[1].Documents[0] != "doc-1" {
		t.Errorf("store shares memory with callers: %+v", again.History)
	}
}

func TestSaveRequiresID(t *testing.T) {
	for name, s := range map[string]Store{"memory": NewMemoryStore(), "sqlite": newSQLiteStore(t)} {
		if err := s.Save(context.Background(), &models.Session{}); err == nil {
			t.Errorf("%s: Save() without id succeeded", name)
		}
	}
}

func ids(sessions []*models.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.ID)
	}
	return out
}
