package persona

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/storage"
	"github.com/haasonsaas/charlotte/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	s, err := New(ctx, Config{DB: db})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func charlotte() models.Persona {
	return models.Persona{
		Name:            "Charlotte",
		Greeting:        "Hi! I'm Charlotte. How can I help?",
		KeyInfo:         "Charlotte is a cheerful office assistant.",
		DialogueExample: "<user>: Hello\n<char>: Hi <user>!",
	}
}

func TestCreateAndGetPersona(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreatePersona(ctx, charlotte())
	if err != nil {
		t.Fatalf("CreatePersona() error = %v", err)
	}
	if created.ID == "" || created.CreatedAt.IsZero() {
		t.Fatalf("CreatePersona() did not assign id/time: %+v", created)
	}
	got, err := s.GetPersona(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetPersona() error = %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("GetPersona() mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.CreatePersona(ctx, created); !errors.Is(err, errdefs.ErrDuplicateName) {
		t.Errorf("CreatePersona(existing id) error = %v, want duplicate", err)
	}
	if _, err := s.GetPersona(ctx, "missing"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("GetPersona(missing) error = %v, want not found", err)
	}
}

func TestCreatePersonaValidation(t *testing.T) {
	s := newTestStore(t)
	p := charlotte()
	p.Name = "  "
	if _, err := s.CreatePersona(context.Background(), p); !errors.Is(err, errdefs.ErrInvalid) {
		t.Fatalf("CreatePersona() error = %v, want invalid", err)
	}
}

func TestUpdatePersona(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created, err := s.CreatePersona(ctx, charlotte())
	if err != nil {
		t.Fatal(err)
	}

	edit := created
	edit.Greeting = "Good morning!"
	edit.CreatedAt = created.CreatedAt.AddDate(1, 0, 0)
	updated, err := s.UpdatePersona(ctx, edit)
	if err != nil {
		t.Fatalf("UpdatePersona() error = %v", err)
	}
	if updated.Greeting != "Good morning!" || !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("UpdatePersona() = %+v", updated)
	}

	edit.ID = "missing"
	if _, err := s.UpdatePersona(ctx, edit); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("UpdatePersona(missing) error = %v, want not found", err)
	}
}

func TestPersonaInfo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, err := s.CreatePersona(ctx, charlotte())
	if err != nil {
		t.Fatal(err)
	}
	b := charlotte()
	b.Name = "Bob"
	b, err = s.CreatePersona(ctx, b)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.AddPersonaInfo(ctx, a.ID, "Charlotte loves jazz music", "Charlotte works on the fourth floor"); err != nil {
		t.Fatalf("AddPersonaInfo() error = %v", err)
	}
	if _, err := s.AddPersonaInfo(ctx, b.ID, "Bob loves jazz too"); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		personaID string
		query     string
		limit     int
		want      []string
	}{
		{name: "filtered by persona", personaID: a.ID, query: "jazz", limit: 10, want: []string{"Charlotte loves jazz music"}},
		{name: "other persona", personaID: b.ID, query: "jazz", limit: 10, want: []string{"Bob loves jazz too"}},
		{name: "no match", personaID: a.ID, query: "football", limit: 10, want: []string{}},
		{name: "zero limit", personaID: a.ID, query: "jazz", limit: 0, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SearchPersonaInfo(ctx, tt.personaID, tt.query, tt.limit)
			if err != nil {
				t.Fatalf("SearchPersonaInfo() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, contents(got)); diff != "" {
				t.Errorf("SearchPersonaInfo() mismatch (-want +got):\n%s", diff)
			}
		})
	}

	list, err := s.ListPersonaInfo(ctx, a.ID, 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Hits) != 2 {
		t.Fatalf("ListPersonaInfo() = %d entries, want 2", len(list.Hits))
	}
	if err := s.DeletePersonaInfo(ctx, list.Hits[0].ID); err != nil {
		t.Fatalf("DeletePersonaInfo() error = %v", err)
	}
	list, _ = s.ListPersonaInfo(ctx, a.ID, 1, 10)
	if diff := cmp.Diff([]string{"Charlotte works on the fourth floor"}, contents(list.Hits)); diff != "" {
		t.Errorf("after delete (-want +got):\n%s", diff)
	}

	if _, err := s.AddPersonaInfo(ctx, "missing", "fact"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("AddPersonaInfo(missing persona) error = %v, want not found", err)
	}
	if _, err := s.AddPersonaInfo(ctx, a.ID, " "); !errors.Is(err, errdefs.ErrInvalid) {
		t.Errorf("AddPersonaInfo(empty) error = %v, want invalid", err)
	}
}

func TestDeletePersonaRemovesInfo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, err := s.CreatePersona(ctx, charlotte())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddPersonaInfo(ctx, p.ID, "Charlotte loves jazz"); err != nil {
		t.Fatal(err)
	}

	if err := s.DeletePersona(ctx, p.ID); err != nil {
		t.Fatalf("DeletePersona() error = %v", err)
	}
	if _, err := s.GetPersona(ctx, p.ID); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("GetPersona() after delete error = %v", err)
	}
	list, err := s.ListPersonaInfo(ctx, p.ID, 1, 10)
	if err != nil || len(list.Hits) != 0 {
		t.Errorf("ListPersonaInfo() after delete = %v, %v", list.Hits, err)
	}
	if err := s.DeletePersona(ctx, p.ID); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("DeletePersona() twice error = %v, want not found", err)
	}
}

func TestListAndSearchPersonas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"Charlotte", "Bob", "Alice"} {
		p := charlotte()
		p.Name = name
		p.KeyInfo = name + " is a helper."
		if _, err := s.CreatePersona(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListPersonas(ctx, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if list.TotalPages != 2 || len(list.Hits) != 1 || list.Hits[0].Name != "Alice" {
		t.Errorf("ListPersonas(page 2) = %+v", list)
	}

	res, err := s.SearchPersonas(ctx, "bob", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Hits) != 1 || res.Hits[0].Name != "Bob" {
		t.Errorf("SearchPersonas() = %+v", res.Hits)
	}
}

func contents(infos []models.PersonaInfo) []string {
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.Content)
	}
	return out
}
