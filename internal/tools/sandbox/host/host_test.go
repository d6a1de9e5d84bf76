package host

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/charlotte/internal/datetime"
	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/pkg/models"
)

type personas map[string]models.Persona

func (p personas) GetPersona(_ context.Context, id string) (models.Persona, error) {
	persona, ok := p[id]
	if !ok {
		return models.Persona{}, errdefs.NotFound("persona", id)
	}
	return persona, nil
}

func TestUnwiredCapabilities(t *testing.T) {
	caps := New(context.Background(), "lookup", Dependencies{})

	if _, err := caps.Document("doc-1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Document() error = %v, want ErrUnavailable", err)
	}
	if _, err := caps.SearchDocuments("friday", 3); !errors.Is(err, ErrUnavailable) {
		t.Errorf("SearchDocuments() error = %v, want ErrUnavailable", err)
	}
	if _, err := caps.Persona("p1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Persona() error = %v, want ErrUnavailable", err)
	}
	if caps.Zone() == "" {
		t.Error("Zone() is empty without a configured clock")
	}
}

func TestTimeCapabilities(t *testing.T) {
	now := time.Date(2025, time.January, 24, 19, 30, 0, 0, time.UTC)
	caps := New(context.Background(), "clock", Dependencies{
		Clock: datetime.NewFixedClock(now, "America/New_York"),
	})

	tests := []struct {
		name string
		got  string
		want string
	}{
		{name: "zone", got: caps.Zone(), want: "America/New_York"},
		{name: "format", got: caps.Format(now), want: "Friday, January 24th, 2025 - 14:30"},
		{name: "relative", got: caps.Relative(now.Add(-48 * time.Hour)), want: "2 days ago"},
		{name: "in", got: caps.In(now, "Asia/Tokyo").Format("15:04"), want: "04:30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestPersonaCapability(t *testing.T) {
	caps := New(context.Background(), "who", Dependencies{
		Personas: personas{"p1": {ID: "p1", Name: "Charlotte", Greeting: "Hi!", DialogueExample: "hidden"}},
	})

	p, err := caps.Persona("p1")
	if err != nil {
		t.Fatalf("Persona() error = %v", err)
	}
	if p.Name != "Charlotte" || p.Greeting != "Hi!" {
		t.Errorf("Persona() = %+v", p)
	}
	if _, err := caps.Persona("p2"); !errors.Is(err, errdefs.ErrNotFound) {
		t.Errorf("Persona(p2) error = %v, want not found", err)
	}
}
