package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/charlotte/internal/datetime"
	"github.com/haasonsaas/charlotte/pkg/models"
)

func TestBuildSystemPrompt(t *testing.T) {
	clock := datetime.NewFixedClock(time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC), "UTC")
	in := promptInput{
		clock:    clock,
		persona:  testPersona,
		userName: "Sam",
		documents: []models.Document{{
			ID:        "doc-1",
			Title:     "Team sync",
			Summary:   "Weekly sync.",
			KeyPoints: "- Friday 3pm",
		}},
		info: []models.PersonaInfo{{Content: "Charlotte likes tea."}},
	}
	prompt := buildSystemPrompt(in)

	ordered := []string{
		clock.Header(),
		"\"\"\"\nID: doc-1\nTitle: Team sync\nSummary: Weekly sync.\nKey Points:\n- Friday 3pm\n\"\"\"",
		"Below describes a character called Charlotte:\nCharlotte keeps the team calendar.\nCharlotte likes tea.",
		"Sam: Are you busy?\nCharlotte: Never too busy for you, Sam.",
		"Play the character Charlotte precisely",
	}
	last := -1
	for _, part := range ordered {
		i := strings.Index(prompt, part)
		if i < 0 {
			t.Fatalf("prompt is missing %q:\n%s", part, prompt)
		}
		if i <= last {
			t.Errorf("%q is out of order:\n%s", part, prompt)
		}
		last = i
	}
	for _, placeholder := range []string{models.UserPlaceholder, models.CharPlaceholder} {
		if strings.Contains(prompt, placeholder) {
			t.Errorf("prompt still contains %s", placeholder)
		}
	}
}

func TestBuildSystemPromptOmitsEmptySections(t *testing.T) {
	clock := datetime.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "UTC")
	persona := models.Persona{Name: "Plain"}
	prompt := buildSystemPrompt(promptInput{clock: clock, persona: persona, userName: "User"})

	if strings.Contains(prompt, "triple quotes") {
		t.Errorf("prompt has a documents section without documents:\n%s", prompt)
	}
	if strings.Contains(prompt, "dialogue example") {
		t.Errorf("prompt has a dialogue section without an example:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Below describes a character called Plain:") {
		t.Errorf("prompt is missing the identity section:\n%s", prompt)
	}
}
