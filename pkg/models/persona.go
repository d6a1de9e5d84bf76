package models

import (
	"strings"
	"time"
)

// Placeholders substituted in a persona's dialogue example.
const (
	UserPlaceholder = "<user>"
	CharPlaceholder = "<char>"
)

// Persona is the character the assistant plays.
type Persona struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Greeting        string    `json:"greeting"`
	KeyInfo         string    `json:"key_info"`
	DialogueExample string    `json:"dialogue_example"`
	CreatedAt       time.Time `json:"created_at"`
}

// RenderDialogue substitutes the user and persona names into the dialogue example.
func (p Persona) RenderDialogue(userName string) string {
	r := strings.NewReplacer(UserPlaceholder, userName, CharPlaceholder, p.Name)
	return r.Replace(p.DialogueExample)
}

// PersonaInfo is an auxiliary fact about a persona, searchable on its own.
type PersonaInfo struct {
	ID        string    `json:"id"`
	PersonaID string    `json:"persona_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}
