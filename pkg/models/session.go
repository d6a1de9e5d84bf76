package models

import "time"

// Session is one conversation bound to a persona.
//
// Documents and Tools hold the live working set in insertion order: every
// entry is the latest snapshot referenced by a message still in History.
type Session struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Persona   Persona          `json:"persona"`
	History   []ChatMessage    `json:"history"`
	Documents []Document       `json:"documents,omitempty"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = make([]ChatMessage, len(s.History))
	for i, msg := range s.History {
		out.History[i] = msg.Clone()
	}
	out.Documents = append([]Document(nil), s.Documents...)
	out.Tools = make([]ToolDefinition, len(s.Tools))
	for i, tool := range s.Tools {
		out.Tools[i] = tool.Clone()
	}
	return &out
}

// Info summarizes the session for listings.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		PersonaID:    s.Persona.ID,
		PersonaName:  s.Persona.Name,
		MessageCount: len(s.History),
	}
	if n := len(s.History); n > 0 {
		last := s.History[n-1].Clone()
		info.LastMessage = &last
	}
	return info
}

// SessionInfo is the summary returned by session listings.
type SessionInfo struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	PersonaID    string       `json:"persona_id"`
	PersonaName  string       `json:"persona_name"`
	MessageCount int          `json:"message_count"`
	LastMessage  *ChatMessage `json:"last_message,omitempty"`
}

// SessionReference is the working set a session currently keeps resident.
type SessionReference struct {
	Documents []Document       `json:"documents"`
	Tools     []ToolDefinition `json:"tools"`
}

// SearchResult is one page of a free-text search.
type SearchResult[T any] struct {
	Hits       []T `json:"hits"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}
