package models

import (
	"errors"
	"fmt"
	"time"
)

// Origin identifies who produced a chat message.
type Origin string

const (
	OriginSystem  Origin = "system"
	OriginPersona Origin = "persona"
	OriginUser    Origin = "user"
	OriginTool    Origin = "tool"
)

// Valid reports whether o is one of the known origins.
func (o Origin) Valid() bool {
	switch o {
	case OriginSystem, OriginPersona, OriginUser, OriginTool:
		return true
	}
	return false
}

// ToolCallRecord captures a single tool invocation and its outcome.
type ToolCallRecord struct {
	Name   string `json:"name"`
	Input  string `json:"input"`  // JSON-encoded arguments
	Output string `json:"output"` // result or fault text
}

// ChatMessage is one entry in a session's history.
type ChatMessage struct {
	Origin    Origin          `json:"origin"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	Documents []string        `json:"documents,omitempty"` // referenced document ids
	Tools     []string        `json:"tools,omitempty"`     // referenced tool names
	ToolCall  *ToolCallRecord `json:"tool_call,omitempty"`
}

// Validate checks the tool-call invariant: tool messages carry a record,
// every other origin must not.
func (m ChatMessage) Validate() error {
	if !m.Origin.Valid() {
		return fmt.Errorf("unknown message origin %q", m.Origin)
	}
	if m.Origin == OriginTool && m.ToolCall == nil {
		return errors.New("tool message requires a tool call record")
	}
	if m.Origin != OriginTool && m.ToolCall != nil {
		return fmt.Errorf("%s message must not carry a tool call record", m.Origin)
	}
	return nil
}

// NewUserMessage builds a user message stamped with the current time.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Origin: OriginUser, Content: content, Timestamp: time.Now()}
}

// NewPersonaMessage builds a persona message stamped with the current time.
func NewPersonaMessage(content string) ChatMessage {
	return ChatMessage{Origin: OriginPersona, Content: content, Timestamp: time.Now()}
}

// NewToolMessage builds a tool-result message for the given invocation.
func NewToolMessage(name, input, output string) ChatMessage {
	return ChatMessage{
		Origin:    OriginTool,
		Timestamp: time.Now(),
		ToolCall:  &ToolCallRecord{Name: name, Input: input, Output: output},
	}
}

// Clone returns a deep copy of the message.
func (m ChatMessage) Clone() ChatMessage {
	out := m
	if m.Documents != nil {
		out.Documents = append([]string(nil), m.Documents...)
	}
	if m.Tools != nil {
		out.Tools = append([]string(nil), m.Tools...)
	}
	if m.ToolCall != nil {
		call := *m.ToolCall
		out.ToolCall = &call
	}
	return out
}
