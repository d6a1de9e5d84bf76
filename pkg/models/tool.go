package models

import (
	"encoding/json"
	"time"
)

// ToolDefinition is a callable tool stored in the registry.
type ToolDefinition struct {
	// Name is the unique tool name and primary key.
	Name string `json:"name"`

	// VecID keys the tool's description vector. It is never reused.
	VecID string `json:"vec_id"`

	// Description tells the model when to call the tool.
	Description string `json:"description"`

	// Parameters is the JSON Schema of the tool's arguments.
	Parameters json.RawMessage `json:"parameters"`

	// Body is the tool's Go source, declaring an Execute function.
	Body string `json:"body"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone returns a copy that does not share the Parameters buffer.
func (t ToolDefinition) Clone() ToolDefinition {
	out := t
	if t.Parameters != nil {
		out.Parameters = append(json.RawMessage(nil), t.Parameters...)
	}
	return out
}
