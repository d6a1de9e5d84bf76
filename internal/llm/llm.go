// Package llm defines the language-model contract the orchestrator and the
// stores depend on. Concrete backends live in the providers subpackage.
package llm

import (
	"context"
	"fmt"

	"github.com/haasonsaas/charlotte/pkg/models"
)

// ToolMode controls whether the model may call tools on a chat request.
type ToolMode string

const (
	ToolModeAuto ToolMode = "auto"
	ToolModeNone ToolMode = "none"
)

// ChatRequest is one model round trip.
type ChatRequest struct {
	// System is the assembled system prompt.
	System string

	// History is the conversation so far, oldest first.
	History []models.ChatMessage

	// Tools are offered to the model as callable functions.
	Tools []models.ToolDefinition

	ToolMode ToolMode
}

// ToolCall is the model's request to run a tool.
type ToolCall struct {
	Name      string
	Arguments string // JSON object
}

// ChatResponse carries exactly one of Content or ToolCall on success.
// Providers return whatever the backend sent; callers enforce the contract.
type ChatResponse struct {
	Content  string
	ToolCall *ToolCall
}

// CompleteOptions tunes a single-prompt completion.
type CompleteOptions struct {
	Temperature float32
	MaxTokens   int
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel answers chat requests and single prompts.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
	Complete(ctx context.Context, prompt string, opts CompleteOptions) (string, error)
}

// Client is the full language-model surface.
type Client interface {
	Embedder
	ChatModel
}

type composite struct {
	ChatModel
	Embedder
}

// Compose pairs a chat backend with a separate embedding backend.
func Compose(chat ChatModel, embedder Embedder) Client {
	return composite{ChatModel: chat, Embedder: embedder}
}

// EmbedOne embeds a single text.
func EmbedOne(ctx context.Context, e Embedder, text string) ([]float32, error) {
	vecs, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 input", len(vecs))
	}
	return vecs[0], nil
}

// ToolCallID derives a stable call id for the i-th tool message in a
// history. Backends that pair calls with results by id need one; history
// does not store them.
func ToolCallID(i int) string {
	return fmt.Sprintf("call_%d", i)
}
