// Package llmtest provides a scripted language-model client for tests.
package llmtest

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"unicode"

	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// DefaultDimension is the vector size produced by Fake.Embed.
const DefaultDimension = 64

// Fake replays scripted chat responses and produces bag-of-words
// embeddings, so texts sharing words land close together.
type Fake struct {
	mu sync.Mutex

	// Responses are returned by Chat in order. Once exhausted, Chat
	// returns a fixed final reply.
	Responses []llm.ChatResponse

	// ChatErr, when set, is returned by every Chat call.
	ChatErr error

	// CompleteFunc answers Complete; nil echoes the prompt's first line.
	CompleteFunc func(prompt string, opts llm.CompleteOptions) (string, error)

	// EmbedErr, when set, is returned by every Embed call.
	EmbedErr error

	Dimension int

	requests   []llm.ChatRequest
	embedCalls int
	embedded   []string
}

var _ llm.Client = (*Fake)(nil)

// ToolCall is shorthand for a scripted tool-call response.
func ToolCall(name, args string) llm.ChatResponse {
	return llm.ChatResponse{ToolCall: &llm.ToolCall{Name: name, Arguments: args}}
}

// Text is shorthand for a scripted text response.
func Text(content string) llm.ChatResponse {
	return llm.ChatResponse{Content: content}
}

func (f *Fake) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	req.History = append([]models.ChatMessage(nil), req.History...)
	f.requests = append(f.requests, req)
	if f.ChatErr != nil {
		return nil, f.ChatErr
	}
	if len(f.Responses) == 0 {
		return &llm.ChatResponse{Content: "fake reply"}, nil
	}
	resp := f.Responses[0]
	f.Responses = f.Responses[1:]
	return &resp, nil
}

func (f *Fake) Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error) {
	if f.CompleteFunc != nil {
		return f.CompleteFunc(prompt, opts)
	}
	first, _, _ := strings.Cut(strings.TrimSpace(prompt), "\n")
	return first, nil
}

func (f *Fake) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.embedCalls++
	f.embedded = append(f.embedded, texts...)
	err := f.EmbedErr
	dim := f.Dimension
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if dim <= 0 {
		dim = DefaultDimension
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Vector(text, dim)
	}
	return out, nil
}

// Script replaces the pending responses and clears ChatErr. Use it
// instead of the fields once the fake is shared with other goroutines.
func (f *Fake) Script(responses ...llm.ChatResponse) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Responses = responses
	f.ChatErr = nil
}

// Fail makes every following Chat call return err.
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChatErr = err
}

// Requests returns a copy of every chat request received.
func (f *Fake) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatRequest(nil), f.requests...)
}

// EmbedCalls reports how many times Embed was called.
func (f *Fake) EmbedCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

// Embedded returns every text passed to Embed.
func (f *Fake) Embedded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.embedded...)
}

// Vector hashes each lowercased word of text into one of dim buckets and
// L2-normalizes the result.
func Vector(text string, dim int) []float32 {
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// ErrScripted is a convenience error for failure scripts.
var ErrScripted = errors.New("scripted failure")
