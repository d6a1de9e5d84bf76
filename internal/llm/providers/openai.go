// Package providers implements the llm contract against concrete backends:
// any OpenAI-compatible endpoint, Anthropic, and Gemini embeddings.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// embedBatchSize caps the inputs sent in one embeddings request.
const embedBatchSize = 256

var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// OpenAIConfig configures an OpenAI-compatible client.
type OpenAIConfig struct {
	APIKey string

	// BaseURL points at any OpenAI-compatible API (e.g. a local server).
	BaseURL string

	ChatModel       string
	CompletionModel string
	EmbeddingModel  string
	MaxTokens       int
}

// OpenAI talks to an OpenAI-compatible API for chat, completion and
// embeddings.
type OpenAI struct {
	client *openai.Client
	cfg    OpenAIConfig
}

var _ llm.Client = (*OpenAI)(nil)

// NewOpenAI creates an OpenAI-compatible client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: API key is required when using the default endpoint")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = openai.GPT3Dot5Turbo
	}
	if cfg.CompletionModel == "" {
		cfg.CompletionModel = cfg.ChatModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.AdaEmbeddingV2)
	}
	config := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	return &OpenAI{client: openai.NewClientWithConfig(config), cfg: cfg}, nil
}

// Chat sends one round trip with the live tool set.
func (p *OpenAI) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	params := openai.ChatCompletionRequest{
		Model:     p.cfg.ChatModel,
		Messages:  p.convertMessages(req.System, req.History),
		MaxTokens: p.cfg.MaxTokens,
	}
	if len(req.Tools) > 0 {
		params.Tools = convertTools(req.Tools)
		params.ToolChoice = string(req.ToolMode)
	}

	resp, err := p.client.CreateChatCompletion(ctx, params)
	if err != nil {
		return nil, backendError("openai.chat", err)
	}
	if len(resp.Choices) == 0 {
		return &llm.ChatResponse{}, nil
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		call := msg.ToolCalls[0].Function
		return &llm.ChatResponse{ToolCall: &llm.ToolCall{Name: call.Name, Arguments: call.Arguments}}, nil
	}
	if msg.FunctionCall != nil && msg.FunctionCall.Name != "" {
		return &llm.ChatResponse{ToolCall: &llm.ToolCall{Name: msg.FunctionCall.Name, Arguments: msg.FunctionCall.Arguments}}, nil
	}
	return &llm.ChatResponse{Content: msg.Content}, nil
}

// Complete answers a single prompt.
func (p *OpenAI) Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.cfg.MaxTokens
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.cfg.CompletionModel,
		Temperature: opts.Temperature,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", backendError("openai.complete", err)
	}
	if len(resp.Choices) == 0 {
		return "", errdefs.Protocol("completion returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Embed embeds texts in batches, preserving input order.
func (p *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		batch := texts[start:end]
		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(p.cfg.EmbeddingModel),
		})
		if err != nil {
			return nil, backendError("openai.embed", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, errdefs.Protocol(fmt.Sprintf("embeddings returned %d vectors for %d inputs", len(resp.Data), len(batch)))
		}
		data := resp.Data
		sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		for _, d := range data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

// convertMessages maps history onto chat roles. A tool message becomes an
// assistant tool call followed by the tool's result.
func (p *OpenAI) convertMessages(system string, history []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for i, msg := range history {
		switch msg.Origin {
		case models.OriginSystem:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case models.OriginUser:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		case models.OriginPersona:
			out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content})
		case models.OriginTool:
			if msg.ToolCall == nil {
				continue
			}
			id := llm.ToolCallID(i)
			out = append(out,
				openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{{
						ID:   id,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      msg.ToolCall.Name,
							Arguments: nonEmptyJSON(msg.ToolCall.Input),
						},
					}},
				},
				openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    msg.ToolCall.Output,
					ToolCallID: id,
				},
			)
		}
	}
	return out
}

func convertTools(tools []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = emptyObjectSchema
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func nonEmptyJSON(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}

// backendError attaches the API's error body to a BackendUnavailable error.
func backendError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return errdefs.Backend(op, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return errdefs.Backend(op, string(reqErr.Body), err)
	}
	return errdefs.Backend(op, "", err)
}
