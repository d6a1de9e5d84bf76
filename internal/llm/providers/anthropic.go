package providers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// AnthropicConfig configures the Anthropic chat backend.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Anthropic implements llm.ChatModel with the Messages API. Anthropic has
// no embeddings endpoint, so pair it with an embedder via llm.Compose.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

var _ llm.ChatModel = (*Anthropic)(nil)

// NewAnthropic creates an Anthropic chat backend.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-20250514"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

func (p *Anthropic) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	system, messages, err := convertAnthropicMessages(req.System, req.History)
	if err != nil {
		return nil, err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := convertAnthropicTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
		if req.ToolMode == llm.ToolModeNone {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		} else {
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, anthropicError("anthropic.chat", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "tool_use":
			args := string(block.Input)
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			return &llm.ChatResponse{ToolCall: &llm.ToolCall{Name: block.Name, Arguments: args}}, nil
		case "text":
			text.WriteString(block.Text)
		}
	}
	return &llm.ChatResponse{Content: text.String()}, nil
}

func (p *Anthropic) Complete(ctx context.Context, prompt string, opts llm.CompleteOptions) (string, error) {
	maxTokens := p.maxTokens
	if opts.MaxTokens > 0 {
		maxTokens = int64(opts.MaxTokens)
	}
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(float64(opts.Temperature)),
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", anthropicError("anthropic.complete", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(text.String()), nil
}

// convertAnthropicMessages folds system messages into the system prompt and
// merges consecutive same-role turns, which the Messages API requires to
// alternate.
func convertAnthropicMessages(system string, history []models.ChatMessage) (string, []anthropic.MessageParam, error) {
	systemParts := []string{}
	if system != "" {
		systemParts = append(systemParts, system)
	}

	type turn struct {
		assistant bool
		blocks    []anthropic.ContentBlockParamUnion
	}
	var turns []turn
	push := func(assistant bool, blocks ...anthropic.ContentBlockParamUnion) {
		if n := len(turns); n > 0 && turns[n-1].assistant == assistant {
			turns[n-1].blocks = append(turns[n-1].blocks, blocks...)
			return
		}
		turns = append(turns, turn{assistant: assistant, blocks: blocks})
	}

	for i, msg := range history {
		switch msg.Origin {
		case models.OriginSystem:
			systemParts = append(systemParts, msg.Content)
		case models.OriginUser:
			push(false, anthropic.NewTextBlock(msg.Content))
		case models.OriginPersona:
			push(true, anthropic.NewTextBlock(msg.Content))
		case models.OriginTool:
			if msg.ToolCall == nil {
				continue
			}
			var input map[string]any
			if err := json.Unmarshal([]byte(nonEmptyJSON(msg.ToolCall.Input)), &input); err != nil {
				input = map[string]any{"raw": msg.ToolCall.Input}
			}
			id := llm.ToolCallID(i)
			push(true, anthropic.NewToolUseBlock(id, input, msg.ToolCall.Name))
			push(false, anthropic.NewToolResultBlock(id, msg.ToolCall.Output, false))
		}
	}

	// The first turn must come from the user.
	if len(turns) > 0 && turns[0].assistant {
		turns = append([]turn{{blocks: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock("(conversation start)")}}}, turns...)
	}

	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		if t.assistant {
			out = append(out, anthropic.NewAssistantMessage(t.blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(t.blocks...))
		}
	}
	return strings.Join(systemParts, "\n\n"), out, nil
}

func convertAnthropicTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if len(params) == 0 {
			params = emptyObjectSchema
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(params, &schema); err != nil {
			return nil, errdefs.Invalid("tool %s: invalid parameter schema: %v", t.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if param.OfTool == nil {
			return nil, errdefs.Invalid("tool %s: missing tool definition", t.Name)
		}
		param.OfTool.Description = anthropic.String(t.Description)
		out = append(out, param)
	}
	return out, nil
}

func anthropicError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		body := apiErr.RawJSON()
		if body == "" {
			body = err.Error()
		}
		return errdefs.Backend(op, body, err)
	}
	return errdefs.Backend(op, err.Error(), err)
}
