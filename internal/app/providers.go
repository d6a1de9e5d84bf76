package app

import (
	"context"
	"fmt"

	"github.com/haasonsaas/charlotte/internal/config"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/internal/llm/providers"
)

// NewLLM builds the configured chat backend and pairs it with the
// configured embedder.
func NewLLM(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "anthropic":
		chat, err := providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			BaseURL:   cfg.Anthropic.BaseURL,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, err
		}
		return llm.Compose(chat, embedder), nil
	case "openai", "":
		chat, err := providers.NewOpenAI(openAIConfig(cfg))
		if err != nil {
			return nil, err
		}
		return llm.Compose(chat, embedder), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func newEmbedder(ctx context.Context, cfg config.LLMConfig) (llm.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "gemini":
		return providers.NewGemini(ctx, providers.GeminiConfig{
			APIKey:    cfg.Embedding.APIKey,
			Model:     cfg.Embedding.Model,
			Dimension: cfg.Embedding.Dimension,
		})
	case "openai", "":
		oc := openAIConfig(cfg)
		if cfg.Embedding.APIKey != "" {
			oc.APIKey = cfg.Embedding.APIKey
		}
		if cfg.Embedding.Endpoint != "" {
			oc.BaseURL = cfg.Embedding.Endpoint
		}
		oc.EmbeddingModel = cfg.Embedding.Model
		return providers.NewOpenAI(oc)
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
}

func openAIConfig(cfg config.LLMConfig) providers.OpenAIConfig {
	return providers.OpenAIConfig{
		APIKey:          cfg.APIKey,
		BaseURL:         cfg.Endpoint,
		ChatModel:       cfg.ChatModel,
		CompletionModel: cfg.CompletionModel,
		EmbeddingModel:  cfg.Embedding.Model,
		MaxTokens:       cfg.MaxTokens,
	}
}

func chatModel(cfg config.LLMConfig) string {
	if cfg.Provider == "anthropic" {
		return cfg.Anthropic.Model
	}
	return cfg.ChatModel
}
