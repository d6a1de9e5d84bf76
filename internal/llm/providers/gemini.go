package providers

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
)

// GeminiConfig configures the Gemini embedding backend.
type GeminiConfig struct {
	APIKey    string
	Model     string
	Dimension int
}

// Gemini embeds text with the Gemini API.
type Gemini struct {
	client    *genai.Client
	model     string
	dimension int32
}

var _ llm.Embedder = (*Gemini)(nil)

// NewGemini creates a Gemini embedder.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-004"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: failed to create client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, dimension: int32(cfg.Dimension)}, nil
}

func (g *Gemini) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, text := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
		}
		var cfg *genai.EmbedContentConfig
		if g.dimension > 0 {
			cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(g.dimension)}
		}
		resp, err := g.client.Models.EmbedContent(ctx, g.model, contents, cfg)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, errdefs.Backend("gemini.embed", err.Error(), err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, errdefs.Backend("gemini.embed",
				fmt.Sprintf("expected %d embeddings, got %d", end-start, len(resp.Embeddings)), nil)
		}
		for _, emb := range resp.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}
