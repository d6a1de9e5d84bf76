// Package parser turns raw document bytes into plain text plus metadata
// for ingestion.
package parser

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/haasonsaas/charlotte/pkg/models"
)

// Parser extracts text and metadata from one document format.
type Parser interface {
	// Parse reads the document. Metadata found in the document fills the
	// fields of meta that are empty.
	Parse(ctx context.Context, r io.Reader, meta *models.DocumentMetadata) (*Result, error)

	Name() string

	// SupportedTypes returns the MIME types handled.
	SupportedTypes() []string

	// SupportedExtensions returns the file extensions handled, with or
	// without the leading dot.
	SupportedExtensions() []string
}

// Result is a parsed document.
type Result struct {
	Content  string
	Metadata *models.DocumentMetadata
}

// Registry picks a parser by content type or extension.
type Registry struct {
	mu       sync.RWMutex
	byType   map[string]Parser
	byExt    map[string]Parser
	fallback Parser
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[string]Parser),
		byExt:  make(map[string]Parser),
	}
}

// Register adds p for all its types and extensions.
func (r *Registry) Register(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range p.SupportedTypes() {
		r.byType[strings.ToLower(t)] = p
	}
	for _, ext := range p.SupportedExtensions() {
		r.byExt[normalizeExt(ext)] = p
	}
}

// SetDefault sets the parser used when nothing matches.
func (r *Registry) SetDefault(p Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = p
}

// Get returns the parser for contentType, then for ext, then the default.
func (r *Registry) Get(contentType, ext string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if mediaType := normalizeType(contentType); mediaType != "" {
		if p, ok := r.byType[mediaType]; ok {
			return p, nil
		}
	}
	if ext != "" {
		if p, ok := r.byExt[normalizeExt(ext)]; ok {
			return p, nil
		}
	}
	if r.fallback != nil {
		return r.fallback, nil
	}
	return nil, fmt.Errorf("no parser for content type %q, extension %q", contentType, ext)
}

// Parse selects a parser and runs it.
func (r *Registry) Parse(ctx context.Context, rd io.Reader, contentType, ext string, meta *models.DocumentMetadata) (*Result, error) {
	p, err := r.Get(contentType, ext)
	if err != nil {
		return nil, err
	}
	return p.Parse(ctx, rd, meta)
}

func normalizeType(contentType string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MergeMeta returns base with its empty fields filled from extracted.
func MergeMeta(base, extracted *models.DocumentMetadata) *models.DocumentMetadata {
	if base == nil {
		base = &models.DocumentMetadata{}
	}
	out := *base
	if extracted == nil {
		return &out
	}
	if out.Title == "" {
		out.Title = extracted.Title
	}
	if out.Author == "" {
		out.Author = extracted.Author
	}
	if out.Description == "" {
		out.Description = extracted.Description
	}
	if out.Language == "" {
		out.Language = extracted.Language
	}
	if len(out.Tags) == 0 {
		out.Tags = extracted.Tags
	}
	if len(extracted.Custom) > 0 {
		custom := make(map[string]any, len(base.Custom)+len(extracted.Custom))
		for k, v := range extracted.Custom {
			custom[k] = v
		}
		for k, v := range base.Custom {
			custom[k] = v
		}
		out.Custom = custom
	}
	return &out
}
