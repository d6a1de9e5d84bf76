// Package markdown parses Markdown documents with optional YAML frontmatter
// into plain text.
package markdown

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/charlotte/internal/knowledge/parser"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// Parser converts Markdown to plain text. Headings, list items and
// paragraphs become separate lines; emphasis, links and HTML are flattened.
type Parser struct {
	md goldmark.Markdown
}

var _ parser.Parser = (*Parser)(nil)

// New creates a Markdown parser.
func New() *Parser {
	return &Parser{md: goldmark.New()}
}

func (p *Parser) Name() string { return "markdown" }

func (p *Parser) SupportedTypes() []string {
	return []string{"text/markdown", "text/x-markdown"}
}

func (p *Parser) SupportedExtensions() []string {
	return []string{".md", ".markdown", ".mdown", ".mkd"}
}

// Parse extracts frontmatter metadata and the document's plain text. The
// first heading is used as the title when the frontmatter has none.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *models.DocumentMetadata) (*parser.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	extracted := &models.DocumentMetadata{}
	front, body := splitFrontmatter(data)
	if front != nil {
		// Malformed frontmatter is kept out of the content but otherwise ignored.
		if fm, err := parseFrontmatter(front); err == nil {
			extracted = fm
		}
	}

	root := p.md.Parser().Parse(text.NewReader(body))
	if extracted.Title == "" {
		extracted.Title = firstHeading(root, body)
	}
	return &parser.Result{
		Content:  plainText(root, body),
		Metadata: parser.MergeMeta(meta, extracted),
	}, nil
}

// splitFrontmatter separates a leading "---" delimited block.
func splitFrontmatter(data []byte) (front, body []byte) {
	trimmed := bytes.TrimLeft(data, "\ufeff \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("---")) {
		return nil, data
	}
	lines := bytes.SplitAfter(trimmed, []byte("\n"))
	if len(lines) < 2 || strings.TrimSpace(string(lines[0])) != "---" {
		return nil, data
	}
	offset := len(lines[0])
	for _, line := range lines[1:] {
		switch strings.TrimSpace(string(line)) {
		case "---", "...":
			return trimmed[len(lines[0]):offset], trimmed[offset+len(line):]
		}
		offset += len(line)
	}
	return nil, data
}

type frontmatter struct {
	Title       string   `yaml:"title"`
	Author      string   `yaml:"author"`
	Description string   `yaml:"description"`
	Summary     string   `yaml:"summary"`
	Tags        []string `yaml:"tags"`
	Keywords    []string `yaml:"keywords"`
	Language    string   `yaml:"language"`
	Lang        string   `yaml:"lang"`
	Date        string   `yaml:"date"`
	Timezone    string   `yaml:"timezone"`
}

func parseFrontmatter(data []byte) (*models.DocumentMetadata, error) {
	var fm frontmatter
	if err := yaml.Unmarshal(data, &fm); err != nil {
		return nil, err
	}
	meta := &models.DocumentMetadata{
		Title:       fm.Title,
		Author:      fm.Author,
		Description: fm.Description,
		Language:    fm.Language,
	}
	if meta.Description == "" {
		meta.Description = fm.Summary
	}
	if meta.Language == "" {
		meta.Language = fm.Lang
	}
	if tags := append(append([]string{}, fm.Tags...), fm.Keywords...); len(tags) > 0 {
		meta.Tags = tags
	}
	for key, value := range map[string]string{"date": fm.Date, "timezone": fm.Timezone} {
		if value == "" {
			continue
		}
		if meta.Custom == nil {
			meta.Custom = make(map[string]any)
		}
		meta.Custom[key] = value
	}
	return meta, nil
}

func firstHeading(root ast.Node, src []byte) string {
	var title string
	_ = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok {
			title = strings.TrimSpace(plainText(h, src))
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// plainText renders the text under n, one block per line.
func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	newline := func() {
		if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteByte('\n')
		}
	}
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock {
				newline()
			}
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			switch {
			case v.HardLineBreak():
				b.WriteByte('\n')
			case v.SoftLineBreak():
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.URL(src))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			newline()
			lines := v.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				b.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	return collapseBlankLines(b.String())
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" && (len(out) == 0 || out[len(out)-1] == "") {
			continue
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
