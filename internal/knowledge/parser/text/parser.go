// Package text parses plain-text documents.
package text

import (
	"bufio"
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/haasonsaas/charlotte/internal/knowledge/parser"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// maxTitleRunes caps a title taken from the first line.
const maxTitleRunes = 100

// Parser passes text through, normalizing line endings.
type Parser struct{}

var _ parser.Parser = (*Parser)(nil)

func New() *Parser { return &Parser{} }

func (p *Parser) Name() string { return "text" }

func (p *Parser) SupportedTypes() []string {
	return []string{"text/plain", "text/csv", "application/json", "text/xml", "application/xml"}
}

func (p *Parser) SupportedExtensions() []string {
	return []string{".txt", ".text", ".csv", ".json", ".xml", ".log"}
}

// Parse returns the text with its first non-empty line as a title
// candidate.
func (p *Parser) Parse(ctx context.Context, r io.Reader, meta *models.DocumentMetadata) (*parser.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	content = strings.TrimSpace(strings.ToValidUTF8(content, "�"))
	return &parser.Result{
		Content:  content,
		Metadata: parser.MergeMeta(meta, &models.DocumentMetadata{Title: firstLine(content)}),
	}, nil
}

func firstLine(content string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > maxTitleRunes {
			return string([]rune(line)[:maxTitleRunes]) + "..."
		}
		return line
	}
	return ""
}
