package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/llm"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// derivationTemperature keeps generated summaries close to the source.
const derivationTemperature = 0.2

// maxPromptRunes bounds the document excerpt sent for derivation.
const maxPromptRunes = 12000

const summaryPrompt = `Summarize the document below in a few sentences.
State its purpose and main topic.

File: %s
Content between the dashed lines:
------
%s
------

Summary:`

const keyPointsPrompt = `List the key facts of the document below, one per line, each starting with "- ".
Include dates, times and places of any events. Do not repeat the summary.

File: %s
Content between the dashed lines:
------
%s
------

Key points:`

const titlePrompt = `Write a short, accurate headline for this document.

File: %s
Summary: %s

Headline:`

// AddRawDocuments parses raw content, derives summary, key points and a
// missing title with the language model, then stores the results.
func (s *Store) AddRawDocuments(ctx context.Context, raws ...models.RawDocument) ([]models.Document, error) {
	docs := make([]models.Document, 0, len(raws))
	for i, raw := range raws {
		doc, err := s.derive(ctx, raw)
		if err != nil {
			return nil, fmt.Errorf("raw document %d: %w", i, err)
		}
		docs = append(docs, doc)
	}
	return s.AddDocuments(ctx, docs...)
}

// IngestURIs fetches each URI and adds it as a raw document.
func (s *Store) IngestURIs(ctx context.Context, timezone string, uris ...string) ([]models.Document, error) {
	if s.loader == nil {
		return nil, errdefs.Invalid("document sources are not configured")
	}
	raws := make([]models.RawDocument, 0, len(uris))
	for _, uri := range uris {
		fetched, err := s.loader.Fetch(ctx, uri)
		if err != nil {
			return nil, err
		}
		raws = append(raws, models.RawDocument{
			Content:     string(fetched.Body),
			ContentType: fetched.ContentType,
			Timezone:    timezone,
			Source: models.Source{
				Label: path.Base(fetched.URI),
				URI:   fetched.URI,
				Type:  fetched.Type,
			},
		})
	}
	return s.AddRawDocuments(ctx, raws...)
}

func (s *Store) derive(ctx context.Context, raw models.RawDocument) (models.Document, error) {
	meta := &models.DocumentMetadata{Title: raw.Title}
	parsed, err := s.parsers.Parse(ctx, bytes.NewReader([]byte(raw.Content)), raw.ContentType, path.Ext(raw.Source.URI), meta)
	if err != nil {
		return models.Document{}, errdefs.Invalid("parse: %v", err)
	}
	if strings.TrimSpace(parsed.Content) == "" {
		return models.Document{}, errdefs.Invalid("document is empty")
	}

	name := firstNonEmpty(raw.Source.Label, raw.Title, "untitled")
	if raw.Source.Label == "" && raw.Source.URI != "" {
		name = path.Base(raw.Source.URI)
	}
	excerpt := truncateRunes(parsed.Content, maxPromptRunes)

	var summary, keyPoints string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.complete(gctx, fmt.Sprintf(summaryPrompt, name, excerpt))
		return err
	})
	g.Go(func() error {
		var err error
		keyPoints, err = s.complete(gctx, fmt.Sprintf(keyPointsPrompt, name, excerpt))
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Document{}, err
	}

	title := raw.Title
	if title == "" {
		title, err = s.complete(ctx, fmt.Sprintf(titlePrompt, name, summary))
		if err != nil {
			return models.Document{}, err
		}
		title = strings.Trim(title, "\"' ")
		if title == "" {
			title = parsed.Metadata.Title
		}
	}

	timezone := raw.Timezone
	if tz, ok := parsed.Metadata.Custom["timezone"].(string); ok && timezone == "" {
		timezone = tz
	}
	s.logger.Debug("derived document fields", "name", name, "title", title)
	return models.Document{
		Title:     title,
		Summary:   summary,
		KeyPoints: keyPoints,
		Content:   parsed.Content,
		Source:    raw.Source,
		Timezone:  timezone,
	}, nil
}

func (s *Store) complete(ctx context.Context, prompt string) (string, error) {
	out, err := s.llm.Complete(ctx, prompt, llm.CompleteOptions{Temperature: derivationTemperature})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
