package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/charlotte/internal/app"
	"github.com/haasonsaas/charlotte/pkg/models"
)

func runDocsAdd(cmd *cobra.Command, opts *rootOptions, timezone string, uris []string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		if timezone == "" {
			timezone = a.Config.Chat.Timezone
		}
		docs, err := a.Knowledge.IngestURIs(ctx, timezone, uris...)
		if err != nil {
			return err
		}
		printDocuments(cmd, docs)
		return nil
	})
}

func runDocsNote(cmd *cobra.Command, opts *rootOptions, title, timezone, text string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		if timezone == "" {
			timezone = a.Config.Chat.Timezone
		}
		docs, err := a.Knowledge.AddRawDocuments(ctx, models.RawDocument{
			Title:       title,
			Content:     text,
			ContentType: "text/plain",
			Source:      models.Source{Type: "manual", Label: "cli"},
			Timezone:    timezone,
		})
		if err != nil {
			return err
		}
		printDocuments(cmd, docs)
		return nil
	})
}

func printDocuments(cmd *cobra.Command, docs []models.Document) {
	out := cmd.OutOrStdout()
	for _, d := range docs {
		fmt.Fprintf(out, "Added %s  %s\n", idStyle.Render(d.ID), d.Title)
	}
}

func runDocsList(cmd *cobra.Command, opts *rootOptions, query string, page, limit int) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		var (
			res models.SearchResult[models.Document]
			err error
		)
		if query != "" {
			res, err = a.Knowledge.SearchDocuments(ctx, query, page, limit)
		} else {
			res, err = a.Knowledge.ListDocuments(ctx, page, limit)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(res.Hits) == 0 {
			fmt.Fprintln(out, "No documents found.")
			return nil
		}
		tw := newTable(out)
		fmt.Fprintln(tw, headerStyle.Render("ID")+"\tTITLE\tSOURCE\tADDED")
		for _, d := range res.Hits {
			source := d.Source.URI
			if source == "" {
				source = d.Source.Label
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, oneLine(d.Title, 50), source, d.CreatedAt.Local().Format("2006-01-02"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		printPage(out, res.Page, res.TotalPages)
		return nil
	})
}

func runDocsShow(cmd *cobra.Command, opts *rootOptions, id string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		d, err := a.Knowledge.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, headerStyle.Render(d.Title))
		fmt.Fprintln(out, idStyle.Render(d.ID))
		if d.Source.URI != "" {
			fmt.Fprintf(out, "Source: %s\n", d.Source.URI)
		}
		fmt.Fprintf(out, "\nSummary:\n%s\n\nKey points:\n%s\n\n%s\n", d.Summary, d.KeyPoints, d.Content)
		return nil
	})
}

func runDocsRemove(cmd *cobra.Command, opts *rootOptions, ids []string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		for _, id := range ids {
			if _, err := a.Knowledge.GetDocument(ctx, id); err != nil {
				return err
			}
		}
		if err := a.Knowledge.DeleteDocuments(ctx, ids...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d document(s)\n", len(ids))
		return nil
	})
}
