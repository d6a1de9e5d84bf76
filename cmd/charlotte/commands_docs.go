package main

import (
	"github.com/spf13/cobra"
)

// buildDocsCmd creates the "docs" command group for the document library.
func buildDocsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "Manage the document library",
	}
	cmd.AddCommand(
		buildDocsAddCmd(opts),
		buildDocsNoteCmd(opts),
		buildDocsListCmd(opts),
		buildDocsShowCmd(opts),
		buildDocsRemoveCmd(opts),
	)
	return cmd
}

func buildDocsAddCmd(opts *rootOptions) *cobra.Command {
	var timezone string
	cmd := &cobra.Command{
		Use:   "add [path|url|s3://bucket/key...]",
		Short: "Ingest files, web pages or S3 objects",
		Long: `Fetch each source, parse it by content type (Markdown, HTML, plain text),
derive a title, summary and key points with the language model, and add
the result to the library.`,
		Example: `  charlotte docs add ./notes/handbook.md
  charlotte docs add https://example.com/faq.html s3://team-docs/policies.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsAdd(cmd, opts, timezone, args)
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA zone the documents' dates refer to")
	return cmd
}

func buildDocsNoteCmd(opts *rootOptions) *cobra.Command {
	var title, timezone string
	cmd := &cobra.Command{
		Use:   "note [text]",
		Short: "Add a short text document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsNote(cmd, opts, title, timezone, args[0])
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Title (derived from the text when empty)")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA zone the text's dates refer to")
	return cmd
}

func buildDocsListCmd(opts *rootOptions) *cobra.Command {
	var (
		query string
		page  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List or search documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsList(cmd, opts, query, page, limit)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Free-text search")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Results per page")
	return cmd
}

func buildDocsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsShow(cmd, opts, args[0])
		},
	}
}

func buildDocsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [id...]",
		Aliases: []string{"remove"},
		Short:   "Delete documents",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDocsRemove(cmd, opts, args)
		},
	}
}
