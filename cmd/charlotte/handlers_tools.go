package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"github.com/haasonsaas/charlotte/internal/app"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// definition builds the tool definition from the definition file and
// flags. Flags override file fields.
func (f *toolFlags) definition() (models.ToolDefinition, error) {
	var def models.ToolDefinition
	if f.from != "" {
		data, err := os.ReadFile(f.from)
		if err != nil {
			return def, fmt.Errorf("read tool definition: %w", err)
		}
		if def, err = decodeToolDefinition(data); err != nil {
			return def, fmt.Errorf("parse %s: %w", f.from, err)
		}
	}
	if f.name != "" {
		def.Name = f.name
	}
	if f.description != "" {
		def.Description = f.description
	}
	if f.paramsFile != "" {
		data, err := os.ReadFile(f.paramsFile)
		if err != nil {
			return def, fmt.Errorf("read parameters: %w", err)
		}
		if !json.Valid(data) {
			return def, fmt.Errorf("%s is not valid JSON", f.paramsFile)
		}
		def.Parameters = data
	}
	if f.bodyFile != "" {
		data, err := os.ReadFile(f.bodyFile)
		if err != nil {
			return def, fmt.Errorf("read body: %w", err)
		}
		def.Body = string(data)
	}
	if def.Name == "" {
		return def, errors.New("a tool name is required (--name or the definition file)")
	}
	return def, nil
}

// decodeToolDefinition accepts JSON5, which allows comments and unquoted
// keys in hand-written definitions.
func decodeToolDefinition(data []byte) (models.ToolDefinition, error) {
	var def models.ToolDefinition
	var raw map[string]any
	if err := json5.Unmarshal(data, &raw); err != nil {
		return def, err
	}
	normalized, err := json.Marshal(raw)
	if err != nil {
		return def, err
	}
	if err := json.Unmarshal(normalized, &def); err != nil {
		return def, err
	}
	if string(def.Parameters) == "null" {
		def.Parameters = nil
	}
	return def, nil
}

func runToolsRegister(cmd *cobra.Command, opts *rootOptions, flags *toolFlags) error {
	def, err := flags.definition()
	if err != nil {
		return err
	}
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		registered, err := a.Tools.Register(ctx, def)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered tool %s\n", registered.Name)
		return nil
	})
}

func runToolsList(cmd *cobra.Command, opts *rootOptions, query string, page, limit int) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		var (
			res models.SearchResult[models.ToolDefinition]
			err error
		)
		if query != "" {
			res, err = a.Tools.Search(ctx, query, page, limit)
		} else {
			res, err = a.Tools.List(ctx, page, limit)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(res.Hits) == 0 {
			fmt.Fprintln(out, "No tools found.")
			return nil
		}
		tw := newTable(out)
		fmt.Fprintln(tw, headerStyle.Render("NAME")+"\tDESCRIPTION")
		for _, t := range res.Hits {
			fmt.Fprintf(tw, "%s\t%s\n", t.Name, oneLine(t.Description, 70))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		printPage(out, res.Page, res.TotalPages)
		return nil
	})
}

func runToolsShow(cmd *cobra.Command, opts *rootOptions, name string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		def, err := a.Tools.Get(ctx, name)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(def)
	})
}

func runToolsExec(cmd *cobra.Command, opts *rootOptions, name, input string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		output, err := a.Tools.Execute(ctx, name, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), output)
		return nil
	})
}

func runToolsRemove(cmd *cobra.Command, opts *rootOptions, names []string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		for _, name := range names {
			if _, err := a.Tools.Get(ctx, name); err != nil {
				return err
			}
		}
		if err := a.Tools.Unregister(ctx, names...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unregistered %d tool(s)\n", len(names))
		return nil
	})
}
