package main

import (
	"github.com/spf13/cobra"
)

// buildToolsCmd creates the "tools" command group.
func buildToolsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tools",
		Aliases: []string{"tool"},
		Short:   "Manage sandboxed tools",
	}
	cmd.AddCommand(
		buildToolsRegisterCmd(opts),
		buildToolsListCmd(opts),
		buildToolsShowCmd(opts),
		buildToolsExecCmd(opts),
		buildToolsRemoveCmd(opts),
	)
	return cmd
}

// toolFlags describe a tool to register.
type toolFlags struct {
	from        string
	name        string
	description string
	paramsFile  string
	bodyFile    string
}

func buildToolsRegisterCmd(opts *rootOptions) *cobra.Command {
	flags := &toolFlags{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register or replace a tool",
		Long: `Register a tool from a JSON/JSON5 definition file, or from flags.

The body is Go source declaring

	func Execute(args map[string]any, caps *host.Capabilities) (any, error)

and may import the packages allowed by sandbox.packages. caps exposes the
clock, the document library and persona lookups.`,
		Example: `  charlotte tools register --from ./tools/weather.json5
  charlotte tools register --name word_count --description "Count words in text" \
    --params-file ./schema.json --body-file ./word_count.go`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsRegister(cmd, opts, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.from, "from", "f", "", "Definition file (JSON or JSON5)")
	cmd.Flags().StringVar(&flags.name, "name", "", "Tool name")
	cmd.Flags().StringVar(&flags.description, "description", "", "When the model should call the tool")
	cmd.Flags().StringVar(&flags.paramsFile, "params-file", "", "JSON Schema of the arguments")
	cmd.Flags().StringVar(&flags.bodyFile, "body-file", "", "Go source of the tool")
	return cmd
}

func buildToolsListCmd(opts *rootOptions) *cobra.Command {
	var (
		query string
		page  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List or search tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsList(cmd, opts, query, page, limit)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Free-text search")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Results per page")
	return cmd
}

func buildToolsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Print a tool definition as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsShow(cmd, opts, args[0])
		},
	}
}

func buildToolsExecCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "exec [name] [json-args]",
		Short:   "Run a tool in the sandbox",
		Example: `  charlotte tools exec word_count '{"text": "one two three"}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := "{}"
			if len(args) == 2 {
				input = args[1]
			}
			return runToolsExec(cmd, opts, args[0], input)
		},
	}
}

func buildToolsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [name...]",
		Aliases: []string{"remove", "unregister"},
		Short:   "Unregister tools",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToolsRemove(cmd, opts, args)
		},
	}
}
