package main

import (
	"github.com/spf13/cobra"
)

// personaFlags are the editable persona fields.
type personaFlags struct {
	name, greeting, keyInfo, dialogue, dialogueFile string
}

func (f *personaFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "Display name")
	cmd.Flags().StringVar(&f.greeting, "greeting", "", "First message of every new session")
	cmd.Flags().StringVar(&f.keyInfo, "key-info", "", "Background facts always given to the model")
	cmd.Flags().StringVar(&f.dialogue, "dialogue", "", "Example dialogue using <user> and <char> placeholders")
	cmd.Flags().StringVar(&f.dialogueFile, "dialogue-file", "", "Read the example dialogue from a file")
}

// buildPersonaCmd creates the "persona" command group.
func buildPersonaCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "persona",
		Aliases: []string{"personas"},
		Short:   "Manage personas and their facts",
	}
	cmd.AddCommand(
		buildPersonaCreateCmd(opts),
		buildPersonaListCmd(opts),
		buildPersonaShowCmd(opts),
		buildPersonaUpdateCmd(opts),
		buildPersonaRemoveCmd(opts),
		buildPersonaInfoCmd(opts),
	)
	return cmd
}

func buildPersonaCreateCmd(opts *rootOptions) *cobra.Command {
	flags := &personaFlags{}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a persona",
		Example: `  charlotte persona create --name Charlotte --greeting "Hi, I'm Charlotte." \
    --key-info "Works at the front desk." --dialogue-file ./dialogue.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaCreate(cmd, opts, flags)
		},
	}
	flags.bind(cmd)
	cobra.CheckErr(cmd.MarkFlagRequired("name"))
	return cmd
}

func buildPersonaListCmd(opts *rootOptions) *cobra.Command {
	var (
		query string
		page  int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List or search personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaList(cmd, opts, query, page, limit)
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Free-text search")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&limit, "limit", 20, "Results per page")
	return cmd
}

func buildPersonaShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a persona",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaShow(cmd, opts, args[0])
		},
	}
}

func buildPersonaUpdateCmd(opts *rootOptions) *cobra.Command {
	flags := &personaFlags{}
	cmd := &cobra.Command{
		Use:   "update [id]",
		Short: "Change persona fields; unset flags keep their values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaUpdate(cmd, opts, args[0], flags)
		},
	}
	flags.bind(cmd)
	return cmd
}

func buildPersonaRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [id]",
		Aliases: []string{"remove"},
		Short:   "Delete a persona and its facts",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaRemove(cmd, opts, args[0])
		},
	}
}

func buildPersonaInfoCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Manage the facts retrieved alongside a persona",
	}

	add := &cobra.Command{
		Use:   "add [persona-id] [fact...]",
		Short: "Add facts",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaInfoAdd(cmd, opts, args[0], args[1:])
		},
	}

	var page, limit int
	list := &cobra.Command{
		Use:   "list [persona-id]",
		Short: "List facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaInfoList(cmd, opts, args[0], page, limit)
		},
	}
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().IntVar(&limit, "limit", 20, "Results per page")

	rm := &cobra.Command{
		Use:     "rm [info-id...]",
		Aliases: []string{"remove"},
		Short:   "Delete facts",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPersonaInfoRemove(cmd, opts, args)
		},
	}

	cmd.AddCommand(add, list, rm)
	return cmd
}
