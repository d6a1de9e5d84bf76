package main

import (
	"github.com/spf13/cobra"
)

// buildSessionsCmd creates the "session" command group.
func buildSessionsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Inspect and remove chat sessions",
	}
	cmd.AddCommand(
		buildSessionsListCmd(opts),
		buildSessionsShowCmd(opts),
		buildSessionsHistoryCmd(opts),
		buildSessionsRemoveCmd(opts),
	)
	return cmd
}

func buildSessionsListCmd(opts *rootOptions) *cobra.Command {
	var personaID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd, opts, personaID)
		},
	}
	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "Only sessions with this persona")
	return cmd
}

func buildSessionsShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a session summary and its context references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd, opts, args[0])
		},
	}
}

func buildSessionsHistoryCmd(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history [id]",
		Short: "Print a session's history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsHistory(cmd, opts, args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func buildSessionsRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm [id...]",
		Aliases: []string{"remove"},
		Short:   "Remove sessions",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsRemove(cmd, opts, args)
		},
	}
}
