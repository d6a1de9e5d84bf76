package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/charlotte/internal/app"
	"github.com/haasonsaas/charlotte/pkg/models"
)

func runSessionsList(cmd *cobra.Command, opts *rootOptions, personaID string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		var (
			infos []models.SessionInfo
			err   error
		)
		if personaID != "" {
			infos, err = a.Agent.ListPersonaSessions(ctx, personaID)
		} else {
			infos, err = a.Agent.ListAllSessions(ctx)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(infos) == 0 {
			fmt.Fprintln(out, "No sessions found.")
			return nil
		}
		tw := newTable(out)
		fmt.Fprintln(tw, headerStyle.Render("ID")+"\tPERSONA\tMESSAGES\tCREATED\tLAST")
		for _, info := range infos {
			last := ""
			if info.LastMessage != nil {
				last = oneLine(info.LastMessage.Content, 50)
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
				info.ID, info.PersonaName, info.MessageCount,
				info.CreatedAt.Local().Format("2006-01-02 15:04"), last)
		}
		return tw.Flush()
	})
}

func runSessionsShow(cmd *cobra.Command, opts *rootOptions, id string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		info, err := a.Agent.GetSessionInfo(ctx, id)
		if err != nil {
			return err
		}
		refs, err := a.Agent.GetSessionReference(ctx, id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", headerStyle.Render("Session"), info.ID)
		fmt.Fprintf(out, "Persona:  %s (%s)\n", info.PersonaName, info.PersonaID)
		fmt.Fprintf(out, "Created:  %s\n", info.CreatedAt.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintf(out, "Messages: %d\n", info.MessageCount)
		fmt.Fprintln(out, "Context:")
		printReferences(out, refs)
		return nil
	})
}

func runSessionsHistory(cmd *cobra.Command, opts *rootOptions, id string, asJSON bool) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		session, err := a.Agent.GetSession(ctx, id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(session.History)
		}
		for _, m := range session.History {
			printMessage(out, session.Persona.Name, m)
		}
		return nil
	})
}

func runSessionsRemove(cmd *cobra.Command, opts *rootOptions, ids []string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		for _, id := range ids {
			if err := a.Agent.RemoveSession(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed session %s\n", id)
		}
		return nil
	})
}
