package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/charlotte/internal/app"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// apply copies the flags the user set onto p.
func (f *personaFlags) apply(cmd *cobra.Command, p *models.Persona) error {
	set := cmd.Flags().Changed
	if set("name") {
		p.Name = f.name
	}
	if set("greeting") {
		p.Greeting = f.greeting
	}
	if set("key-info") {
		p.KeyInfo = f.keyInfo
	}
	if set("dialogue") {
		p.DialogueExample = f.dialogue
	}
	if f.dialogueFile != "" {
		data, err := os.ReadFile(f.dialogueFile)
		if err != nil {
			return fmt.Errorf("read dialogue: %w", err)
		}
		p.DialogueExample = string(data)
	}
	return nil
}

func runPersonaCreate(cmd *cobra.Command, opts *rootOptions, flags *personaFlags) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		var p models.Persona
		if err := flags.apply(cmd, &p); err != nil {
			return err
		}
		created, err := a.Personas.CreatePersona(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created persona %s %s\n", created.Name, idStyle.Render(created.ID))
		return nil
	})
}

func runPersonaList(cmd *cobra.Command, opts *rootOptions, query string, page, limit int) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		var (
			res models.SearchResult[models.Persona]
			err error
		)
		if query != "" {
			res, err = a.Personas.SearchPersonas(ctx, query, page, limit)
		} else {
			res, err = a.Personas.ListPersonas(ctx, page, limit)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(res.Hits) == 0 {
			fmt.Fprintln(out, "No personas found.")
			return nil
		}
		tw := newTable(out)
		fmt.Fprintln(tw, headerStyle.Render("ID")+"\tNAME\tGREETING")
		for _, p := range res.Hits {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, oneLine(p.Greeting, 60))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		printPage(out, res.Page, res.TotalPages)
		return nil
	})
}

func runPersonaShow(cmd *cobra.Command, opts *rootOptions, id string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		p, err := a.Personas.GetPersona(ctx, id)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, personaStyle.Render(p.Name), idStyle.Render(p.ID))
		fmt.Fprintf(out, "Greeting: %s\n", p.Greeting)
		if p.KeyInfo != "" {
			fmt.Fprintf(out, "\nKey info:\n%s\n", p.KeyInfo)
		}
		if p.DialogueExample != "" {
			fmt.Fprintf(out, "\nDialogue example:\n%s\n", p.RenderDialogue(a.Config.Chat.UserName))
		}
		return nil
	})
}

func runPersonaUpdate(cmd *cobra.Command, opts *rootOptions, id string, flags *personaFlags) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		p, err := a.Personas.GetPersona(ctx, id)
		if err != nil {
			return err
		}
		if err := flags.apply(cmd, &p); err != nil {
			return err
		}
		if _, err := a.Personas.UpdatePersona(ctx, p); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Updated persona %s\n", p.ID)
		return nil
	})
}

func runPersonaRemove(cmd *cobra.Command, opts *rootOptions, id string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Personas.DeletePersona(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted persona %s\n", id)
		return nil
	})
}

func runPersonaInfoAdd(cmd *cobra.Command, opts *rootOptions, personaID string, facts []string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		infos, err := a.Personas.AddPersonaInfo(ctx, personaID, facts...)
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s  %s\n", idStyle.Render(info.ID), oneLine(info.Content, 60))
		}
		return nil
	})
}

func runPersonaInfoList(cmd *cobra.Command, opts *rootOptions, personaID string, page, limit int) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Personas.ListPersonaInfo(ctx, personaID, page, limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(res.Hits) == 0 {
			fmt.Fprintln(out, "No facts found.")
			return nil
		}
		tw := newTable(out)
		for _, info := range res.Hits {
			fmt.Fprintf(tw, "%s\t%s\n", info.ID, oneLine(info.Content, 80))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		printPage(out, res.Page, res.TotalPages)
		return nil
	})
}

func runPersonaInfoRemove(cmd *cobra.Command, opts *rootOptions, ids []string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		if err := a.Personas.DeletePersonaInfo(ctx, ids...); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d fact(s)\n", len(ids))
		return nil
	})
}
