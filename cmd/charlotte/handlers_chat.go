package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/charlotte/internal/app"
	"github.com/haasonsaas/charlotte/pkg/models"
)

// chatService is the part of the orchestrator the REPL drives.
type chatService interface {
	Chat(ctx context.Context, sessionID string, input models.ChatMessage) ([]models.ChatMessage, error)
	GetHistory(ctx context.Context, id string) ([]models.ChatMessage, error)
	GetSessionReference(ctx context.Context, id string) (models.SessionReference, error)
}

// lineReader yields input lines; io.EOF ends the conversation.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

type scannerReader struct {
	scanner *bufio.Scanner
}

func (r *scannerReader) Readline() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

func (r *scannerReader) Close() error { return nil }

func runChat(cmd *cobra.Command, opts *rootOptions, personaID, sessionID string, args []string) error {
	return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
		out := cmd.OutOrStdout()
		session, err := openChatSession(ctx, a, personaID, sessionID)
		if err != nil {
			return err
		}
		name := session.Persona.Name

		if len(args) == 1 {
			return chatTurn(ctx, a.Agent, session.ID, name, args[0], out)
		}

		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("Chatting with %s", name)), idStyle.Render("session "+session.ID))
		if sessionID == "" {
			for _, m := range session.History {
				printMessage(out, name, m)
			}
		}

		reader, err := newLineReader(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
		defer reader.Close()
		return chatLoop(ctx, a.Agent, session.ID, name, reader, out)
	})
}

// openChatSession resumes sessionID or starts a session with the given
// persona, falling back to the only stored persona.
func openChatSession(ctx context.Context, a *app.App, personaID, sessionID string) (*models.Session, error) {
	if sessionID != "" {
		return a.Agent.GetSession(ctx, sessionID)
	}
	if personaID == "" {
		res, err := a.Personas.ListPersonas(ctx, 1, 2)
		if err != nil {
			return nil, err
		}
		switch len(res.Hits) {
		case 0:
			return nil, errors.New("no personas yet; create one with `charlotte persona create`")
		case 1:
			personaID = res.Hits[0].ID
		default:
			return nil, errors.New("several personas exist; choose one with --persona")
		}
	}
	return a.Agent.CreateSession(ctx, personaID)
}

func newLineReader(in io.Reader, out io.Writer) (lineReader, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return &scannerReader{scanner: bufio.NewScanner(in)}, nil
	}
	cfg := &readline.Config{
		Prompt:          userStyle.Render("you: "),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	}
	if dir, err := os.UserCacheDir(); err == nil {
		historyDir := filepath.Join(dir, "charlotte")
		if os.MkdirAll(historyDir, 0o700) == nil {
			cfg.HistoryFile = filepath.Join(historyDir, "chat_history")
		}
	}
	rl, err := readline.NewEx(cfg)
	if err != nil {
		return nil, fmt.Errorf("open terminal: %w", err)
	}
	return rl, nil
}

// chatLoop reads lines until EOF or /quit. A failed turn is printed and
// the loop continues.
func chatLoop(ctx context.Context, chat chatService, sessionID, personaName string, reader lineReader, out io.Writer) error {
	for {
		line, err := reader.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/history":
			history, err := chat.GetHistory(ctx, sessionID)
			if err != nil {
				return err
			}
			for _, m := range history {
				printMessage(out, personaName, m)
			}
			continue
		case "/refs":
			refs, err := chat.GetSessionReference(ctx, sessionID)
			if err != nil {
				return err
			}
			printReferences(out, refs)
			continue
		}
		if err := chatTurn(ctx, chat, sessionID, personaName, line, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(out, errorStyle.Render("error: "+err.Error()))
		}
	}
}

func chatTurn(ctx context.Context, chat chatService, sessionID, personaName, content string, out io.Writer) error {
	messages, err := chat.Chat(ctx, sessionID, models.ChatMessage{Origin: models.OriginUser, Content: content})
	if err != nil {
		return err
	}
	for _, m := range messages {
		printMessage(out, personaName, m)
	}
	return nil
}

func printReferences(w io.Writer, refs models.SessionReference) {
	if len(refs.Documents) == 0 && len(refs.Tools) == 0 {
		fmt.Fprintln(w, idStyle.Render("nothing in context"))
		return
	}
	for _, d := range refs.Documents {
		fmt.Fprintf(w, "doc   %s  %s\n", idStyle.Render(d.ID), d.Title)
	}
	for _, t := range refs.Tools {
		fmt.Fprintf(w, "tool  %s  %s\n", t.Name, oneLine(t.Description, 80))
	}
}
