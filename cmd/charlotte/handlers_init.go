package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/charlotte/internal/config"
)

// initAnswers are the wizard's choices.
type initAnswers struct {
	Provider          string
	Endpoint          string
	ChatModel         string
	EmbeddingProvider string
	KeyStorage        string // "keyring" or "env"
	APIKey            string
	EmbeddingAPIKey   string
	StoragePath       string
	UserName          string
	Timezone          string
	PersistSessions   bool
}

func defaultInitAnswers() initAnswers {
	return initAnswers{
		Provider:          "openai",
		ChatModel:         config.DefaultChatModel,
		EmbeddingProvider: "openai",
		KeyStorage:        "env",
		StoragePath:       config.DefaultStoragePath,
		UserName:          config.DefaultUserName,
		PersistSessions:   true,
	}
}

func runInit(cmd *cobra.Command, output string, defaults, force, accessible bool) error {
	if !force {
		if _, err := os.Stat(output); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", output)
		}
	}

	answers := defaultInitAnswers()
	if !defaults {
		if err := askInit(&answers, accessible); err != nil {
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			return err
		}
	}

	refs, err := storeKeys(answers)
	if err != nil {
		return err
	}
	data, err := renderInitConfig(answers, refs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Configuration written: %s\n", output)
	fmt.Fprintln(out, "Next steps:")
	if answers.KeyStorage == "env" {
		for _, ref := range refs {
			fmt.Fprintf(out, "  - export %s\n", strings.TrimPrefix(ref, "env:"))
		}
	}
	fmt.Fprintln(out, "  - charlotte persona create --name <name> --greeting <greeting>")
	fmt.Fprintln(out, "  - charlotte chat")
	return nil
}

func askInit(a *initAnswers, accessible bool) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Chat provider").
				Options(
					huh.NewOption("OpenAI (or a compatible endpoint)", "openai"),
					huh.NewOption("Anthropic", "anthropic"),
				).
				Value(&a.Provider),
			huh.NewSelect[string]().
				Title("Embedding provider").
				Options(
					huh.NewOption("OpenAI", "openai"),
					huh.NewOption("Google Gemini", "gemini"),
				).
				Value(&a.EmbeddingProvider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("OpenAI-compatible endpoint").
				Description("Leave empty for api.openai.com").
				Value(&a.Endpoint),
			huh.NewInput().
				Title("Chat model").
				Value(&a.ChatModel),
		).WithHideFunc(func() bool { return a.Provider != "openai" }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Where should API keys live?").
				Options(
					huh.NewOption("Environment variables", "env"),
					huh.NewOption("OS keyring", "keyring"),
				).
				Value(&a.KeyStorage),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Chat API key").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
			huh.NewInput().
				Title("Embedding API key").
				Description("Leave empty to reuse the chat key").
				EchoMode(huh.EchoModePassword).
				Value(&a.EmbeddingAPIKey),
		).WithHideFunc(func() bool { return a.KeyStorage != "keyring" }),
		huh.NewGroup(
			huh.NewInput().
				Title("Your name").
				Description("Replaces <user> in persona dialogue examples").
				Value(&a.UserName),
			huh.NewInput().
				Title("Time zone").
				Description("IANA name such as Europe/Berlin; empty for local time").
				Value(&a.Timezone),
			huh.NewInput().
				Title("Database file").
				Value(&a.StoragePath),
			huh.NewConfirm().
				Title("Keep sessions across restarts?").
				Value(&a.PersistSessions),
		),
	).WithAccessible(accessible)
	return form.Run()
}

// keyNames returns the secret names for the chat and embedding keys.
func keyNames(a initAnswers) (chat, embedding string) {
	chat = "openai"
	if a.Provider == "anthropic" {
		chat = "anthropic"
	}
	embedding = "openai"
	if a.EmbeddingProvider == "gemini" {
		embedding = "gemini"
	}
	return chat, embedding
}

var envNames = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"gemini":    "GEMINI_API_KEY",
}

// storeKeys saves keyring secrets and returns the references to write,
// keyed by secret name.
func storeKeys(a initAnswers) (map[string]string, error) {
	chat, embedding := keyNames(a)
	refs := map[string]string{}
	if a.KeyStorage != "keyring" {
		refs[chat] = "env:" + envNames[chat]
		refs[embedding] = "env:" + envNames[embedding]
		return refs, nil
	}
	values := map[string]string{chat: a.APIKey}
	if embedding != chat {
		values[embedding] = a.EmbeddingAPIKey
	} else if values[chat] == "" {
		values[chat] = a.EmbeddingAPIKey
	}
	for name, value := range values {
		if value == "" {
			refs[name] = "env:" + envNames[name]
			continue
		}
		ref, err := config.StoreSecret(name, value)
		if err != nil {
			return nil, err
		}
		refs[name] = ref
	}
	return refs, nil
}

// renderInitConfig produces the YAML for the answers. Only values that
// differ from the built-in defaults are written.
func renderInitConfig(a initAnswers, refs map[string]string) ([]byte, error) {
	chat, embedding := keyNames(a)

	llm := map[string]any{"provider": a.Provider}
	if a.Provider == "anthropic" {
		llm["anthropic"] = map[string]any{"api_key": refs[chat]}
	} else {
		llm["api_key"] = refs[chat]
		if a.Endpoint != "" {
			llm["endpoint"] = a.Endpoint
		}
		if a.ChatModel != "" && a.ChatModel != config.DefaultChatModel {
			llm["chat_model"] = a.ChatModel
		}
	}
	emb := map[string]any{"provider": a.EmbeddingProvider}
	if embedding != chat || a.Provider == "anthropic" {
		emb["api_key"] = refs[embedding]
	}
	if a.EmbeddingProvider == "gemini" {
		emb["dimension"] = 768
	}
	llm["embedding"] = emb

	chatCfg := map[string]any{}
	if a.UserName != "" && a.UserName != config.DefaultUserName {
		chatCfg["user_name"] = a.UserName
	}
	if a.Timezone != "" {
		chatCfg["timezone"] = a.Timezone
	}

	doc := map[string]any{
		"llm":      llm,
		"storage":  map[string]any{"path": a.StoragePath},
		"sessions": map[string]any{"persist": a.PersistSessions},
	}
	if len(chatCfg) > 0 {
		doc["chat"] = chatCfg
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte("# Generated by `charlotte init`. See `charlotte config schema` for every option.\n"), data...), nil
}
