// Package main provides the CLI entry point for Charlotte, a persona-driven
// AI companion that grounds its replies in a document library and can call
// sandboxed tools.
//
// # Basic Usage
//
// Start the HTTP and WebSocket API:
//
//	charlotte serve --config charlotte.yaml
//
// Chat from the terminal:
//
//	charlotte chat --persona <id>
//
// Manage the library:
//
//	charlotte docs add ./handbook.md https://example.com/faq.html
//	charlotte persona create --name Charlotte --greeting "Hi!"
//	charlotte tools register ./weather.json
//
// # Environment Variables
//
//   - CHARLOTTE_CONFIG: Path to configuration file (default: charlotte.yaml)
//   - OPENAI_API_KEY: OpenAI key, used when llm.api_key is empty
//   - ANTHROPIC_API_KEY: Anthropic key, used when llm.anthropic.api_key is empty
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/charlotte/internal/app"
	"github.com/haasonsaas/charlotte/internal/config"
	"github.com/haasonsaas/charlotte/internal/observability"
)

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigName = "charlotte.yaml"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	debug      bool
}

// buildRootCmd creates the root command with all subcommands attached.
// It is separate from main for testing.
func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "charlotte",
		Short: "Charlotte - a persona-driven AI companion",
		Long: `Charlotte chats in the voice of a configured persona, grounds each reply in
a library of documents and can call sandboxed tools while it thinks.

Supported chat providers: OpenAI (and compatible endpoints), Anthropic
Supported embedders: OpenAI, Google Gemini
Vector backends: SQLite, PostgreSQL with pgvector`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"Path to configuration file (or set CHARLOTTE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false,
		"Enable debug logging")

	rootCmd.AddCommand(
		buildServeCmd(opts),
		buildChatCmd(opts),
		buildSessionsCmd(opts),
		buildDocsCmd(opts),
		buildPersonaCmd(opts),
		buildToolsCmd(opts),
		buildConfigCmd(opts),
		buildInitCmd(opts),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath picks the flag, then $CHARLOTTE_CONFIG, then
// charlotte.yaml when it exists. An empty result means built-in defaults.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" {
		return p
	}
	if p := strings.TrimSpace(os.Getenv("CHARLOTTE_CONFIG")); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}
	return ""
}

func (o *rootOptions) loadConfig() (string, *config.Config, error) {
	path := resolveConfigPath(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return path, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return path, cfg, nil
}

func (o *rootOptions) logger(cfg *config.Config) *slog.Logger {
	level := cfg.Logging.Level
	if o.debug {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:     level,
		Format:    cfg.Logging.Format,
		AddSource: cfg.Logging.AddSource,
	})
}

// openApp loads the configuration and assembles an instance for one
// command. The caller must Close it.
func (o *rootOptions) openApp(ctx context.Context) (*app.App, error) {
	_, cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, app.Options{
		Registerer: prometheus.NewRegistry(),
		Version:    version,
		Logger:     o.logger(cfg),
	})
}

// withApp runs fn against a freshly assembled instance and closes it.
func (o *rootOptions) withApp(cmd *cobra.Command, fn func(context.Context, *app.App) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := o.openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(context.Background()); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, a)
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "charlotte %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
