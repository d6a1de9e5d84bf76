package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the HTTP and
// WebSocket API.
func buildServeCmd(opts *rootOptions) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Charlotte API server",
		Long: `Start the Charlotte API server.

The server will:
1. Load configuration from the specified file (or charlotte.yaml)
2. Open the SQLite store and the configured vector backend
3. Initialize the chat and embedding providers
4. Serve the REST API, the chat WebSocket and /metrics
5. Reload chat settings when the configuration file changes

Sessions are flushed and the server drains on SIGINT/SIGTERM.`,
		Example: `  # Start with default config
  charlotte serve

  # Start with a custom config and verbose logs
  charlotte serve --config /etc/charlotte/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, !noWatch)
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload chat settings when the config file changes")
	return cmd
}
