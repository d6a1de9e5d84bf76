package main

import (
	"github.com/spf13/cobra"
)

// buildChatCmd creates the "chat" command for terminal conversations.
func buildChatCmd(opts *rootOptions) *cobra.Command {
	var personaID, sessionID string

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with a persona from the terminal",
		Long: `Start or resume a chat session. With a message argument a single turn is
run and printed; otherwise an interactive prompt opens.

Inside the prompt:
  /history   print the session history
  /refs      list the documents and tools currently in context
  /quit      leave (the session is kept)`,
		Example: `  # New session with a persona
  charlotte chat --persona 3f0c...

  # Resume a session
  charlotte chat --session 9a41...

  # One turn
  charlotte chat --session 9a41... "What's on my calendar?"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts, personaID, sessionID, args)
		},
	}
	cmd.Flags().StringVarP(&personaID, "persona", "p", "", "Persona id for a new session (defaults to the only persona)")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Existing session id to resume")
	return cmd
}
