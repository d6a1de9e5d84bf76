package main

import (
	"github.com/spf13/cobra"
)

// buildInitCmd creates the "init" command that writes a starter config.
func buildInitCmd(opts *rootOptions) *cobra.Command {
	var (
		output     string
		defaults   bool
		force      bool
		accessible bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter configuration interactively",
		Long: `Ask for the chat and embedding providers, where to keep API keys and where
to store data, then write a configuration file.

API keys are never written to the file: they are either saved in the OS
keyring and referenced as keyring:NAME, or referenced as env:NAME.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, output, defaults, force, accessible)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", defaultConfigName, "Where to write the configuration")
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Skip the questions and write the defaults")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVar(&accessible, "accessible", false, "Use plain prompts suitable for screen readers")
	return cmd
}
