package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sbw-cli",
		Short:         "Decode Shoot-By-Wire telemetry capture files",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newDecodeCommand())
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
