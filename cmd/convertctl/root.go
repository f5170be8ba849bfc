package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand(connect connectFunc) *cobra.Command {
	var configFlag string

	ctx := newCommandContext(&configFlag, connect)

	rootCmd := &cobra.Command{
		Use:           "convertctl",
		Short:         "Operate the media conversion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newTopologyCommand(ctx))
	rootCmd.AddCommand(newEnqueueCommand(ctx))
	rootCmd.AddCommand(newDLQCommand(ctx))

	return rootCmd
}
