package main

import (
	"github.com/spf13/cobra"
)

func newListCommand(env *cliEnv) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Enumerate environments with state, home/work paths, and package set",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			envs, err := c.ListEnvironments(ctx)
			if err != nil {
				return err
			}
			return printEnvironmentsContext(ctx, cmd.OutOrStdout(), format, envs)
		},
	}
	cmd.Flags().StringVar(&format, "format", "default", "Output format: default, json, or names")
	return cmd
}
