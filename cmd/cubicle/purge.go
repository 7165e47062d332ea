package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ongardie/cubicle/internal/model"
)

func newPurgeCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge NAME...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Delete environment(s)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			for _, name := range args {
				if err := c.Composer.Purge(ctx, model.EnvironmentName(name)); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", name)
			}
			return nil
		},
	}
	return cmd
}
