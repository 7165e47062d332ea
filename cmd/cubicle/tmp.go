package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newTmpCommand(env *cliEnv) *cobra.Command {
	var packages string

	cmd := &cobra.Command{
		Use:   "tmp",
		Short: "Create a random-named environment and enter it",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			refs := parsePackages(packages)
			target, err := c.Composer.Tmp(ctx, refs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", target.Name, target.HomeDir)
			return runInteractiveShell(ctx, c, target.Name)
		},
	}
	cmd.Flags().StringVar(&packages, "packages", "", "Comma-separated package list")
	return cmd
}
