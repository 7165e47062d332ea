package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ongardie/cubicle/internal/model"
)

func newNewCommand(env *cliEnv) *cobra.Command {
	var (
		packages string
		enter    bool
	)

	cmd := &cobra.Command{
		Use:   "new NAME",
		Args:  cobra.ExactArgs(1),
		Short: "Create a fresh environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			name := model.EnvironmentName(args[0])
			refs := parsePackages(packages)

			target, err := c.Composer.New(ctx, name, refs)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", target.Name, target.HomeDir)

			if enter {
				return runInteractiveShell(ctx, c, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&packages, "packages", "", "Comma-separated package list")
	cmd.Flags().BoolVar(&enter, "enter", false, "Start an interactive shell in the new environment")
	return cmd
}
