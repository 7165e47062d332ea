package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ongardie/cubicle/internal/model"
)

func newResetCommand(env *cliEnv) *cobra.Command {
	var (
		packages string
		clean    bool
	)

	cmd := &cobra.Command{
		Use:   "reset NAME...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Recompose home, preserving work",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			if clean {
				for _, name := range args {
					if err := c.Composer.ResetClean(ctx, model.EnvironmentName(name)); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "removed home for %s\n", name)
				}
				return nil
			}

			var refs []model.PackageRef
			if packages != "" {
				refs = parsePackages(packages)
			}

			for _, name := range args {
				target, err := c.Composer.Reset(ctx, model.EnvironmentName(name), refs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset %s (%s)\n", target.Name, target.HomeDir)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&packages, "packages", "", "Comma-separated package list (default: reuse packages.txt)")
	cmd.Flags().BoolVar(&clean, "clean", false, "Remove the home directory and do not recreate it")
	return cmd
}
