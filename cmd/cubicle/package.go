package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ongardie/cubicle/internal/model"
)

func newPackageCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "package",
		Short: "Inspect and rebuild packages",
	}
	cmd.AddCommand(
		newPackageListCommand(env),
		newPackageUpdateCommand(env),
		newPackageHistoryCommand(env),
	)
	return cmd
}

func newPackageListCommand(env *cliEnv) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Enumerate known packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()
			return printPackages(cmd.OutOrStdout(), format, c.ListPackages())
		},
	}
	cmd.Flags().StringVar(&format, "format", "default", "Output format: default, json, or names")
	return cmd
}

func newPackageUpdateCommand(env *cliEnv) *cobra.Command {
	var (
		clean    bool
		skipDeps bool
	)
	cmd := &cobra.Command{
		Use:   "update NAME...",
		Args:  cobra.MinimumNArgs(1),
		Short: "Force rebuild of one or more packages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			for _, name := range args {
				ref := model.ParseRef(name)
				artifact, err := c.UpdatePackage(ctx, ref, skipDeps)
				if err != nil {
					if clean {
						_ = c.Runner.Purge(ctx, "builder-"+model.EnvironmentName(ref.Identity()))
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rebuilt %s at %s\n", ref.String(), artifact.BuiltAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "Purge the builder environment if the rebuild fails")
	cmd.Flags().BoolVar(&skipDeps, "skip-deps", false, "Only rebuild dependencies that have never been built successfully; by default, stale dependencies rebuild too")
	return cmd
}

func newPackageHistoryCommand(env *cliEnv) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history NAME",
		Args:  cobra.ExactArgs(1),
		Short: "Show recent build attempts for a package",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			ref := model.ParseRef(args[0])
			attempts, err := c.PackageHistory(ctx, ref.Identity(), limit)
			if err != nil {
				return err
			}
			if len(attempts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no recorded build attempts")
				return nil
			}
			out := cmd.OutOrStdout()
			for _, a := range attempts {
				fmt.Fprintf(out, "%s\t%s\t%s\t%s\n",
					a.StartedAt.Format("2006-01-02T15:04:05Z07:00"), a.Outcome, a.Duration, a.SourceHash)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of attempts to show")
	return cmd
}
