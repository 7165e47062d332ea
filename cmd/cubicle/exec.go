package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/ongardie/cubicle/internal/model"
)

func newExecCommand(env *cliEnv) *cobra.Command {
	cmd := &cobra.Command{
		Use:                "exec NAME CMD...",
		Args:               cobra.MinimumNArgs(2),
		Short:              "Run a command inside an environment",
		DisableFlagParsing: true, // CMD... may itself contain flags meant for the sandboxed command
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 && (args[0] == "-h" || args[0] == "--help") {
				return cmd.Help()
			}
			ctx := cmd.Context()
			c, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			name := model.EnvironmentName(args[0])
			code, err := runExec(ctx, c, name, args[1:])
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
	return cmd
}
